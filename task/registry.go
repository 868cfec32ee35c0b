package task

import (
	"sync"

	"github.com/Jiadezhende/CleanSightBackend/errors"
)

// Registration tracks a registered task and its enabled flag.
type Registration struct {
	Task    Task
	Enabled bool
}

// Registry holds the registered inference tasks and computes the two-phase
// execution order.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Registration
	order []string // registration order
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Registration),
	}
}

// Register adds a task, enabled by default. Registering a name twice is an
// error; use Enable to toggle participation instead.
func (r *Registry) Register(t Task) error {
	if t == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Registry", "Register", "nil task")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Registry", "Register", "empty task name")
	}
	if _, exists := r.tasks[name]; exists {
		return errors.WrapInvalid(errors.ErrInvalidData, "Registry", "Register", "duplicate task "+name)
	}

	r.tasks[name] = &Registration{Task: t, Enabled: true}
	r.order = append(r.order, name)
	return nil
}

// Unregister removes a task. Tasks that declared the removed task as a
// dependency keep running; their context lookup simply finds no entry.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[name]; !exists {
		return false
	}
	delete(r.tasks, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Enable toggles a task's participation without re-registration.
func (r *Registry) Enable(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, exists := r.tasks[name]
	if !exists {
		return errors.WrapInvalid(errors.ErrTaskNotFound, "Registry", "Enable", name)
	}
	reg.Enabled = enabled
	return nil
}

// IsEnabled reports whether a task is registered and enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.tasks[name]
	return exists && reg.Enabled
}

// Get returns a registered task by name.
func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.tasks[name]
	if !exists {
		return nil, false
	}
	return reg.Task, true
}

// Names returns all registered task names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Ordered returns the enabled tasks split into the two execution phases:
// parallel (no declared dependencies) and serial (any declared dependency),
// each in registration order. This is NOT a topological sort; see the
// package documentation for the chained-dependency limitation.
func (r *Registry) Ordered() (parallel, serial []Task) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		reg := r.tasks[name]
		if !reg.Enabled {
			continue
		}
		if len(reg.Task.RequiresContext()) == 0 {
			parallel = append(parallel, reg.Task)
		} else {
			serial = append(serial, reg.Task)
		}
	}
	return parallel, serial
}

// Status reports each registered task's enabled flag and declared
// dependencies, in registration order.
func (r *Registry) Status() []TaskStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TaskStatus, 0, len(r.order))
	for _, name := range r.order {
		reg := r.tasks[name]
		out = append(out, TaskStatus{
			Name:         name,
			Enabled:      reg.Enabled,
			Dependencies: reg.Task.RequiresContext(),
		})
	}
	return out
}

// TaskStatus is one row of Registry.Status.
type TaskStatus struct {
	Name         string   `json:"name"`
	Enabled      bool     `json:"enabled"`
	Dependencies []string `json:"dependencies,omitempty"`
}
