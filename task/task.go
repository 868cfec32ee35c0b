package task

import (
	"github.com/Jiadezhende/CleanSightBackend/frame"
)

// Task is one pluggable per-frame analysis unit.
//
// Implementations are registered at process start; enabling and disabling at
// runtime goes through the registry, not the task itself.
type Task interface {
	// Name returns the unique task name used for registration, context
	// lookups and result keys.
	Name() string

	// Infer analyzes a frame. It must not mutate the input frame; mutations
	// of the bound cleaning task are requested through Result.Delta rather
	// than applied directly.
	Infer(rec *frame.Record, tctx Context) Result

	// Visualize draws this task's overlay onto the frame and returns the
	// updated frame. It is called only for successful results, with the
	// output of the previous task's Visualize as input, so drawing must be
	// additive: never erase regions another task may have drawn.
	Visualize(rec *frame.Record, result Result) *frame.Record

	// RequiresContext declares the names of other tasks whose results this
	// task consumes. A non-empty return moves the task to the serial phase.
	RequiresContext() []string
}

// Context is the accumulating execution context handed to Infer.
type Context struct {
	// Task is the cleaning task bound to the client, or nil.
	Task *CleaningTask

	// Results holds the results of tasks from phases already completed,
	// keyed by task name. Entries for disabled, unregistered or failed
	// dependencies are simply absent.
	Results map[string]Result
}

// Result is the outcome of one task invocation on one frame.
type Result struct {
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	Data      map[string]any   `json:"data,omitempty"`
	Keypoints []frame.Keypoint `json:"keypoints,omitempty"`

	// Delta carries requested cleaning-task mutations; the pipeline
	// coordinator applies them single-writer after the task phases finish.
	Delta *Delta `json:"-"`
}

// Failure builds a failed result from an error message.
func Failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// Delta is a structured set of cleaning-task mutations requested by a task.
// Nil pointer fields mean "leave unchanged".
type Delta struct {
	IncrementBend  bool
	BubbleDetected *bool
	FullySubmerged *bool
	SetStep        *string
	SetStatus      *string
}

// Bool is a convenience for building Delta pointer fields.
func Bool(v bool) *bool { return &v }

// String is a convenience for building Delta pointer fields.
func String(v string) *string { return &v }
