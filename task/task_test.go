package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiadezhende/CleanSightBackend/errors"
	"github.com/Jiadezhende/CleanSightBackend/frame"
)

// stubTask is a minimal Task implementation for registry tests.
type stubTask struct {
	name string
	deps []string
}

func (s *stubTask) Name() string { return s.name }

func (s *stubTask) Infer(rec *frame.Record, tctx Context) Result {
	return Result{Success: true}
}

func (s *stubTask) Visualize(rec *frame.Record, result Result) *frame.Record {
	return rec
}

func (s *stubTask) RequiresContext() []string { return s.deps }

func names(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Name()
	}
	return out
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubTask{name: "detection"}))

	// duplicate name rejected
	err := r.Register(&stubTask{name: "detection"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// nil task and empty name rejected
	require.Error(t, r.Register(nil))
	require.Error(t, r.Register(&stubTask{name: ""}))

	got, ok := r.Get("detection")
	require.True(t, ok)
	assert.Equal(t, "detection", got.Name())
}

func TestRegistryOrderedTwoPhase(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubTask{name: "detection"}))
	require.NoError(t, r.Register(&stubTask{name: "cleanliness", deps: []string{"detection", "bubble_detection"}}))
	require.NoError(t, r.Register(&stubTask{name: "bubble_detection"}))
	require.NoError(t, r.Register(&stubTask{name: "bending", deps: []string{"detection"}}))

	parallel, serial := r.Ordered()
	assert.Equal(t, []string{"detection", "bubble_detection"}, names(parallel))
	assert.Equal(t, []string{"cleanliness", "bending"}, names(serial))
}

func TestRegistryEnableDisable(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubTask{name: "detection"}))
	require.NoError(t, r.Register(&stubTask{name: "bubble_detection"}))

	require.NoError(t, r.Enable("detection", false))
	assert.False(t, r.IsEnabled("detection"))
	assert.True(t, r.IsEnabled("bubble_detection"))

	parallel, serial := r.Ordered()
	assert.Equal(t, []string{"bubble_detection"}, names(parallel))
	assert.Empty(t, serial)

	require.NoError(t, r.Enable("detection", true))
	parallel, _ = r.Ordered()
	assert.Equal(t, []string{"detection", "bubble_detection"}, names(parallel))

	err := r.Enable("missing", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTaskNotFound))
}

func TestRegistryUnregisterDependency(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubTask{name: "detection"}))
	require.NoError(t, r.Register(&stubTask{name: "cleanliness", deps: []string{"detection"}}))

	// Removing a dependency must not disturb dependents; they just see an
	// empty context at run time.
	assert.True(t, r.Unregister("detection"))
	assert.False(t, r.Unregister("detection"))

	parallel, serial := r.Ordered()
	assert.Empty(t, parallel)
	assert.Equal(t, []string{"cleanliness"}, names(serial))

	dep := serial[0]
	res := dep.Infer(nil, Context{Results: map[string]Result{}})
	assert.True(t, res.Success)
}

func TestRegistryStatus(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubTask{name: "detection"}))
	require.NoError(t, r.Register(&stubTask{name: "bending", deps: []string{"detection"}}))
	require.NoError(t, r.Enable("bending", false))

	status := r.Status()
	require.Len(t, status, 2)
	assert.Equal(t, TaskStatus{Name: "detection", Enabled: true}, status[0])
	assert.Equal(t, TaskStatus{
		Name:         "bending",
		Enabled:      false,
		Dependencies: []string{"detection"},
	}, status[1])
}

func TestCleaningTaskApplyDelta(t *testing.T) {
	ct := NewCleaningTask("task-1", "nurse-7")
	assert.Equal(t, StatusActive, ct.Snapshot().Status)
	assert.Equal(t, "task-1", ct.ID())
	created := ct.Snapshot().UpdatedAt

	ct.ApplyDelta(&Delta{IncrementBend: true})
	ct.ApplyDelta(&Delta{IncrementBend: true})
	ct.ApplyDelta(&Delta{
		BubbleDetected: Bool(true),
		FullySubmerged: Bool(true),
		SetStep:        String("rinse"),
	})

	snap := ct.Snapshot()
	assert.Equal(t, 2, snap.BendCount)
	assert.True(t, snap.BubbleDetected)
	assert.True(t, snap.FullySubmerged)
	assert.Equal(t, "rinse", snap.CurrentStep)
	assert.GreaterOrEqual(t, snap.UpdatedAt, created)

	// empty delta leaves state untouched
	before := ct.Snapshot()
	ct.ApplyDelta(&Delta{})
	assert.Equal(t, before, ct.Snapshot())

	// nil receiver and nil delta are no-ops
	var nilTask *CleaningTask
	nilTask.ApplyDelta(&Delta{IncrementBend: true})
	ct.ApplyDelta(nil)
	assert.Equal(t, before, ct.Snapshot())
}

func TestCleaningTaskStatusTransitions(t *testing.T) {
	ct := NewCleaningTask("task-2", "")

	ct.ApplyDelta(&Delta{SetStatus: String(StatusCompleted)})
	assert.Equal(t, StatusCompleted, ct.Snapshot().Status)

	ct.ApplyDelta(&Delta{SetStatus: String(StatusFailed)})
	assert.Equal(t, StatusFailed, ct.Snapshot().Status)
}

func TestFailure(t *testing.T) {
	res := Failure("model unavailable")
	assert.False(t, res.Success)
	assert.Equal(t, "model unavailable", res.Error)
}
