package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

func testRecord(t *testing.T) *frame.Record {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 100, G: 100, B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	rec := frame.New("client-1", buf.Bytes())
	rec.Seq = 7
	return rec
}

// fakeTask is a scriptable task for pipeline tests.
type fakeTask struct {
	name       string
	deps       []string
	infer      func(rec *frame.Record, tctx task.Context) task.Result
	visualized *int
}

func (f *fakeTask) Name() string { return f.name }

func (f *fakeTask) RequiresContext() []string { return f.deps }

func (f *fakeTask) Infer(rec *frame.Record, tctx task.Context) task.Result {
	if f.infer != nil {
		return f.infer(rec, tctx)
	}
	return task.Result{Success: true}
}

func (f *fakeTask) Visualize(rec *frame.Record, result task.Result) *frame.Record {
	if f.visualized != nil {
		*f.visualized++
	}
	return rec
}

func startPipeline(t *testing.T, reg *task.Registry, opts ...Option) *Pipeline {
	t.Helper()

	p := New(reg, 2, 8, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = p.Stop(time.Second)
	})
	return p
}

func TestProcessTwoPhases(t *testing.T) {
	reg := task.NewRegistry()

	var sawDetection bool
	require.NoError(t, reg.Register(&fakeTask{
		name: "detection",
		infer: func(rec *frame.Record, tctx task.Context) task.Result {
			return task.Result{Success: true, Data: map[string]any{"hits": 3}}
		},
	}))
	require.NoError(t, reg.Register(&fakeTask{
		name: "analysis",
		deps: []string{"detection"},
		infer: func(rec *frame.Record, tctx task.Context) task.Result {
			det, ok := tctx.Results["detection"]
			sawDetection = ok && det.Success && det.Data["hits"] == 3
			return task.Result{Success: true}
		},
	}))

	p := startPipeline(t, reg)
	out, err := p.Process(context.Background(), testRecord(t), nil)
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.True(t, out.Results["detection"].Success)
	assert.True(t, out.Results["analysis"].Success)
	assert.True(t, sawDetection)
	assert.Equal(t, uint64(7), out.Frame.Seq)
}

func TestProcessTaskFailureKeepsFrame(t *testing.T) {
	reg := task.NewRegistry()
	require.NoError(t, reg.Register(&fakeTask{
		name: "broken",
		infer: func(rec *frame.Record, tctx task.Context) task.Result {
			return task.Failure("model unavailable")
		},
	}))
	viz := 0
	require.NoError(t, reg.Register(&fakeTask{name: "ok", visualized: &viz}))

	p := startPipeline(t, reg)
	out, err := p.Process(context.Background(), testRecord(t), nil)
	require.NoError(t, err)

	assert.False(t, out.Results["broken"].Success)
	assert.Equal(t, "model unavailable", out.Results["broken"].Error)
	assert.True(t, out.Results["ok"].Success)
	require.NotNil(t, out.Frame)
	// only the successful task composes
	assert.Equal(t, 1, viz)
}

func TestProcessTaskPanicRecovered(t *testing.T) {
	reg := task.NewRegistry()
	require.NoError(t, reg.Register(&fakeTask{
		name: "panicky",
		infer: func(rec *frame.Record, tctx task.Context) task.Result {
			panic("boom")
		},
	}))

	p := startPipeline(t, reg)
	out, err := p.Process(context.Background(), testRecord(t), nil)
	require.NoError(t, err)

	res := out.Results["panicky"]
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panicked")
}

func TestProcessTaskTimeout(t *testing.T) {
	reg := task.NewRegistry()
	release := make(chan struct{})
	require.NoError(t, reg.Register(&fakeTask{
		name: "slow",
		infer: func(rec *frame.Record, tctx task.Context) task.Result {
			<-release
			return task.Result{Success: true}
		},
	}))

	p := startPipeline(t, reg, WithTaskTimeout(30*time.Millisecond))
	out, err := p.Process(context.Background(), testRecord(t), nil)
	close(release)
	require.NoError(t, err)

	res := out.Results["slow"]
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestProcessAppliesDeltas(t *testing.T) {
	reg := task.NewRegistry()
	require.NoError(t, reg.Register(&fakeTask{
		name: "bending",
		infer: func(rec *frame.Record, tctx task.Context) task.Result {
			return task.Result{Success: true, Delta: &task.Delta{IncrementBend: true}}
		},
	}))
	require.NoError(t, reg.Register(&fakeTask{
		name: "bubbles",
		infer: func(rec *frame.Record, tctx task.Context) task.Result {
			return task.Result{Success: true, Delta: &task.Delta{BubbleDetected: task.Bool(true)}}
		},
	}))

	ct := task.NewCleaningTask("task-1", "")
	p := startPipeline(t, reg)
	_, err := p.Process(context.Background(), testRecord(t), ct)
	require.NoError(t, err)

	snap := ct.Snapshot()
	assert.Equal(t, 1, snap.BendCount)
	assert.True(t, snap.BubbleDetected)
}

func TestProcessNilBoundTask(t *testing.T) {
	reg := task.NewRegistry()
	require.NoError(t, reg.Register(&fakeTask{
		name: "bending",
		infer: func(rec *frame.Record, tctx task.Context) task.Result {
			return task.Result{Success: true, Delta: &task.Delta{IncrementBend: true}}
		},
	}))

	p := startPipeline(t, reg)
	out, err := p.Process(context.Background(), testRecord(t), nil)
	require.NoError(t, err)
	assert.True(t, out.Results["bending"].Success)
}

func TestProcessInputFrameNeverMutated(t *testing.T) {
	reg := task.NewRegistry()
	require.NoError(t, reg.Register(&fakeTask{
		name: "mutator",
		infer: func(rec *frame.Record, tctx task.Context) task.Result {
			rec.Image[0] = 0 // clone absorbs this
			return task.Result{Success: true}
		},
	}))

	rec := testRecord(t)
	orig := make([]byte, len(rec.Image))
	copy(orig, rec.Image)

	p := startPipeline(t, reg)
	_, err := p.Process(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.Equal(t, orig, rec.Image)
}

func TestProcessRejectsEmptyFrame(t *testing.T) {
	p := startPipeline(t, task.NewRegistry())

	_, err := p.Process(context.Background(), nil, nil)
	require.Error(t, err)

	_, err = p.Process(context.Background(), &frame.Record{ClientID: "client-1"}, nil)
	require.Error(t, err)
}

func TestProcessCancelledContext(t *testing.T) {
	p := startPipeline(t, task.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Process(ctx, testRecord(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessDisabledTaskSkipped(t *testing.T) {
	reg := task.NewRegistry()
	require.NoError(t, reg.Register(&fakeTask{name: "a"}))
	require.NoError(t, reg.Register(&fakeTask{name: "b"}))
	require.NoError(t, reg.Enable("a", false))

	p := startPipeline(t, reg)
	out, err := p.Process(context.Background(), testRecord(t), nil)
	require.NoError(t, err)

	_, hasA := out.Results["a"]
	assert.False(t, hasA)
	assert.True(t, out.Results["b"].Success)
}
