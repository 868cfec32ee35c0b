package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiadezhende/CleanSightBackend/clientstore"
	"github.com/Jiadezhende/CleanSightBackend/errors"
	"github.com/Jiadezhende/CleanSightBackend/flush"
	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/pipeline"
	"github.com/Jiadezhende/CleanSightBackend/scheduler"
	"github.com/Jiadezhende/CleanSightBackend/storage"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

func fixtureJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{R: 80, G: 80, B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type okTask struct{}

func (okTask) Name() string              { return "detection" }
func (okTask) RequiresContext() []string { return nil }
func (okTask) Infer(rec *frame.Record, tctx task.Context) task.Result {
	return task.Result{Success: true}
}
func (okTask) Visualize(rec *frame.Record, result task.Result) *frame.Record { return rec }

type nullEncoder struct{}

func (nullEncoder) Encode(ctx context.Context, path string, frames [][]byte, fps int) error {
	return nil
}

func newService(t *testing.T) (*Service, *clientstore.Store, *task.Registry) {
	t.Helper()

	store := clientstore.New()
	reg := task.NewRegistry()
	require.NoError(t, reg.Register(okTask{}))
	pipe := pipeline.New(reg, 2, 8)
	f := flush.New(store, nullEncoder{}, storage.NewMemStore(), t.TempDir(),
		flush.WithSegmentLength(100))
	sched := scheduler.New(store, pipe, f, scheduler.WithIdleSleep(time.Millisecond))
	require.NoError(t, sched.Initialize())

	svc, err := New(Deps{Store: store, Registry: reg, Scheduler: sched})
	require.NoError(t, err)
	return svc, store, reg
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestServiceLifecycle(t *testing.T) {
	svc, _, _ := newService(t)

	require.NoError(t, svc.Start(context.Background()))
	require.Error(t, svc.Start(context.Background()))
	assert.True(t, svc.Status().Running)

	require.NoError(t, svc.Stop(time.Second))
	require.NoError(t, svc.Stop(time.Second))
	assert.False(t, svc.Status().Running)
}

func TestSubmitFrameValidates(t *testing.T) {
	svc, store, _ := newService(t)

	err := svc.SubmitFrame("client-1", []byte("plainly not jpeg"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 0, store.ReadyLen("client-1"))

	require.NoError(t, svc.SubmitFrame("client-1", fixtureJPEG(t)))
	assert.Equal(t, 1, store.ReadyLen("client-1"))
}

func TestSubmitEncodedFrame(t *testing.T) {
	svc, store, _ := newService(t)
	jpegData := fixtureJPEG(t)

	// bare base64 and data-URL forms both ingest
	require.NoError(t, svc.SubmitEncodedFrame("client-1",
		base64.StdEncoding.EncodeToString(jpegData)))
	require.NoError(t, svc.SubmitEncodedFrame("client-1",
		"data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(jpegData)))
	assert.Equal(t, 2, store.ReadyLen("client-1"))

	// garbage is rejected with no state change
	err := svc.SubmitEncodedFrame("client-2", "!!!not-base64!!!")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, 0, store.ReadyLen("client-2"))
}

func TestGetResult(t *testing.T) {
	svc, store, _ := newService(t)

	_, ok := svc.GetResult("client-1", false)
	assert.False(t, ok)

	jpegData := fixtureJPEG(t)
	store.GetOrCreate("client-1")
	processed := frame.New("client-1", jpegData)
	require.NoError(t, store.AppendResult("client-1", frame.New("client-1", jpegData), processed, nil))

	raw, ok := svc.GetResult("client-1", false)
	require.True(t, ok)
	assert.Equal(t, jpegData, raw)

	encoded, ok := svc.GetResult("client-1", true)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(string(encoded), "data:image/jpeg;base64,"))
}

func TestBindAndTerminateTask(t *testing.T) {
	svc, _, _ := newService(t)

	ct := svc.BindTask("client-1", "", "nurse-7")
	require.NotNil(t, ct)
	assert.NotEmpty(t, ct.ID())

	snap, ok := svc.GetTask("client-1")
	require.True(t, ok)
	assert.Equal(t, ct.ID(), snap.ID)
	assert.Equal(t, "nurse-7", snap.ActorID)
	assert.Equal(t, task.StatusActive, snap.Status)

	require.NoError(t, svc.TerminateTask("client-1"))
	assert.Equal(t, task.StatusCompleted, ct.Snapshot().Status)

	_, ok = svc.GetTask("client-1")
	assert.False(t, ok)

	err := svc.TerminateTask("client-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoBoundTask))
}

func TestBindTaskExplicitID(t *testing.T) {
	svc, _, _ := newService(t)

	ct := svc.BindTask("client-1", "task-42", "")
	assert.Equal(t, "task-42", ct.ID())
}

func TestStatusReport(t *testing.T) {
	svc, _, reg := newService(t)
	require.NoError(t, svc.SubmitFrame("client-1", fixtureJPEG(t)))
	svc.SetRTMPURL("client-1", "rtmp://cam/1")
	require.NoError(t, reg.Enable("detection", false))

	report := svc.Status()
	assert.False(t, report.Running)
	assert.Equal(t, 1, report.Clients)
	assert.Equal(t, 1, report.Queues["client-1"].Ready)
	assert.Equal(t, "rtmp://cam/1", report.Queues["client-1"].RTMPURL)
	require.Len(t, report.Tasks, 1)
	assert.False(t, report.Tasks[0].Enabled)

	// idempotent
	assert.Equal(t, report.Clients, svc.Status().Clients)
}

func TestRemoveClient(t *testing.T) {
	svc, store, _ := newService(t)
	require.NoError(t, svc.SubmitFrame("client-1", fixtureJPEG(t)))

	assert.True(t, svc.RemoveClient("client-1"))
	assert.False(t, svc.RemoveClient("client-1"))
	assert.Equal(t, 0, store.ReadyLen("client-1"))
}

func TestEnableTask(t *testing.T) {
	svc, _, reg := newService(t)

	require.NoError(t, svc.EnableTask("detection", false))
	assert.False(t, reg.IsEnabled("detection"))

	require.Error(t, svc.EnableTask("missing", true))
}

func TestEndToEndFrameFlow(t *testing.T) {
	svc, _, _ := newService(t)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(time.Second)

	require.NoError(t, svc.SubmitFrame("client-1", fixtureJPEG(t)))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := svc.GetResult("client-1", true); ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no result produced")
}

func TestEventPublisherDisabledWithoutConnection(t *testing.T) {
	p := NewEventPublisher(nil, nil)
	assert.False(t, p.Enabled())

	// publishing through a disabled publisher is a no-op, not a panic
	p.Publish(EventServiceStarted, Event{ClientID: "client-1"})
}
