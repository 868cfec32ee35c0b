package flush

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jiadezhende/CleanSightBackend/clientstore"
	"github.com/Jiadezhende/CleanSightBackend/errors"
	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/pkg/retry"
	"github.com/Jiadezhende/CleanSightBackend/storage"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

// fakeEncoder records encode calls and writes a stub file per segment.
type fakeEncoder struct {
	mu       sync.Mutex
	calls    []fakeCall
	failNext int
}

type fakeCall struct {
	path   string
	frames int
	fps    int
}

func (f *fakeEncoder) Encode(ctx context.Context, path string, frames [][]byte, fps int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext > 0 {
		f.failNext--
		return errors.WrapTransient(errors.ErrEncodeFailed, "fakeEncoder", "Encode", path)
	}
	f.calls = append(f.calls, fakeCall{path: path, frames: len(frames), fps: fps})
	return os.WriteFile(path, []byte("mp4"), 0o644)
}

func pair(t *testing.T, store *clientstore.Store, id string, seq uint64, ts int64, results map[string]task.Result) {
	t.Helper()

	raw := frame.New(id, []byte{0xFF, 0xD8, 1})
	raw.Seq = seq
	raw.Timestamp = ts
	proc := frame.New(id, []byte{0xFF, 0xD8, 2})
	proc.Seq = seq
	proc.Timestamp = ts
	proc.Keypoints = []frame.Keypoint{{Name: "center", X: 1, Y: 2}}
	require.NoError(t, store.AppendResult(id, raw, proc, results))
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestMaybeFlushBelowThreshold(t *testing.T) {
	store := clientstore.New()
	store.GetOrCreate("client-1")
	enc := &fakeEncoder{}
	f := New(store, enc, storage.NewMemStore(), t.TempDir(),
		WithSegmentLength(10), WithRetryConfig(fastRetry()))

	for seq := uint64(0); seq < 9; seq++ {
		pair(t, store, "client-1", seq, int64(1000+seq), nil)
	}

	report, err := f.MaybeFlush(context.Background(), "client-1")
	require.NoError(t, err)
	assert.False(t, report.Flushed)
	assert.Empty(t, enc.calls)

	rawLen, procLen := store.CacheLens("client-1")
	assert.Equal(t, 9, rawLen)
	assert.Equal(t, 9, procLen)
}

func TestFlushTwelveFramesTakesTen(t *testing.T) {
	store := clientstore.New(clientstore.WithRealtimeCapacity(5))
	store.GetOrCreate("client-1")
	store.SetTask("client-1", task.NewCleaningTask("task-9", ""))
	enc := &fakeEncoder{}
	mem := storage.NewMemStore()
	root := t.TempDir()
	f := New(store, enc, mem, root,
		WithSegmentLength(10), WithFrameRate(30), WithRetryConfig(fastRetry()))

	results := map[string]task.Result{"detection": {Success: true}}
	for seq := uint64(0); seq < 12; seq++ {
		pair(t, store, "client-1", seq, int64(5000+seq*33), results)
	}

	report, err := f.MaybeFlush(context.Background(), "client-1")
	require.NoError(t, err)
	assert.True(t, report.Flushed)
	assert.Equal(t, 10, report.FrameCount)
	assert.Zero(t, report.Dropped)

	// exactly two frames remain cached
	rawLen, procLen := store.CacheLens("client-1")
	assert.Equal(t, 2, rawLen)
	assert.Equal(t, 2, procLen)

	// two encodes at the nominal rate
	require.Len(t, enc.calls, 2)
	assert.Equal(t, 10, enc.calls[0].frames)
	assert.Equal(t, 30, enc.calls[0].fps)

	// layout <root>/<clientID>/<taskID>/hls/
	dir := filepath.Join(root, "client-1", "task-9", "hls")
	assert.True(t, strings.HasPrefix(enc.calls[0].path, filepath.Join(dir, "raw_segment_")))
	assert.True(t, strings.HasPrefix(enc.calls[1].path, filepath.Join(dir, "processed_segment_")))

	// two records registered
	recs := mem.All()
	require.Len(t, recs, 2)
	assert.Equal(t, storage.KindRaw, recs[0].Kind)
	assert.Equal(t, storage.KindProcessed, recs[1].Kind)
	assert.Equal(t, "task-9", recs[0].TaskID)
	assert.Equal(t, 10, recs[0].FrameCount)
	assert.Equal(t, int64(5000), recs[0].StartTime)
	assert.Equal(t, int64(5000+9*33), recs[0].EndTime)
	assert.NotEmpty(t, recs[1].KeypointsPath)

	// a second check does not flush again
	report, err = f.MaybeFlush(context.Background(), "client-1")
	require.NoError(t, err)
	assert.False(t, report.Flushed)
}

func TestFlushSidecarContents(t *testing.T) {
	store := clientstore.New()
	store.GetOrCreate("client-1")
	enc := &fakeEncoder{}
	f := New(store, enc, storage.NewMemStore(), t.TempDir(),
		WithSegmentLength(2), WithRetryConfig(fastRetry()))

	results := map[string]task.Result{
		"detection": {Success: true, Data: map[string]any{"hits": float64(3)}},
	}
	pair(t, store, "client-1", 0, 1000, results)
	pair(t, store, "client-1", 1, 1033, results)

	report, err := f.MaybeFlush(context.Background(), "client-1")
	require.NoError(t, err)
	require.True(t, report.Flushed)

	sidecar := filepath.Join(filepath.Dir(report.ProcPath), "keypoints_1000.json")
	data, err := os.ReadFile(sidecar)
	require.NoError(t, err)

	var entries []sidecarEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1000), entries[0].Timestamp)
	assert.Equal(t, uint64(0), entries[0].Seq)
	require.Len(t, entries[0].Keypoints, 1)
	assert.Equal(t, "center", entries[0].Keypoints[0].Name)
	assert.True(t, entries[0].InferenceResult["detection"].Success)
}

func TestFlushPlaylistsAccumulate(t *testing.T) {
	store := clientstore.New()
	store.GetOrCreate("client-1")
	enc := &fakeEncoder{}
	root := t.TempDir()
	f := New(store, enc, storage.NewMemStore(), root,
		WithSegmentLength(2), WithFrameRate(10), WithRetryConfig(fastRetry()))

	for seq := uint64(0); seq < 4; seq++ {
		pair(t, store, "client-1", seq, int64(1000+seq), nil)
	}
	for i := 0; i < 2; i++ {
		report, err := f.MaybeFlush(context.Background(), "client-1")
		require.NoError(t, err)
		require.True(t, report.Flushed)
	}

	dir := filepath.Join(root, "client-1", UnboundTaskID, "hls")
	for _, name := range []string{"raw_playlist.m3u8", "processed_playlist.m3u8"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		content := string(data)
		assert.Equal(t, 1, strings.Count(content, "#EXTM3U"), name)
		// 2 frames at 10fps is a 0.2s nominal duration
		assert.Equal(t, 2, strings.Count(content, "#EXTINF:0.200,"), name)
	}
}

func TestFlushEncodeFailureSkipsSegment(t *testing.T) {
	store := clientstore.New()
	store.GetOrCreate("client-1")
	enc := &fakeEncoder{failNext: 1}
	mem := storage.NewMemStore()
	f := New(store, enc, mem, t.TempDir(),
		WithSegmentLength(2), WithRetryConfig(fastRetry()))

	pair(t, store, "client-1", 0, 1000, nil)
	pair(t, store, "client-1", 1, 1001, nil)

	_, err := f.MaybeFlush(context.Background(), "client-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEncodeFailed))

	// drained frames are gone and nothing was registered
	rawLen, procLen := store.CacheLens("client-1")
	assert.Zero(t, rawLen)
	assert.Zero(t, procLen)
	assert.Empty(t, mem.All())
}

func TestFlushRecordRetriesThenSucceeds(t *testing.T) {
	store := clientstore.New()
	store.GetOrCreate("client-1")
	enc := &fakeEncoder{}
	mem := storage.NewMemStore()
	mem.FailNext(1)
	f := New(store, enc, mem, t.TempDir(),
		WithSegmentLength(2), WithRetryConfig(fastRetry()))

	pair(t, store, "client-1", 0, 1000, nil)
	pair(t, store, "client-1", 1, 1001, nil)

	report, err := f.MaybeFlush(context.Background(), "client-1")
	require.NoError(t, err)
	assert.True(t, report.Flushed)
	assert.Len(t, mem.All(), 2)
}

func TestFlushRecordExhaustionIsAtMostOnce(t *testing.T) {
	store := clientstore.New()
	store.GetOrCreate("client-1")
	enc := &fakeEncoder{}
	mem := storage.NewMemStore()
	mem.FailNext(10)
	f := New(store, enc, mem, t.TempDir(),
		WithSegmentLength(2), WithRetryConfig(fastRetry()))

	pair(t, store, "client-1", 0, 1000, nil)
	pair(t, store, "client-1", 1, 1001, nil)

	// flush itself still succeeds; the records are lost, not retried later
	report, err := f.MaybeFlush(context.Background(), "client-1")
	require.NoError(t, err)
	assert.True(t, report.Flushed)
	assert.Empty(t, mem.All())

	rawLen, _ := store.CacheLens("client-1")
	assert.Zero(t, rawLen)
}

func TestFlushUnboundClientUsesPlaceholderTaskID(t *testing.T) {
	store := clientstore.New()
	store.GetOrCreate("client-1")
	enc := &fakeEncoder{}
	mem := storage.NewMemStore()
	f := New(store, enc, mem, t.TempDir(),
		WithSegmentLength(2), WithRetryConfig(fastRetry()))

	pair(t, store, "client-1", 0, 1000, nil)
	pair(t, store, "client-1", 1, 1001, nil)

	report, err := f.MaybeFlush(context.Background(), "client-1")
	require.NoError(t, err)
	require.True(t, report.Flushed)

	recs := mem.All()
	require.Len(t, recs, 2)
	assert.Equal(t, UnboundTaskID, recs[0].TaskID)
	assert.Contains(t, report.RawPath, filepath.Join("client-1", UnboundTaskID, "hls"))
}

func TestFlushAlignmentDropsCounted(t *testing.T) {
	store := clientstore.New()
	store.GetOrCreate("client-1")
	enc := &fakeEncoder{}
	f := New(store, enc, storage.NewMemStore(), t.TempDir(),
		WithSegmentLength(3), WithRetryConfig(fastRetry()))

	// processed side is missing seq 1: raw 0,1,2,3 vs processed 0,2,3
	raws := []uint64{0, 1, 2, 3}
	procs := []uint64{0, 2, 3}
	for i, seq := range raws {
		raw := frame.New("client-1", []byte{0xFF, 0xD8, 1})
		raw.Seq = seq
		raw.Timestamp = int64(1000 + i)
		var proc *frame.Record
		if i < len(procs) {
			proc = frame.New("client-1", []byte{0xFF, 0xD8, 2})
			proc.Seq = procs[i]
			proc.Timestamp = int64(1000 + i)
		} else {
			proc = frame.New("client-1", []byte{0xFF, 0xD8, 2})
			proc.Seq = 99
			proc.Timestamp = int64(1000 + i)
		}
		require.NoError(t, store.AppendResult("client-1", raw, proc, nil))
	}

	report, err := f.MaybeFlush(context.Background(), "client-1")
	require.NoError(t, err)
	assert.True(t, report.Flushed)
	assert.Equal(t, 3, report.FrameCount)
	assert.Equal(t, 1, report.Dropped)
}
