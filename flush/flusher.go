package flush

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Jiadezhende/CleanSightBackend/clientstore"
	"github.com/Jiadezhende/CleanSightBackend/errors"
	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/media"
	"github.com/Jiadezhende/CleanSightBackend/metric"
	"github.com/Jiadezhende/CleanSightBackend/pkg/retry"
	"github.com/Jiadezhende/CleanSightBackend/storage"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

const (
	// UnboundTaskID is the path component used when a client has no
	// cleaning task bound at flush time.
	UnboundTaskID = "unbound"

	defaultSegmentLength = 10
	defaultFrameRate     = 30
)

// sidecarEntry is one row of the keypoints sidecar, one per processed
// frame in the segment.
type sidecarEntry struct {
	Timestamp       int64                  `json:"timestamp"`
	Seq             uint64                 `json:"seq"`
	Keypoints       []frame.Keypoint       `json:"keypoints"`
	InferenceResult map[string]task.Result `json:"inference_result"`
}

// Report summarizes one flush.
type Report struct {
	Flushed    bool
	FrameCount int
	Dropped    int
	RawPath    string
	ProcPath   string
}

// Flusher drains full segments from the client caches into video and
// metadata artifacts.
type Flusher struct {
	store    *clientstore.Store
	encoder  media.Encoder
	segments storage.SegmentStore

	segmentLen int
	frameRate  int
	root       string
	retryCfg   retry.Config

	mu        sync.Mutex
	playlists map[string]*media.Playlist

	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Flusher.
type Option func(*Flusher)

// WithSegmentLength sets the frames-per-segment threshold.
func WithSegmentLength(n int) Option {
	return func(f *Flusher) {
		if n > 0 {
			f.segmentLen = n
		}
	}
}

// WithFrameRate sets the nominal encode rate.
func WithFrameRate(fps int) Option {
	return func(f *Flusher) {
		if fps > 0 {
			f.frameRate = fps
		}
	}
}

// WithRetryConfig overrides the segment-record retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(f *Flusher) { f.retryCfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flusher) {
		if l != nil {
			f.logger = l.With("component", "flush")
		}
	}
}

// WithMetricsRegistry registers the flusher's collectors.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(f *Flusher) { f.metrics = newMetrics(registry) }
}

// New creates a flusher writing artifacts under root.
func New(store *clientstore.Store, encoder media.Encoder, segments storage.SegmentStore, root string, opts ...Option) *Flusher {
	f := &Flusher{
		store:      store,
		encoder:    encoder,
		segments:   segments,
		segmentLen: defaultSegmentLength,
		frameRate:  defaultFrameRate,
		root:       root,
		retryCfg:   retry.DefaultConfig(),
		playlists:  make(map[string]*media.Playlist),
		logger:     slog.Default().With("component", "flush"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.metrics == nil {
		f.metrics = newMetrics(nil)
	}
	return f
}

// SegmentLength returns the configured frames-per-segment threshold.
func (f *Flusher) SegmentLength() int { return f.segmentLen }

// MaybeFlush flushes the client if both caches hold at least a full
// segment. Called by the scheduler after every processed frame.
func (f *Flusher) MaybeFlush(ctx context.Context, clientID string) (Report, error) {
	rawLen, procLen := f.store.CacheLens(clientID)
	if rawLen < f.segmentLen || procLen < f.segmentLen {
		return Report{}, nil
	}
	return f.Flush(ctx, clientID)
}

// Flush drains up to one segment of aligned pairs and writes all artifacts.
// The drained frames do not return to the caches; a video encode failure
// therefore loses them, which is counted and logged.
func (f *Flusher) Flush(ctx context.Context, clientID string) (Report, error) {
	started := time.Now()

	taskID := UnboundTaskID
	if t, ok := f.store.GetTask(clientID); ok {
		taskID = t.ID()
	}

	raw, processed, dropped := f.store.DrainAligned(clientID, f.segmentLen)
	if dropped > 0 {
		f.metrics.AlignDrops.Add(float64(dropped))
	}
	if len(raw) == 0 {
		return Report{Dropped: dropped}, nil
	}

	dir := filepath.Join(f.root, clientID, taskID, "hls")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Report{Dropped: dropped}, errors.WrapTransient(err, "Flusher", "Flush", "create segment dir")
	}

	stamp := fmt.Sprintf("%d", raw[0].Timestamp)
	rawPath := filepath.Join(dir, "raw_segment_"+stamp+".mp4")
	procPath := filepath.Join(dir, "processed_segment_"+stamp+".mp4")
	sidecarPath := filepath.Join(dir, "keypoints_"+stamp+".json")

	rawFrames := make([][]byte, len(raw))
	for i, rec := range raw {
		rawFrames[i] = rec.Image
	}
	procFrames := make([][]byte, len(processed))
	for i, e := range processed {
		procFrames[i] = e.Frame.Image
	}

	if err := f.encoder.Encode(ctx, rawPath, rawFrames, f.frameRate); err != nil {
		f.metrics.EncodeFailures.Inc()
		f.logger.Error("raw segment encode failed, frames lost",
			"client_id", clientID, "frames", len(raw), "error", err)
		return Report{Dropped: dropped}, err
	}
	if err := f.encoder.Encode(ctx, procPath, procFrames, f.frameRate); err != nil {
		f.metrics.EncodeFailures.Inc()
		f.logger.Error("processed segment encode failed, frames lost",
			"client_id", clientID, "frames", len(processed), "error", err)
		return Report{Dropped: dropped}, err
	}

	keypointsPath := f.writeSidecar(sidecarPath, processed, clientID)

	duration := float64(len(raw)) / float64(f.frameRate)
	rawList := f.playlist(filepath.Join(dir, "raw_playlist.m3u8"))
	procList := f.playlist(filepath.Join(dir, "processed_playlist.m3u8"))
	if err := rawList.Append(filepath.Base(rawPath), duration); err != nil {
		f.logger.Warn("playlist append failed", "client_id", clientID, "error", err)
	}
	if err := procList.Append(filepath.Base(procPath), duration); err != nil {
		f.logger.Warn("playlist append failed", "client_id", clientID, "error", err)
	}

	startTS := raw[0].Timestamp
	endTS := raw[len(raw)-1].Timestamp

	rawRec := storage.NewSegmentRecord(clientID, taskID, storage.KindRaw, rawPath)
	rawRec.PlaylistPath = rawList.Path()
	rawRec.StartTime = startTS
	rawRec.EndTime = endTS
	rawRec.FrameCount = len(raw)

	procRec := storage.NewSegmentRecord(clientID, taskID, storage.KindProcessed, procPath)
	procRec.KeypointsPath = keypointsPath
	procRec.PlaylistPath = procList.Path()
	procRec.StartTime = startTS
	procRec.EndTime = endTS
	procRec.FrameCount = len(processed)

	f.register(ctx, rawRec)
	f.register(ctx, procRec)

	f.metrics.Segments.WithLabelValues(clientID, storage.KindRaw).Inc()
	f.metrics.Segments.WithLabelValues(clientID, storage.KindProcessed).Inc()
	f.metrics.FlushDuration.Observe(time.Since(started).Seconds())
	f.logger.Info("segment flushed",
		"client_id", clientID,
		"task_id", taskID,
		"frames", len(raw),
		"dropped", dropped,
		"duration_s", duration)

	return Report{
		Flushed:    true,
		FrameCount: len(raw),
		Dropped:    dropped,
		RawPath:    rawPath,
		ProcPath:   procPath,
	}, nil
}

// writeSidecar writes the per-frame keypoints and results. A sidecar write
// failure does not fail the flush; the segment record simply carries no
// keypoints path.
func (f *Flusher) writeSidecar(path string, processed []*clientstore.Entry, clientID string) string {
	entries := make([]sidecarEntry, len(processed))
	for i, e := range processed {
		entries[i] = sidecarEntry{
			Timestamp:       e.Frame.Timestamp,
			Seq:             e.Frame.Seq,
			Keypoints:       e.Frame.Keypoints,
			InferenceResult: e.Results,
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		f.logger.Warn("keypoints sidecar write failed", "client_id", clientID, "error", err)
		return ""
	}
	return path
}

// playlist returns the rolling playlist for a path, creating it on first
// use.
func (f *Flusher) playlist(path string) *media.Playlist {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.playlists[path]; ok {
		return p
	}
	p := media.NewPlaylist(path, 10)
	f.playlists[path] = p
	return p
}

// register persists one segment record with bounded retries. Exhaustion is
// logged and counted; the artifacts stay on disk without a ledger row.
func (f *Flusher) register(ctx context.Context, rec storage.SegmentRecord) {
	err := retry.Do(ctx, f.retryCfg, func() error {
		appendErr := f.segments.AppendSegmentRecord(ctx, rec)
		if appendErr != nil && !errors.IsTransient(appendErr) {
			return retry.NonRetryable(appendErr)
		}
		return appendErr
	})
	if err != nil {
		f.metrics.RecordFailures.Inc()
		f.logger.Error("segment record lost",
			"client_id", rec.ClientID,
			"kind", rec.Kind,
			"path", rec.Path,
			"error", err)
	}
}
