// Package scheduler drives the processing loop: one background goroutine
// round-robins the current client set, pops exactly one ready frame per
// client per pass, runs the inference pipeline, records the result and
// invokes the flush check. Failures are per client and never halt the loop.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jiadezhende/CleanSightBackend/clientstore"
	"github.com/Jiadezhende/CleanSightBackend/errors"
	"github.com/Jiadezhende/CleanSightBackend/flush"
	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/metric"
	"github.com/Jiadezhende/CleanSightBackend/pipeline"
)

const defaultIdleSleep = 10 * time.Millisecond

// Scheduler owns the background processing loop.
type Scheduler struct {
	store   *clientstore.Store
	pipe    *pipeline.Pipeline
	flusher *flush.Flusher

	idleSleep time.Duration
	logger    *slog.Logger
	core      *metric.Metrics

	lifecycleMu sync.Mutex
	initialized bool
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}

	framesProcessed atomic.Int64
	framesFailed    atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIdleSleep sets the pause after a pass that found no work.
func WithIdleSleep(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.idleSleep = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l.With("component", "scheduler")
		}
	}
}

// WithMetricsRegistry wires the platform frame counters.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(s *Scheduler) {
		if registry != nil {
			s.core = registry.CoreMetrics()
		}
	}
}

// New creates a scheduler over the store, pipeline and flusher.
func New(store *clientstore.Store, pipe *pipeline.Pipeline, flusher *flush.Flusher, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		pipe:      pipe,
		flusher:   flusher,
		idleSleep: defaultIdleSleep,
		logger:    slog.Default().With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize validates the scheduler's collaborators.
func (s *Scheduler) Initialize() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.store == nil || s.pipe == nil || s.flusher == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Scheduler", "Initialize", "missing collaborator")
	}
	s.initialized = true
	return nil
}

// Start brings up the pipeline worker pool and the loop goroutine. The
// given context is an outer bound; Stop also terminates the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.initialized {
		return errors.WrapFatal(errors.ErrNotStarted, "Scheduler", "Start", "initialize first")
	}
	if s.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Scheduler", "Start", "lifecycle")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	if err := s.pipe.Start(loopCtx); err != nil {
		cancel()
		return err
	}

	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	if s.core != nil {
		s.core.ServiceStatus.WithLabelValues("scheduler").Set(1)
	}

	go s.run(loopCtx)
	s.logger.Info("scheduler started", "idle_sleep", s.idleSleep)
	return nil
}

// Stop terminates the loop and shuts the pipeline pool down. Cancelling the
// loop context first means queued pool submissions are discarded while
// in-flight task calls finish or hit their timeout. Idempotent.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	s.cancel()

	select {
	case <-s.done:
	case <-time.After(timeout):
		s.logger.Warn("loop did not stop within timeout", "timeout", timeout)
	}

	err := s.pipe.Stop(timeout)
	if s.core != nil {
		s.core.ServiceStatus.WithLabelValues("scheduler").Set(0)
	}
	s.logger.Info("scheduler stopped",
		"frames_processed", s.framesProcessed.Load(),
		"frames_failed", s.framesFailed.Load())
	return err
}

// Running reports whether the loop is live.
func (s *Scheduler) Running() bool {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.running
}

// FramesProcessed returns the lifetime processed-frame count.
func (s *Scheduler) FramesProcessed() int64 {
	return s.framesProcessed.Load()
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		worked := false
		for _, id := range s.store.ClientIDs() {
			if ctx.Err() != nil {
				return
			}
			rec, ok := s.store.PopReady(id)
			if !ok {
				continue
			}
			worked = true
			s.processOne(ctx, id, rec)
		}

		if !worked {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.idleSleep):
			}
		}
	}
}

// processOne runs the pipeline over a single frame and records the outcome.
// Errors are logged and counted; the loop and the other clients carry on.
func (s *Scheduler) processOne(ctx context.Context, id string, rec *frame.Record) {
	bound, _ := s.store.GetTask(id)

	out, err := s.pipe.Process(ctx, rec, bound)
	if err != nil {
		s.framesFailed.Add(1)
		if s.core != nil {
			s.core.FramesProcessed.WithLabelValues(id, "error").Inc()
		}
		if ctx.Err() == nil {
			s.logger.Error("pipeline failed", "client_id", id, "seq", rec.Seq, "error", err)
		}
		return
	}

	if err := s.store.AppendResult(id, rec, out.Frame, out.Results); err != nil {
		s.logger.Warn("result dropped", "client_id", id, "seq", rec.Seq, "error", err)
	}

	s.framesProcessed.Add(1)
	if s.core != nil {
		s.core.FramesProcessed.WithLabelValues(id, "ok").Inc()
	}

	if _, err := s.flusher.MaybeFlush(ctx, id); err != nil && ctx.Err() == nil {
		s.logger.Error("flush failed", "client_id", id, "error", err)
	}
}
