package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jiadezhende/CleanSightBackend/errors"
	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/metric"
	"github.com/Jiadezhende/CleanSightBackend/pkg/worker"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

const (
	defaultTaskTimeout = 5 * time.Second
	defaultWorkers     = 4
	defaultQueueSize   = 64
)

// job is one parallel-phase task invocation in flight on the worker pool.
type job struct {
	t    task.Task
	rec  *frame.Record
	tctx task.Context
	out  chan task.Result
}

// Output is the pipeline's per-frame product.
type Output struct {
	// Frame is the composed annotated frame.
	Frame *frame.Record

	// Results maps task name to its result, failures included.
	Results map[string]task.Result
}

// Pipeline executes the registered tasks over single frames.
type Pipeline struct {
	registry    *task.Registry
	pool        *worker.Pool[*job]
	taskTimeout time.Duration
	logger      *slog.Logger
	metrics     *Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTaskTimeout bounds each task invocation. Zero keeps the default of 5s.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.taskTimeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l.With("component", "pipeline")
		}
	}
}

// WithMetricsRegistry registers the pipeline's collectors.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(p *Pipeline) {
		p.metrics = newMetrics(registry)
	}
}

// New creates a pipeline over the given registry. workers and queueSize size
// the parallel-phase pool; non-positive values take the pool defaults.
func New(registry *task.Registry, workers, queueSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:    registry,
		taskTimeout: defaultTaskTimeout,
		logger:      slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = newMetrics(nil)
	}

	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p.pool = worker.NewPool(workers, queueSize, p.runJob)
	return p
}

// Start brings up the worker pool. The context bounds worker lifetime;
// cancelling it discards submissions not yet picked up.
func (p *Pipeline) Start(ctx context.Context) error {
	return p.pool.Start(ctx)
}

// Stop shuts the worker pool down, waiting up to timeout for in-flight
// tasks.
func (p *Pipeline) Stop(timeout time.Duration) error {
	return p.pool.Stop(timeout)
}

// PoolStats exposes the underlying pool statistics.
func (p *Pipeline) PoolStats() worker.PoolStats {
	return p.pool.Stats()
}

// runJob is the pool processor for parallel-phase tasks.
func (p *Pipeline) runJob(ctx context.Context, j *job) error {
	j.out <- p.invoke(j.t, j.rec, j.tctx)
	return nil
}

// invoke calls a task's Infer with panic recovery.
func (p *Pipeline) invoke(t task.Task, rec *frame.Record, tctx task.Context) (res task.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.TaskPanics.WithLabelValues(t.Name()).Inc()
			p.logger.Error("task panicked",
				"task", t.Name(),
				"client_id", rec.ClientID,
				"panic", fmt.Sprint(r))
			res = task.Failure(fmt.Sprintf("task panicked: %v", r))
		}
	}()
	return t.Infer(rec, tctx)
}

// await collects a task result with the per-task deadline. The producing
// goroutine keeps running past a timeout; its late result lands in the
// buffered channel and is dropped with it.
func (p *Pipeline) await(ctx context.Context, t task.Task, out <-chan task.Result, started time.Time) task.Result {
	timer := time.NewTimer(p.taskTimeout)
	defer timer.Stop()

	var res task.Result
	select {
	case res = <-out:
	case <-timer.C:
		p.metrics.TaskTimeouts.WithLabelValues(t.Name()).Inc()
		res = task.Failure(fmt.Sprintf("inference timed out after %s", p.taskTimeout))
	case <-ctx.Done():
		res = task.Failure(ctx.Err().Error())
	}

	p.metrics.TaskDuration.WithLabelValues(t.Name()).Observe(time.Since(started).Seconds())
	if !res.Success {
		p.metrics.TaskFailures.WithLabelValues(t.Name()).Inc()
		p.logger.Warn("task failed", "task", t.Name(), "error", res.Error)
	}
	return res
}

// Process runs the two execution phases over one frame, composes the
// annotated output and applies the collected cleaning-task deltas. A task
// failure lands in the result map; only a cancelled context yields an error.
func (p *Pipeline) Process(ctx context.Context, rec *frame.Record, bound *task.CleaningTask) (*Output, error) {
	if rec == nil || len(rec.Image) == 0 {
		return nil, errors.WrapInvalid(errors.ErrEmptyFrame, "Pipeline", "Process", "validate frame")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.metrics.Frames.Inc()

	parallel, serial := p.registry.Ordered()
	results := make(map[string]task.Result, len(parallel)+len(serial))

	// Phase 1: independent tasks fan out on the pool. A full queue falls
	// back to inline execution so the frame is never dropped.
	type pending struct {
		t       task.Task
		out     chan task.Result
		started time.Time
	}
	inflight := make([]pending, 0, len(parallel))
	for _, t := range parallel {
		j := &job{
			t:    t,
			rec:  rec.Clone(),
			tctx: task.Context{Task: bound},
			out:  make(chan task.Result, 1),
		}
		started := time.Now()
		if err := p.pool.Submit(j); err != nil {
			j.out <- p.invoke(t, j.rec, j.tctx)
		}
		inflight = append(inflight, pending{t: t, out: j.out, started: started})
	}
	for _, pend := range inflight {
		results[pend.t.Name()] = p.await(ctx, pend.t, pend.out, pend.started)
	}

	// Phase 2: dependent tasks run serially with the accumulated results.
	for _, t := range serial {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tctx := task.Context{Task: bound, Results: results}
		out := make(chan task.Result, 1)
		started := time.Now()
		go func(t task.Task, rec *frame.Record) {
			out <- p.invoke(t, rec, tctx)
		}(t, rec.Clone())
		results[t.Name()] = p.await(ctx, t, out, started)
	}

	// Composition: fold Visualize over successful results in phase order.
	composed := rec.Clone()
	for _, t := range append(parallel, serial...) {
		res, ok := results[t.Name()]
		if !ok || !res.Success {
			continue
		}
		if next := p.visualize(t, composed, res); next != nil {
			composed = next
		}
	}

	// Deltas apply in the same order, after both phases settled.
	for _, t := range append(parallel, serial...) {
		if res, ok := results[t.Name()]; ok && res.Success && res.Delta != nil {
			bound.ApplyDelta(res.Delta)
		}
	}

	return &Output{Frame: composed, Results: results}, nil
}

// visualize calls a task's Visualize with panic recovery. A panic keeps the
// frame composed so far.
func (p *Pipeline) visualize(t task.Task, rec *frame.Record, res task.Result) (out *frame.Record) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.TaskPanics.WithLabelValues(t.Name()).Inc()
			p.logger.Error("visualize panicked", "task", t.Name(), "panic", fmt.Sprint(r))
			out = nil
		}
	}()
	return t.Visualize(rec, res)
}
