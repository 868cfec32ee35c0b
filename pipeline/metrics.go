package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Jiadezhende/CleanSightBackend/metric"
)

const serviceName = "pipeline"

// Metrics holds the pipeline's prometheus collectors.
type Metrics struct {
	TaskDuration *prometheus.HistogramVec
	TaskFailures *prometheus.CounterVec
	TaskTimeouts *prometheus.CounterVec
	TaskPanics   *prometheus.CounterVec
	Frames       prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	m := &Metrics{
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "task_duration_seconds",
			Help:      "Inference task execution time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		TaskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "task_failures_total",
			Help:      "Inference task failures",
		}, []string{"task"}),
		TaskTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "task_timeouts_total",
			Help:      "Inference task timeouts",
		}, []string{"task"}),
		TaskPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "task_panics_total",
			Help:      "Inference task panics recovered",
		}, []string{"task"}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "frames_total",
			Help:      "Frames run through the pipeline",
		}),
	}

	if registry != nil {
		_ = registry.RegisterHistogramVec(serviceName, "task_duration_seconds", m.TaskDuration)
		_ = registry.RegisterCounterVec(serviceName, "task_failures_total", m.TaskFailures)
		_ = registry.RegisterCounterVec(serviceName, "task_timeouts_total", m.TaskTimeouts)
		_ = registry.RegisterCounterVec(serviceName, "task_panics_total", m.TaskPanics)
		_ = registry.RegisterCounter(serviceName, "frames_total", m.Frames)
	}
	return m
}
