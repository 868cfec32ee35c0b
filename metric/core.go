package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not component-specific)
type Metrics struct {
	// Service metrics
	ServiceStatus    *prometheus.GaugeVec
	FramesReceived   *prometheus.CounterVec
	FramesProcessed  *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	ErrorsTotal      *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cleansight",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=running)",
			},
			[]string{"service"},
		),

		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cleansight",
				Subsystem: "frames",
				Name:      "received_total",
				Help:      "Total number of frames received for inference",
			},
			[]string{"client"},
		),

		FramesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cleansight",
				Subsystem: "frames",
				Name:      "processed_total",
				Help:      "Total number of frames run through the inference pipeline",
			},
			[]string{"client", "status"},
		),

		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cleansight",
				Subsystem: "pipeline",
				Name:      "duration_seconds",
				Help:      "Per-frame inference pipeline latency",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"client"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cleansight",
				Subsystem: "service",
				Name:      "errors_total",
				Help:      "Total number of errors by component and kind",
			},
			[]string{"component", "kind"},
		),
	}
}
