package flush

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Jiadezhende/CleanSightBackend/metric"
)

const serviceName = "flush"

// Metrics holds the flusher's prometheus collectors.
type Metrics struct {
	Segments       *prometheus.CounterVec
	EncodeFailures prometheus.Counter
	RecordFailures prometheus.Counter
	AlignDrops     prometheus.Counter
	FlushDuration  prometheus.Histogram
}

func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	m := &Metrics{
		Segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "segments_total",
			Help:      "Segments flushed",
		}, []string{"client", "kind"}),
		EncodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "encode_failures_total",
			Help:      "Segments skipped on video encode failure",
		}),
		RecordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "record_failures_total",
			Help:      "Segment records lost after retry exhaustion",
		}),
		AlignDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "alignment_drops_total",
			Help:      "Cache entries dropped during sequence alignment",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "duration_seconds",
			Help:      "End-to-end segment flush latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}

	if registry != nil {
		_ = registry.RegisterCounterVec(serviceName, "segments_total", m.Segments)
		_ = registry.RegisterCounter(serviceName, "encode_failures_total", m.EncodeFailures)
		_ = registry.RegisterCounter(serviceName, "record_failures_total", m.RecordFailures)
		_ = registry.RegisterCounter(serviceName, "alignment_drops_total", m.AlignDrops)
		_ = registry.RegisterHistogram(serviceName, "duration_seconds", m.FlushDuration)
	}
	return m
}
