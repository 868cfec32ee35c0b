package clientstore

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Jiadezhende/CleanSightBackend/metric"
)

const serviceName = "clientstore"

// Metrics holds the store's prometheus collectors.
type Metrics struct {
	Clients     prometheus.Gauge
	Submitted   *prometheus.CounterVec
	CacheDrops  *prometheus.CounterVec
	RateLimited *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	m := &Metrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "clients",
			Help:      "Currently tracked clients",
		}),
		Submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "frames_submitted_total",
			Help:      "Frames accepted into ready queues",
		}, []string{"client"}),
		CacheDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "cache_drops_total",
			Help:      "Cache entries dropped by backpressure or alignment",
		}, []string{"client", "reason"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cleansight",
			Subsystem: serviceName,
			Name:      "frames_rate_limited_total",
			Help:      "Frames rejected by the per-client ingest limiter",
		}, []string{"client"}),
	}

	if registry != nil {
		_ = registry.RegisterGauge(serviceName, "clients", m.Clients)
		_ = registry.RegisterCounterVec(serviceName, "frames_submitted_total", m.Submitted)
		_ = registry.RegisterCounterVec(serviceName, "cache_drops_total", m.CacheDrops)
		_ = registry.RegisterCounterVec(serviceName, "frames_rate_limited_total", m.RateLimited)
	}
	return m
}
