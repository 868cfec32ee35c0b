package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Jiadezhende/CleanSightBackend/metric"
)

// bufferMetrics exposes ring buffer statistics as Prometheus metrics.
type bufferMetrics struct {
	size    prometheus.Gauge
	fill    prometheus.Gauge
	writes  prometheus.Counter
	reads   prometheus.Counter
	dropped prometheus.Counter
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	m := &bufferMetrics{
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_size",
			Help: "Current number of buffered items",
		}),
		fill: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_fill_ratio",
			Help: "Buffer fill ratio (0-1)",
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_writes_total",
			Help: "Total items written to the buffer",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_reads_total",
			Help: "Total items read from the buffer",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_dropped_total",
			Help: "Total items dropped by the overflow policy",
		}),
	}

	serviceName := "buffer"
	if err := registry.RegisterGauge(serviceName, prefix+"_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(serviceName, prefix+"_fill_ratio", m.fill); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_writes_total", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_reads_total", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_dropped_total", m.dropped); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordDrop() {
	m.dropped.Inc()
}

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	if capacity > 0 {
		m.fill.Set(float64(size) / float64(capacity))
	}
}
