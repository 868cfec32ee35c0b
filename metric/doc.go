// Package metric provides Prometheus-based metrics collection and an HTTP
// server for CleanSight monitoring and observability.
//
// The package offers a centralized metrics registry managing both core
// platform metrics (service status, frame throughput, pipeline latency) and
// component-specific metrics registered by the queue store, pipeline, flusher
// and worker pool. An HTTP server exposes everything in Prometheus format.
//
// Core metrics are registered automatically by NewMetricsRegistry; components
// register their own collectors through the MetricsRegistrar interface so a
// nil registry simply disables them.
package metric
