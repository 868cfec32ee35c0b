// Package buffer provides a generic, thread-safe ring buffer with
// configurable overflow policies.
//
// The real-time preview queue is the primary consumer: a fixed-capacity ring
// with the DropOldest policy so live viewers always see the K most recent
// processed frames. Statistics are always collected; Prometheus metrics are
// optional via the WithMetrics functional option.
package buffer
