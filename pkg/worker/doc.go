// Package worker provides a generic bounded worker pool.
//
// The inference pipeline uses a pool to fan out the independent tasks of a
// single frame; the pool supplies intra-frame parallelism only. Submissions
// are non-blocking: when the queue is full the work item is dropped and the
// caller is told, never blocked.
package worker
