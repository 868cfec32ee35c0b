// Package clientstore holds all per-client state: the ready queue feeding
// the scheduler, the raw and processed caches drained by segment flushing,
// the fixed-capacity real-time queue serving live preview, the bound
// cleaning task and connection metadata. A single process-wide mutex guards
// the client map and every queue; all guarded operations are O(1) or bounded
// by a drain size, so the coarse lock stays cheap.
package clientstore
