// Package flush turns accumulated raw and processed frame caches into
// durable segment artifacts: two MP4 videos, a keypoints sidecar, two
// playlist appends and two registered segment records. A client flushes
// only when both caches hold a full segment; per-frame pairing is by
// sequence number. Persistence failures never corrupt in-memory state, and
// an encode failure skips the segment rather than halting the loop.
package flush
