// Package cleansight is the backend for real-time endoscope cleaning
// inspection. It ingests live video frames from many clients at once, runs a
// pluggable set of inference tasks over every frame, streams annotated
// previews back to the clients and archives aligned raw and processed video
// segments with per-frame metadata.
//
// # Architecture
//
// Frames flow through a small number of cooperating packages:
//
//   - gateway: websocket ingest and live preview, HTTP status and health
//   - service: the façade tying ingest, task binding and lifecycle together
//   - clientstore: per-client queues (ready, caches, bounded realtime ring)
//   - pipeline: two-phase task execution over a shared worker pool
//   - task: the task contract, registry and cleaning-procedure state
//   - task/builtin: the stock detection, bubble, cleanliness and bending tasks
//   - scheduler: the background loop draining ready queues round-robin
//   - flush: segment assembly, ffmpeg encoding, playlists and sidecars
//   - storage: the segment record store
//
// Tasks with no dependencies run in parallel; tasks that require context from
// other tasks run serially afterwards, in registration order. Task outputs
// are folded into the annotated frame and into the bound cleaning-procedure
// state by a single writer, so tasks themselves stay free of shared state.
//
// # Supporting packages
//
// config carries file, environment and schema-validated configuration.
// metric wraps Prometheus registration. errors classifies failures as
// transient, invalid or fatal. pkg/ holds the generic buffer, retry, worker
// and timestamp utilities the rest of the tree builds on.
package cleansight
