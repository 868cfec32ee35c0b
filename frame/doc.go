// Package frame defines the frame record flowing through the inference
// pipeline along with the JPEG codec and overlay drawing helpers used by
// ingest and task visualization.
//
// A Record is created on ingest and consumed or dropped by queue policies; it
// carries the per-client sequence number the segment flusher uses to align the
// raw and processed sides of a drain.
package frame
