// Package retry provides simple exponential backoff retry logic.
//
// The segment flusher uses it to retry transient segment-record registrations
// before giving up; persistence stays best-effort, so the attempt budget is
// deliberately small.
package retry
