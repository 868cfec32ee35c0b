// Package timestamp provides standardized Unix timestamp handling.
//
// Frame records, segments and cleaning tasks all carry int64 milliseconds
// since the Unix epoch (UTC) as the canonical timestamp format. A value of 0
// means "not set".
package timestamp

import (
	"fmt"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to a time.Time in UTC.
// A zero timestamp yields the zero time.Time.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Format renders a timestamp as RFC3339 with millisecond precision.
// Returns an empty string for the zero timestamp.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return FromUnixMs(ms).Format("2006-01-02T15:04:05.000Z07:00")
}

// FileStamp renders a timestamp as a filesystem-safe component for artifact
// names (raw_segment_<stamp>.mp4 and friends).
func FileStamp(ms int64) string {
	if ms == 0 {
		ms = Now()
	}
	return fmt.Sprintf("%d", ms)
}

// Parse accepts RFC3339 strings, Unix seconds, or Unix milliseconds and
// normalizes them to Unix milliseconds. Returns 0 when the value cannot be
// interpreted.
func Parse(v any) int64 {
	switch t := v.(type) {
	case int64:
		return normalizeEpoch(t)
	case int:
		return normalizeEpoch(int64(t))
	case float64:
		return normalizeEpoch(int64(t))
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UnixMilli()
		}
		return 0
	case time.Time:
		return ToUnixMs(t)
	default:
		return 0
	}
}

// normalizeEpoch guesses whether a numeric epoch is in seconds or
// milliseconds. Values before ~2001-09 in milliseconds are treated as seconds.
func normalizeEpoch(v int64) int64 {
	if v <= 0 {
		return 0
	}
	if v < 1_000_000_000_000 {
		return v * 1000
	}
	return v
}
