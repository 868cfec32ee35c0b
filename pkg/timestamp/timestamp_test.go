package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	ms := ToUnixMs(now)
	assert.Equal(t, now.UTC(), FromUnixMs(ms))
}

func TestZeroValues(t *testing.T) {
	assert.Equal(t, int64(0), ToUnixMs(time.Time{}))
	assert.True(t, FromUnixMs(0).IsZero())
	assert.Equal(t, "", Format(0))
}

func TestFormat(t *testing.T) {
	// 2024-01-15T10:30:00.500Z
	ms := int64(1705314600500)
	assert.Equal(t, "2024-01-15T10:30:00.500Z", Format(ms))
}

func TestFileStamp(t *testing.T) {
	assert.Equal(t, "1705314600500", FileStamp(1705314600500))
	assert.NotEmpty(t, FileStamp(0))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int64
	}{
		{"unix seconds", int64(1705314600), 1705314600000},
		{"unix milliseconds", int64(1705314600500), 1705314600500},
		{"int seconds", 1705314600, 1705314600000},
		{"float64 seconds", float64(1705314600), 1705314600000},
		{"rfc3339", "2024-01-15T10:30:00Z", 1705314600000},
		{"garbage string", "not-a-time", 0},
		{"negative", int64(-5), 0},
		{"unsupported type", struct{}{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Parse(tt.input))
		})
	}
}
