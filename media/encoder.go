package media

import (
	"context"
)

// Encoder writes a run of JPEG frames to a video file at a nominal frame
// rate. The duration of the output is nominal (len(frames)/fps seconds),
// not derived from capture timestamps.
type Encoder interface {
	Encode(ctx context.Context, path string, frames [][]byte, fps int) error
}
