package frame

import (
	"github.com/Jiadezhende/CleanSightBackend/pkg/timestamp"
)

// Keypoint is a single named image-space point produced by a detection task.
type Keypoint struct {
	Name       string  `json:"name,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Record is one captured frame.
//
// Seq is assigned per client in ingest order and never reused; the flusher
// pairs raw and processed records by Seq rather than by queue position.
type Record struct {
	ClientID  string     `json:"client_id"`
	Seq       uint64     `json:"seq"`
	Timestamp int64      `json:"timestamp"` // Unix milliseconds
	Image     []byte     `json:"-"`         // JPEG bytes
	Keypoints []Keypoint `json:"keypoints,omitempty"`
}

// New creates a record for a client with the current timestamp.
// Seq is assigned later by the queue store.
func New(clientID string, jpeg []byte) *Record {
	return &Record{
		ClientID:  clientID,
		Timestamp: timestamp.Now(),
		Image:     jpeg,
	}
}

// Clone returns a deep copy of the record. Tasks receive clones so Infer can
// never mutate the frame another task is reading.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	out := &Record{
		ClientID:  r.ClientID,
		Seq:       r.Seq,
		Timestamp: r.Timestamp,
	}
	if r.Image != nil {
		out.Image = make([]byte, len(r.Image))
		copy(out.Image, r.Image)
	}
	if r.Keypoints != nil {
		out.Keypoints = make([]Keypoint, len(r.Keypoints))
		copy(out.Keypoints, r.Keypoints)
	}
	return out
}

// WithImage returns a copy of the record carrying a different image buffer.
// Visualization uses this to hand the next task an updated frame without
// touching the original.
func (r *Record) WithImage(jpeg []byte) *Record {
	out := r.Clone()
	out.Image = jpeg
	return out
}
