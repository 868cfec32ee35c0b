// Package storage is the persistence collaborator for segment metadata. The
// flusher registers one record per encoded segment; the traceback side of
// the product queries them later by cleaning task. The store is opaque and
// may fail; callers decide their own retry policy.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/Jiadezhende/CleanSightBackend/pkg/timestamp"
)

// Segment kinds.
const (
	KindRaw       = "raw"
	KindProcessed = "processed"
)

// SegmentRecord describes one persisted video segment.
type SegmentRecord struct {
	ID            string `json:"id"`
	ClientID      string `json:"client_id"`
	TaskID        string `json:"task_id"`
	Kind          string `json:"kind"`
	Path          string `json:"path"`
	KeypointsPath string `json:"keypoints_path,omitempty"`
	PlaylistPath  string `json:"playlist_path,omitempty"`
	StartTime     int64  `json:"start_time"`
	EndTime       int64  `json:"end_time"`
	FrameCount    int    `json:"frame_count"`
	CreatedAt     int64  `json:"created_at"`
}

// NewSegmentRecord creates a record with a fresh id and creation time.
func NewSegmentRecord(clientID, taskID, kind, path string) SegmentRecord {
	return SegmentRecord{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		TaskID:    taskID,
		Kind:      kind,
		Path:      path,
		CreatedAt: timestamp.Now(),
	}
}

// SegmentStore persists segment records.
type SegmentStore interface {
	// AppendSegmentRecord registers one segment. Synchronous; a returned
	// error means the record was not persisted.
	AppendSegmentRecord(ctx context.Context, rec SegmentRecord) error

	// QuerySegments returns all records for a cleaning task, oldest first.
	QuerySegments(ctx context.Context, taskID string) ([]SegmentRecord, error)
}
