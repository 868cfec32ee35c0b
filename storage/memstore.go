package storage

import (
	"context"
	"sync"

	"github.com/Jiadezhende/CleanSightBackend/errors"
)

// MemStore is an in-memory SegmentStore for tests. FailNext makes the next
// append fail, for exercising retry paths.
type MemStore struct {
	mu       sync.Mutex
	records  []SegmentRecord
	failNext int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// FailNext makes the next n appends return a transient error.
func (s *MemStore) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

func (s *MemStore) AppendSegmentRecord(ctx context.Context, rec SegmentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return errors.WrapTransient(errors.ErrStorageUnavailable, "MemStore", "AppendSegmentRecord", "injected")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *MemStore) QuerySegments(ctx context.Context, taskID string) ([]SegmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []SegmentRecord
	for _, rec := range s.records {
		if rec.TaskID == taskID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All returns every stored record in append order.
func (s *MemStore) All() []SegmentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SegmentRecord, len(s.records))
	copy(out, s.records)
	return out
}
