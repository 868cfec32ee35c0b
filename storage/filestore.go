package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/Jiadezhende/CleanSightBackend/errors"
)

const ledgerName = "segments.jsonl"

// FileStore keeps segment records in a JSON-lines ledger under the output
// root. Appends are synchronous and fsync-free; the ledger survives
// restarts and is scanned linearly on query, which is fine at segment
// granularity.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store writing its ledger under root.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "FileStore", "New", "output root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "FileStore", "New", "create output root")
	}
	return &FileStore{path: filepath.Join(root, ledgerName)}, nil
}

// AppendSegmentRecord appends one JSON line to the ledger.
func (s *FileStore) AppendSegmentRecord(ctx context.Context, rec SegmentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.WrapInvalid(err, "FileStore", "AppendSegmentRecord", "marshal record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.WrapTransient(errors.ErrStorageUnavailable, "FileStore", "AppendSegmentRecord", s.path)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return errors.WrapTransient(errors.ErrStorageUnavailable, "FileStore", "AppendSegmentRecord", s.path)
	}
	return nil
}

// QuerySegments scans the ledger for records belonging to taskID. Rows that
// fail to parse are skipped rather than failing the query.
func (s *FileStore) QuerySegments(ctx context.Context, taskID string) ([]SegmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapTransient(errors.ErrStorageUnavailable, "FileStore", "QuerySegments", s.path)
	}
	defer f.Close()

	var out []SegmentRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec SegmentRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.TaskID == taskID {
			out = append(out, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapTransient(errors.ErrStorageUnavailable, "FileStore", "QuerySegments", s.path)
	}
	return out, nil
}
