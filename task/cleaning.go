package task

import (
	"sync"

	"github.com/Jiadezhende/CleanSightBackend/pkg/timestamp"
)

// Cleaning task status values. The task-orchestration collaborator owns the
// full lifecycle; the pipeline only reads and mutates fields.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// CleaningTask is one inspection run optionally bound to a client. It is
// created and destroyed by the external orchestration layer; the pipeline
// mutates it exclusively through ApplyDelta and never persists it.
type CleaningTask struct {
	mu sync.Mutex

	id             string
	actorID        string
	currentStep    string
	status         string
	bendCount      int
	bubbleDetected bool
	fullySubmerged bool
	createdAt      int64
	updatedAt      int64
}

// CleaningSnapshot is a point-in-time copy of a cleaning task's state,
// safe to serialize and hand across goroutines.
type CleaningSnapshot struct {
	ID             string `json:"task_id"`
	ActorID        string `json:"actor_id,omitempty"`
	CurrentStep    string `json:"current_step"`
	Status         string `json:"status"`
	BendCount      int    `json:"bend_count"`
	BubbleDetected bool   `json:"bubble_detected"`
	FullySubmerged bool   `json:"fully_submerged"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// NewCleaningTask creates an active cleaning task.
func NewCleaningTask(id, actorID string) *CleaningTask {
	now := timestamp.Now()
	return &CleaningTask{
		id:        id,
		actorID:   actorID,
		status:    StatusActive,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the task identifier.
func (t *CleaningTask) ID() string {
	if t == nil {
		return ""
	}
	return t.id
}

// ApplyDelta applies a structured mutation. The pipeline coordinator is the
// single writer; the lock only guards against concurrent readers from the
// status facade.
func (t *CleaningTask) ApplyDelta(d *Delta) {
	if t == nil || d == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	if d.IncrementBend {
		t.bendCount++
		changed = true
	}
	if d.BubbleDetected != nil {
		t.bubbleDetected = *d.BubbleDetected
		changed = true
	}
	if d.FullySubmerged != nil {
		t.fullySubmerged = *d.FullySubmerged
		changed = true
	}
	if d.SetStep != nil {
		t.currentStep = *d.SetStep
		changed = true
	}
	if d.SetStatus != nil {
		t.status = *d.SetStatus
		changed = true
	}

	if changed {
		t.updatedAt = timestamp.Now()
	}
}

// Snapshot returns a copy of the task state.
func (t *CleaningTask) Snapshot() CleaningSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return CleaningSnapshot{
		ID:             t.id,
		ActorID:        t.actorID,
		CurrentStep:    t.currentStep,
		Status:         t.status,
		BendCount:      t.bendCount,
		BubbleDetected: t.bubbleDetected,
		FullySubmerged: t.fullySubmerged,
		CreatedAt:      t.createdAt,
		UpdatedAt:      t.updatedAt,
	}
}
