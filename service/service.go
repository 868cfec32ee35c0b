package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jiadezhende/CleanSightBackend/clientstore"
	"github.com/Jiadezhende/CleanSightBackend/errors"
	"github.com/Jiadezhende/CleanSightBackend/frame"
	"github.com/Jiadezhende/CleanSightBackend/scheduler"
	"github.com/Jiadezhende/CleanSightBackend/task"
)

// Deps are the collaborators a Service is built from.
type Deps struct {
	Store     *clientstore.Store
	Registry  *task.Registry
	Scheduler *scheduler.Scheduler
	Events    *EventPublisher
	Logger    *slog.Logger
}

// Service is the ingest and status façade.
type Service struct {
	store    *clientstore.Store
	registry *task.Registry
	sched    *scheduler.Scheduler
	events   *EventPublisher
	logger   *slog.Logger

	lifecycleMu sync.Mutex
	running     bool
}

// StatusReport is the idempotent Status snapshot.
type StatusReport struct {
	Running bool                               `json:"running"`
	Clients int                                `json:"clients"`
	Queues  map[string]clientstore.QueueStatus `json:"queues"`
	Tasks   []task.TaskStatus                  `json:"tasks"`
}

// New builds a service from its collaborators.
func New(deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Registry == nil || deps.Scheduler == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Service", "New", "missing collaborator")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := deps.Events
	if events == nil {
		events = NewEventPublisher(nil, logger)
	}
	return &Service{
		store:    deps.Store,
		registry: deps.Registry,
		sched:    deps.Scheduler,
		events:   events,
		logger:   logger.With("component", "service"),
	}, nil
}

// Start brings the background scheduler up.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Service", "Start", "lifecycle")
	}
	if err := s.sched.Start(ctx); err != nil {
		return err
	}
	s.running = true
	s.events.Publish(EventServiceStarted, Event{})
	return nil
}

// Stop shuts the scheduler down. Idempotent.
func (s *Service) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	err := s.sched.Stop(timeout)
	s.events.Publish(EventServiceStopped, Event{})
	return err
}

// SubmitFrame ingests one raw JPEG frame for a client. Non-blocking; the
// frame waits in the ready queue until the scheduler picks it up.
func (s *Service) SubmitFrame(clientID string, jpeg []byte) error {
	if err := frame.ValidateJPEG(jpeg); err != nil {
		return errors.WrapInvalid(err, "Service", "SubmitFrame", "validate frame")
	}
	return s.store.SubmitFrame(clientID, frame.New(clientID, jpeg))
}

// SubmitEncodedFrame ingests a base64 JPEG, tolerating a data-URL prefix.
// A payload that fails to decode is rejected without mutating any state.
func (s *Service) SubmitEncodedFrame(clientID, payload string) error {
	jpeg, err := frame.DecodeBase64(payload)
	if err != nil {
		return errors.WrapInvalid(err, "Service", "SubmitEncodedFrame", "decode frame")
	}
	return s.SubmitFrame(clientID, jpeg)
}

// GetResult returns the newest processed frame for a client, falling back
// to the last completed result when the real-time queue is momentarily
// empty. With encoded set the bytes are a data:image/jpeg;base64, URL.
func (s *Service) GetResult(clientID string, encoded bool) ([]byte, bool) {
	rec, ok := s.store.GetResult(clientID)
	if !ok || rec == nil {
		return nil, false
	}
	if encoded {
		return []byte(frame.EncodeDataURL(rec.Image)), true
	}
	return rec.Image, true
}

// Status snapshots the whole engine in one pass. Safe to call at any time,
// running or not.
func (s *Service) Status() StatusReport {
	s.lifecycleMu.Lock()
	running := s.running
	s.lifecycleMu.Unlock()

	snap := s.store.Status()
	return StatusReport{
		Running: running,
		Clients: snap.Clients,
		Queues:  snap.Queues,
		Tasks:   s.registry.Status(),
	}
}

// BindTask creates a fresh cleaning task and binds it to the client. An
// empty taskID gets a generated one.
func (s *Service) BindTask(clientID, taskID, actorID string) *task.CleaningTask {
	if taskID == "" {
		taskID = uuid.NewString()
	}
	ct := task.NewCleaningTask(taskID, actorID)
	s.store.SetTask(clientID, ct)
	s.logger.Info("cleaning task bound", "client_id", clientID, "task_id", taskID)
	s.events.Publish(EventTaskBound, Event{ClientID: clientID, TaskID: taskID})
	return ct
}

// SetTask binds an existing cleaning task to the client; nil unbinds.
func (s *Service) SetTask(clientID string, ct *task.CleaningTask) {
	s.store.SetTask(clientID, ct)
}

// GetTask returns the client's bound cleaning task state.
func (s *Service) GetTask(clientID string) (task.CleaningSnapshot, bool) {
	ct, ok := s.store.GetTask(clientID)
	if !ok {
		return task.CleaningSnapshot{}, false
	}
	return ct.Snapshot(), true
}

// TerminateTask marks the bound cleaning task completed and unbinds it.
func (s *Service) TerminateTask(clientID string) error {
	ct, ok := s.store.GetTask(clientID)
	if !ok {
		return errors.WrapInvalid(errors.ErrNoBoundTask, "Service", "TerminateTask", clientID)
	}
	ct.ApplyDelta(&task.Delta{SetStatus: task.String(task.StatusCompleted)})
	s.store.SetTask(clientID, nil)
	s.logger.Info("cleaning task terminated", "client_id", clientID, "task_id", ct.ID())
	s.events.Publish(EventTaskTerminated, Event{ClientID: clientID, TaskID: ct.ID()})
	return nil
}

// RemoveClient discards all state for a client immediately. Unflushed
// cached frames are lost by design of the removal operation.
func (s *Service) RemoveClient(clientID string) bool {
	removed := s.store.RemoveClient(clientID)
	if removed {
		s.events.Publish(EventClientRemoved, Event{ClientID: clientID})
	}
	return removed
}

// SetRTMPURL records the client's stream URL.
func (s *Service) SetRTMPURL(clientID, url string) {
	s.store.SetRTMPURL(clientID, url)
}

// EnableTask toggles an inference task's participation in the pipeline.
func (s *Service) EnableTask(name string, enabled bool) error {
	if err := s.registry.Enable(name, enabled); err != nil {
		return err
	}
	s.logger.Info("inference task toggled", "task", name, "enabled", enabled)
	return nil
}
