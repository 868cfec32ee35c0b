package service

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/Jiadezhende/CleanSightBackend/pkg/timestamp"
)

// Event subjects, published under the cleansight.events.> hierarchy.
const (
	subjectPrefix = "cleansight.events."

	EventServiceStarted = "service.started"
	EventServiceStopped = "service.stopped"
	EventClientRemoved  = "client.removed"
	EventTaskBound      = "task.bound"
	EventTaskTerminated = "task.terminated"
)

// Event is the wire shape of one domain event.
type Event struct {
	Subject   string         `json:"subject"`
	Timestamp int64          `json:"timestamp"`
	ClientID  string         `json:"client_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// EventPublisher publishes domain events to NATS. A nil connection disables
// publishing entirely; publish failures are logged, never surfaced, so the
// hot path cannot be stalled by the event bus.
type EventPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewEventPublisher creates a publisher. conn may be nil.
func NewEventPublisher(conn *nats.Conn, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{conn: conn, logger: logger.With("component", "events")}
}

// Enabled reports whether events will actually be published.
func (p *EventPublisher) Enabled() bool {
	return p != nil && p.conn != nil
}

// Publish emits one event. Fire and forget.
func (p *EventPublisher) Publish(subject string, ev Event) {
	if !p.Enabled() {
		return
	}

	ev.Subject = subject
	if ev.Timestamp == 0 {
		ev.Timestamp = timestamp.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("event marshal failed", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subjectPrefix+subject, data); err != nil {
		p.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}
