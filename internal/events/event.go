package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published for every session lifecycle transition.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

const (
	eventSource  = "exam-session-service"
	eventVersion = "1.0"
)

// Session lifecycle event types
const (
	EventSessionStarted        = "session.started"
	EventSessionCompleted      = "session.completed"
	EventSessionExpired        = "session.expired"
	EventSessionAbandoned      = "session.abandoned"
	EventSessionViolationLimit = "session.violation_limit"
	EventExamPublished         = "exam.published"
)

// NewEvent builds an event envelope with a fresh ID and timestamp.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// SessionEventData is the payload for session lifecycle events.
type SessionEventData struct {
	SessionID      uint     `json:"session_id"`
	ExamID         uint     `json:"exam_id"`
	UserID         string   `json:"user_id"`
	Status         string   `json:"status"`
	EndReason      string   `json:"end_reason,omitempty"`
	Score          *float64 `json:"score,omitempty"`
	ViolationCount int      `json:"violation_count,omitempty"`
}

// ExamEventData is the payload for exam lifecycle events.
type ExamEventData struct {
	ExamID    uint   `json:"exam_id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	CreatedBy string `json:"created_by"`
}

// EventPublisher publishes events to the bus. Implementations must be safe
// for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
