package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventFaceDetected     EventType = "FACE_DETECTED"
	EventSessionStarted   EventType = "CAPTURE_SESSION_STARTED"
	EventSessionEnded     EventType = "CAPTURE_SESSION_ENDED"
	EventFaceCaptured     EventType = "FACE_CAPTURED"
	EventFaceEnrolled     EventType = "FACE_ENROLLED"
	EventFaceVerified     EventType = "FACE_VERIFIED"
	EventFaceIdentified   EventType = "FACE_IDENTIFIED"
	EventEnrollmentDelete EventType = "ENROLLMENT_DELETED"
)

// Event represents an audit event for LGPD compliance. Events never carry
// image data or fingerprint vectors.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EventType  EventType         `json:"event_type"`
	SessionID  string            `json:"session_id,omitempty"`
	EmployeeID string            `json:"employee_id,omitempty"`
	Strategy   string            `json:"strategy,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	event = stamp(event)

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("employee_id", event.EmployeeID),
		slog.String("strategy", event.Strategy),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

func stamp(event Event) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}

// MemoryLogger keeps events in memory. Used by tests and the CLI summary.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

func (l *MemoryLogger) Log(_ context.Context, event Event) error {
	l.mu.Lock()
	l.events = append(l.events, stamp(event))
	l.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (l *MemoryLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// OfType filters recorded events.
func (l *MemoryLogger) OfType(t EventType) []Event {
	var out []Event
	for _, e := range l.Events() {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}
