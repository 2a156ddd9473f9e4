package capture

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/quality"
)

type State string

const (
	StateIdle      State = "idle"
	StateSampling  State = "sampling"
	StateCountdown State = "countdown"
	StateCapturing State = "capturing"
	StateCaptured  State = "captured"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool {
	return s == StateCaptured || s == StateCancelled || s == StateFailed
}

// Status is the coarse quality band shown to the user.
type Status string

const (
	StatusPoor Status = "poor"
	StatusFair Status = "fair"
	StatusGood Status = "good"
)

const (
	statusFairFrom = 10
	statusGoodFrom = 15
)

func StatusFor(score int) Status {
	switch {
	case score < statusFairFrom:
		return StatusPoor
	case score < statusGoodFrom:
		return StatusFair
	default:
		return StatusGood
	}
}

const IssueMultipleFaces = "MULTIPLE_FACES"

// LightingWarning is set while the last lighting evaluation found the scene
// too dark or too bright.
type LightingWarning struct {
	Level   quality.Level `json:"level"`
	Message string        `json:"message"`
}

func lightingWarning(level quality.Level) *LightingWarning {
	switch level {
	case quality.TooDark:
		return &LightingWarning{Level: level, Message: "too dark, move to a brighter place"}
	case quality.TooBright:
		return &LightingWarning{Level: level, Message: "too bright, avoid direct light"}
	default:
		return nil
	}
}

// Feedback is emitted at most once per tick.
type Feedback struct {
	SessionID    uuid.UUID        `json:"session_id"`
	State        State            `json:"state"`
	Tick         int              `json:"tick"`
	FaceDetected bool             `json:"face_detected"`
	FaceCount    int              `json:"face_count"`
	Quality      int              `json:"quality"`
	Brightness   int              `json:"brightness"`
	Status       Status           `json:"status"`
	Lighting     *LightingWarning `json:"lighting,omitempty"`
	Issue        string           `json:"issue,omitempty"`
	Countdown    *int             `json:"countdown,omitempty"`
	At           time.Time        `json:"at"`
}

// Capture is the successful outcome of a session.
type Capture struct {
	SessionID   uuid.UUID           `json:"session_id"`
	Fingerprint *domain.Fingerprint `json:"fingerprint"`
	Strategy    domain.Strategy     `json:"strategy"`
	Quality     int                 `json:"quality"`
	Brightness  int                 `json:"brightness"`
	Manual      bool                `json:"manual"`
	CapturedAt  time.Time           `json:"captured_at"`
}

// SessionError reports a problem to the listener. Fatal errors end the
// session in StateFailed.
type SessionError struct {
	SessionID uuid.UUID
	Code      string
	Fatal     bool
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("capture session %s: %s: %v", e.SessionID, e.Code, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Listener receives session events on the session goroutine. Callbacks must
// return quickly. They may call Session.Cancel, after which no further
// callback is made.
type Listener interface {
	OnFeedback(Feedback)
	OnCaptured(Capture)
	OnError(*SessionError)
}

// Callbacks adapts plain functions to Listener. Nil fields are skipped.
type Callbacks struct {
	Feedback func(Feedback)
	Captured func(Capture)
	Error    func(*SessionError)
}

func (c Callbacks) OnFeedback(f Feedback) {
	if c.Feedback != nil {
		c.Feedback(f)
	}
}

func (c Callbacks) OnCaptured(cp Capture) {
	if c.Captured != nil {
		c.Captured(cp)
	}
}

func (c Callbacks) OnError(err *SessionError) {
	if c.Error != nil {
		c.Error(err)
	}
}
