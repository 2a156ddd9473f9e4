package ws

import (
	"errors"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

type EventType string

const (
	EventFeedback     EventType = "feedback"
	EventCaptured     EventType = "captured"
	EventVerification EventType = "verification"
	EventEnrollment   EventType = "enrollment"
	EventError        EventType = "error"
)

// Event is one JSON message sent to the browser.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Mode selects what happens with the captured fingerprint.
type Mode string

const (
	ModeVerify  Mode = "verify"
	ModeEnroll  Mode = "enroll"
	ModeCapture Mode = "capture"
)

func (m Mode) Valid() bool {
	return m == ModeVerify || m == ModeEnroll || m == ModeCapture
}

const (
	ActionCapture = "capture"
	ActionCancel  = "cancel"
)

// Control is a text message from the browser.
type Control struct {
	Action string `json:"action"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

func errorData(err error, fatal bool) ErrorData {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return ErrorData{Code: appErr.Code, Message: appErr.Message, Fatal: fatal}
	}
	return ErrorData{Code: domain.ErrInternal.Code, Message: err.Error(), Fatal: fatal}
}
