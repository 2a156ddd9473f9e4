package webhook

import (
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

const (
	EventAttendanceVerified = "attendance.verified"
	EventAttendanceRejected = "attendance.rejected"
	EventEmployeeEnrolled   = "employee.enrolled"
	EventEmployeeRemoved    = "employee.removed"
)

// Job statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDelivered  = "delivered"
	StatusFailed     = "failed"
)

const DefaultMaxAttempts = 5

// Endpoint is the attendance system receiving notifications.
type Endpoint struct {
	URL    string
	Secret string
}

type Job struct {
	ID          uuid.UUID  `json:"id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"payload"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	Status      string     `json:"status"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type EventPayload struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// AttendanceData is sent for every 1:1 verification. It never carries the
// fingerprint or the captured image.
type AttendanceData struct {
	VerificationID uuid.UUID       `json:"verification_id"`
	EmployeeID     string          `json:"employee_id"`
	Matched        bool            `json:"matched"`
	Distance       float64         `json:"distance"`
	Threshold      float64         `json:"threshold"`
	Strategy       domain.Strategy `json:"strategy"`
	Source         string          `json:"source"`
}

type EnrollmentData struct {
	EnrollmentID uuid.UUID       `json:"enrollment_id,omitempty"`
	EmployeeID   string          `json:"employee_id"`
	Strategy     domain.Strategy `json:"strategy,omitempty"`
}
