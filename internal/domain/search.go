package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdentifyMatch is one enrolled employee close to the searched fingerprint.
type IdentifyMatch struct {
	EnrollmentID uuid.UUID `json:"enrollment_id"`
	EmployeeID   string    `json:"employee_id"`
	Distance     float64   `json:"distance"`
	Matched      bool      `json:"matched"`
}

// IdentifyResult represents the complete 1:N identification response
type IdentifyResult struct {
	Matches       []IdentifyMatch `json:"matches"`
	Strategy      Strategy        `json:"strategy"`
	Threshold     float64         `json:"threshold"`
	TotalEnrolled int             `json:"total_enrolled"`
	LatencyMs     int64           `json:"latency_ms"`
	SearchID      uuid.UUID       `json:"search_id"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Best returns the closest match, if any.
func (r *IdentifyResult) Best() (IdentifyMatch, bool) {
	if len(r.Matches) == 0 {
		return IdentifyMatch{}, false
	}
	return r.Matches[0], true
}
