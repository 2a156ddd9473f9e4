package domain

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// Strategy identifies how a fingerprint was produced. Fingerprints are only
// comparable within a single strategy.
type Strategy string

const (
	StrategyHeuristic Strategy = "heuristic"
	StrategyModel     Strategy = "model"
)

func (s Strategy) Valid() bool {
	return s == StrategyHeuristic || s == StrategyModel
}

// ParseStrategy maps user input to a Strategy. An empty string yields fallback.
func ParseStrategy(s string, fallback Strategy) (Strategy, error) {
	if s == "" {
		return fallback, nil
	}
	st := Strategy(s)
	if !st.Valid() {
		return "", ErrInvalidStrategy
	}
	return st, nil
}

// Fingerprint is the immutable numeric representation of a captured face.
type Fingerprint struct {
	strategy  Strategy
	vector    []float64
	createdAt time.Time
}

// NewFingerprint copies vector so callers cannot mutate the result afterwards.
// It rejects empty or non-finite vectors.
func NewFingerprint(strategy Strategy, vector []float64, createdAt time.Time) (*Fingerprint, error) {
	if !strategy.Valid() {
		return nil, ErrInvalidStrategy
	}
	if len(vector) == 0 {
		return nil, ErrInvalidFingerprint
	}
	v := make([]float64, len(vector))
	for i, x := range vector {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, ErrInvalidFingerprint
		}
		v[i] = x
	}
	return &Fingerprint{strategy: strategy, vector: v, createdAt: createdAt.UTC()}, nil
}

func (f *Fingerprint) Strategy() Strategy { return f.strategy }
func (f *Fingerprint) CreatedAt() time.Time { return f.createdAt }
func (f *Fingerprint) Len() int { return len(f.vector) }

// Vector returns a copy of the fingerprint values.
func (f *Fingerprint) Vector() []float64 {
	v := make([]float64, len(f.vector))
	copy(v, f.vector)
	return v
}

// At returns the i-th component without copying.
func (f *Fingerprint) At(i int) float64 {
	return f.vector[i]
}

type fingerprintJSON struct {
	Strategy  Strategy  `json:"strategy"`
	Vector    []float64 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

func (f *Fingerprint) MarshalJSON() ([]byte, error) {
	return json.Marshal(fingerprintJSON{Strategy: f.strategy, Vector: f.vector, CreatedAt: f.createdAt})
}

func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	var raw fingerprintJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fp, err := NewFingerprint(raw.Strategy, raw.Vector, raw.CreatedAt)
	if err != nil {
		return err
	}
	*f = *fp
	return nil
}

// Enrollment representa a face de referência cadastrada para um funcionário
type Enrollment struct {
	ID           uuid.UUID    `json:"id"`
	EmployeeID   string       `json:"employee_id"`
	Fingerprint  *Fingerprint `json:"-"`
	Strategy     Strategy     `json:"strategy"`
	QualityScore int          `json:"quality_score"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// VerificationResult is the outcome of comparing two fingerprints.
type VerificationResult struct {
	Matched   bool      `json:"matched"`
	Distance  float64   `json:"distance"`
	Threshold float64   `json:"threshold"`
	Strategy  Strategy  `json:"strategy"`
	Timestamp time.Time `json:"timestamp"`
}

// Verification representa um registro de verificação (audit)
type Verification struct {
	ID           uuid.UUID  `json:"id"`
	EnrollmentID *uuid.UUID `json:"enrollment_id,omitempty"`
	EmployeeID   string     `json:"employee_id"`
	Matched      bool       `json:"matched"`
	Distance     float64    `json:"distance"`
	Threshold    float64    `json:"threshold"`
	Strategy     Strategy   `json:"strategy"`
	LatencyMs    int64      `json:"latency_ms"`
	CreatedAt    time.Time  `json:"created_at"`
}
