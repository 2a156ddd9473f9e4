// Package matcher decides whether two fingerprints belong to the same person.
package matcher

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

const (
	// DefaultModelThreshold is the euclidean distance under which two model
	// descriptors are considered the same face.
	DefaultModelThreshold = 0.6
	// DefaultHeuristicThreshold applies to the length-normalised distance of
	// heuristic fingerprints, whose values are all in [0,1].
	DefaultHeuristicThreshold = 0.12
)

// Matcher holds the configured threshold of each strategy.
type Matcher struct {
	ModelThreshold     float64
	HeuristicThreshold float64
	Now                func() time.Time
}

func New() *Matcher {
	return &Matcher{
		ModelThreshold:     DefaultModelThreshold,
		HeuristicThreshold: DefaultHeuristicThreshold,
		Now:                time.Now,
	}
}

var defaultMatcher = New()

// Compare uses the default thresholds.
func Compare(enrolled, candidate *domain.Fingerprint, threshold float64) (*domain.VerificationResult, error) {
	return defaultMatcher.Compare(enrolled, candidate, threshold)
}

// Compare measures the distance between enrolled and candidate. A match
// requires the distance to be strictly below threshold; a threshold <= 0
// selects the configured one for the strategy.
func (m *Matcher) Compare(enrolled, candidate *domain.Fingerprint, threshold float64) (*domain.VerificationResult, error) {
	if enrolled == nil || candidate == nil {
		return nil, domain.ErrInvalidFingerprint
	}
	if enrolled.Strategy() != candidate.Strategy() {
		return nil, domain.ErrStrategyMismatch.WithError(
			fmt.Errorf("enrolled %s, candidate %s", enrolled.Strategy(), candidate.Strategy()))
	}
	threshold, err := m.Resolve(enrolled.Strategy(), threshold)
	if err != nil {
		return nil, err
	}

	distance, err := Distance(enrolled, candidate)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return &domain.VerificationResult{
		Matched:   distance < threshold,
		Distance:  distance,
		Threshold: threshold,
		Strategy:  enrolled.Strategy(),
		Timestamp: now().UTC(),
	}, nil
}

// ParseThreshold reads a threshold given explicitly by a client. Only
// positive finite values are accepted; leaving the value out is how a
// client asks for the configured threshold.
func ParseThreshold(raw string) (float64, error) {
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.ErrInvalidThreshold.WithError(err)
	}
	if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
		return 0, domain.ErrInvalidThreshold.WithError(errors.New("threshold must be a positive number"))
	}
	return t, nil
}

// Resolve validates a caller supplied threshold and substitutes the
// configured one when it is <= 0.
func (m *Matcher) Resolve(s domain.Strategy, threshold float64) (float64, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return 0, domain.ErrInvalidThreshold
	}
	if threshold <= 0 {
		return m.Threshold(s), nil
	}
	return threshold, nil
}

// Threshold returns the configured threshold for s, falling back to the
// package defaults when unset.
func (m *Matcher) Threshold(s domain.Strategy) float64 {
	switch s {
	case domain.StrategyHeuristic:
		if m.HeuristicThreshold > 0 {
			return m.HeuristicThreshold
		}
		return DefaultHeuristicThreshold
	default:
		if m.ModelThreshold > 0 {
			return m.ModelThreshold
		}
		return DefaultModelThreshold
	}
}

// Distance is the strategy-specific distance between a and b. Heuristic
// distances are divided by sqrt(n) so they stay in [0,1].
func Distance(a, b *domain.Fingerprint) (float64, error) {
	if a.Len() == 0 || a.Len() != b.Len() {
		return 0, domain.ErrInvalidFingerprint.WithError(
			fmt.Errorf("length %d vs %d", a.Len(), b.Len()))
	}
	var sum float64
	for i := 0; i < a.Len(); i++ {
		d := a.At(i) - b.At(i)
		sum += d * d
	}
	distance := math.Sqrt(sum)
	if a.Strategy() == domain.StrategyHeuristic {
		distance /= math.Sqrt(float64(a.Len()))
	}
	return distance, nil
}
