// Package fingerprint turns a detected face region into an immutable
// numeric fingerprint. Extraction is all-or-nothing: on any failure no
// fingerprint is returned.
package fingerprint

import (
	"context"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/detector"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// Extractor produces a fingerprint from a detection of its own strategy.
type Extractor interface {
	Extract(ctx context.Context, d detector.Detection) (*domain.Fingerprint, error)
	Strategy() domain.Strategy
}

// Clock lets tests pin CreatedAt.
type Clock func() time.Time
