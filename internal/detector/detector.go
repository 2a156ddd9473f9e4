// Package detector decides, per frame, where the face is and whether the
// frame plausibly contains exactly one.
package detector

import (
	"context"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
)

// Detection is the per-frame answer of a Detector. Region is always the area
// that quality should be measured on, even when Plausible is false.
type Detection struct {
	Region    frame.Region
	Plausible bool
	FaceCount int
	Strategy  domain.Strategy
}

// Detector locates a face region in a frame. Errors are reserved for
// backend failures; "no face" is a Detection with Plausible false.
type Detector interface {
	Detect(ctx context.Context, f *frame.Frame) (Detection, error)
	Strategy() domain.Strategy
}
