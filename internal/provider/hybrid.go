package provider

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// Hybrid detects with one backend and describes with another, for detectors
// such as Rekognition that do not expose descriptors.
type Hybrid struct {
	Detector  ModelBackend
	Describer ModelBackend
}

func NewHybrid(detector, describer ModelBackend) *Hybrid {
	return &Hybrid{Detector: detector, Describer: describer}
}

func (h *Hybrid) Name() string {
	return h.Detector.Name() + "+" + h.Describer.Name()
}

func (h *Hybrid) Load(ctx context.Context) error {
	if err := h.Detector.Load(ctx); err != nil {
		return fmt.Errorf("%s: %w", h.Detector.Name(), err)
	}
	if err := h.Describer.Load(ctx); err != nil {
		return fmt.Errorf("%s: %w", h.Describer.Name(), err)
	}
	return nil
}

func (h *Hybrid) DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error) {
	return h.Detector.DetectFaces(ctx, image)
}

// Describe confirms a single face with the detector before asking the
// describer, so both backends agree on the face count.
func (h *Hybrid) Describe(ctx context.Context, image []byte) ([]float64, error) {
	faces, err := h.Detector.DetectFaces(ctx, image)
	if err != nil {
		return nil, err
	}
	switch len(faces) {
	case 0:
		return nil, domain.ErrNoFaceDetected
	case 1:
		return h.Describer.Describe(ctx, image)
	default:
		return nil, domain.ErrMultipleFaces
	}
}

var _ ModelBackend = (*Hybrid)(nil)
