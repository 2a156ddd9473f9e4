package fingerprint

import (
	"context"
	"errors"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/detector"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

// Model asks the backend for a face descriptor. It must share the backend
// of the detector so the backend is loaded once.
type Model struct {
	backend *provider.Shared
	Now     Clock
}

func NewModel(backend *provider.Shared) *Model {
	return &Model{backend: backend, Now: time.Now}
}

func (m *Model) Strategy() domain.Strategy { return domain.StrategyModel }

// Extract requires exactly one face in the detection. The whole frame is
// sent so the backend can align the face itself.
func (m *Model) Extract(ctx context.Context, d detector.Detection) (*domain.Fingerprint, error) {
	switch {
	case d.FaceCount == 0 || d.Region.Empty():
		return nil, domain.ErrNoValidFace.WithError(domain.ErrNoFaceDetected)
	case d.FaceCount > 1:
		return nil, domain.ErrNoValidFace.WithError(domain.ErrMultipleFaces)
	case !d.Plausible:
		return nil, domain.ErrNoValidFace.WithError(errNotPlausible)
	}

	if err := m.backend.Load(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrModelLoadFailure.WithError(err)
	}

	data, err := frame.EncodeJPEG(d.Region.Frame().Full())
	if err != nil {
		return nil, domain.ErrNoValidFace.WithError(err)
	}

	descriptor, err := m.backend.Describe(ctx, data)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case errors.Is(err, domain.ErrNoFaceDetected), errors.Is(err, domain.ErrMultipleFaces):
			return nil, domain.ErrNoValidFace.WithError(err)
		default:
			return nil, domain.ErrModelBackend.WithError(err)
		}
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	fp, err := domain.NewFingerprint(domain.StrategyModel, descriptor, now())
	if err != nil {
		return nil, domain.ErrNoValidFace.WithError(err)
	}
	return fp, nil
}
