package detector

import (
	"context"
	"errors"
	"image"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

// Model delegates detection to an external model backend. The backend is
// loaded lazily on first use and shared by every session holding the same
// Model.
type Model struct {
	backend *provider.Shared
}

func NewModel(backend provider.ModelBackend) *Model {
	shared, ok := backend.(*provider.Shared)
	if !ok {
		shared = provider.NewShared(backend)
	}
	return &Model{backend: shared}
}

func (m *Model) Strategy() domain.Strategy { return domain.StrategyModel }

// Backend exposes the shared backend so extractors reuse the same load.
func (m *Model) Backend() *provider.Shared { return m.backend }

// Load makes sure the backend is ready.
func (m *Model) Load(ctx context.Context) error {
	if err := m.backend.Load(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return domain.ErrModelLoadFailure.WithError(err)
	}
	return nil
}

// Detect reports every face the backend sees. Only a single face is
// plausible; its bounding box becomes the region. With zero or several
// faces the whole frame is returned as region.
func (m *Model) Detect(ctx context.Context, f *frame.Frame) (Detection, error) {
	if err := m.Load(ctx); err != nil {
		return Detection{}, err
	}

	data, err := frame.EncodeJPEG(f.Full())
	if err != nil {
		return Detection{}, domain.ErrInvalidImage.WithError(err)
	}

	faces, err := m.backend.DetectFaces(ctx, data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Detection{}, err
		}
		return Detection{}, domain.ErrModelBackend.WithError(err)
	}

	d := Detection{
		Region:    f.Full(),
		FaceCount: len(faces),
		Strategy:  domain.StrategyModel,
	}
	if len(faces) == 1 {
		region := f.Region(faces[0].BoundingBox.Rect(image.Point{}))
		if !region.Empty() {
			d.Region = region
			d.Plausible = true
		}
	}
	return d, nil
}
