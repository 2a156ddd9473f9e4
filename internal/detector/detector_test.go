package detector

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame/frametest"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/mock"
)

func TestHeuristic_GuideRegion(t *testing.T) {
	h := NewHeuristic()
	f := frametest.Solid(100, 50, frametest.Gray)

	r := h.GuideRegion(f)
	assert.Equal(t, image.Rect(30, 10, 70, 40), r.Rect)
}

func TestHeuristic_Detect(t *testing.T) {
	tests := []struct {
		name      string
		frame     func() *frame.Frame
		plausible bool
	}{
		{"face in guide", func() *frame.Frame { return frametest.Face(160, 120) }, true},
		{"flat gray wall", func() *frame.Frame { return frametest.Solid(160, 120, frametest.Gray) }, false},
		{"flat skin has no texture", func() *frame.Frame { return frametest.Solid(160, 120, frametest.Skin) }, false},
		{"black frame", func() *frame.Frame { return frametest.Solid(160, 120, frametest.Black) }, false},
		{"high contrast without skin", func() *frame.Frame {
			return frametest.Stripes(160, 120, frametest.Black, frametest.White)
		}, false},
	}

	h := NewHeuristic()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.frame()
			d, err := h.Detect(context.Background(), f)
			require.NoError(t, err)

			assert.Equal(t, tt.plausible, d.Plausible)
			assert.Equal(t, domain.StrategyHeuristic, d.Strategy)
			assert.Equal(t, h.GuideRegion(f).Rect, d.Region.Rect, "the sampled region is always returned")
			if tt.plausible {
				assert.Equal(t, 1, d.FaceCount)
			} else {
				assert.Zero(t, d.FaceCount)
			}
		})
	}
}

func TestHeuristic_DetectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHeuristic().Detect(ctx, frametest.Face(40, 40))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsSkin(t *testing.T) {
	assert.True(t, IsSkin(frametest.Skin.R, frametest.Skin.G, frametest.Skin.B))
	assert.True(t, IsSkin(frametest.Shade.R, frametest.Shade.G, frametest.Shade.B))
	assert.False(t, IsSkin(frametest.Wall.R, frametest.Wall.G, frametest.Wall.B))
	assert.False(t, IsSkin(200, 200, 200), "gray has no chroma")
	assert.False(t, IsSkin(90, 60, 40), "too dark")
	assert.False(t, IsSkin(120, 200, 100), "green dominant")
}

func TestSkinRatio(t *testing.T) {
	assert.Equal(t, 1.0, SkinRatio(frametest.Solid(4, 4, frametest.Skin).Full()))
	assert.Equal(t, 0.0, SkinRatio(frametest.Solid(4, 4, frametest.Wall).Full()))
	assert.Equal(t, 0.5, SkinRatio(frametest.Stripes(4, 4, frametest.Skin, frametest.Wall).Full()))
}

func TestModel_Detect(t *testing.T) {
	ctx := context.Background()
	f := frametest.Face(100, 80)

	t.Run("single face becomes the region", func(t *testing.T) {
		m := NewModel(&mock.Backend{Faces: 1})

		d, err := m.Detect(ctx, f)
		require.NoError(t, err)
		assert.True(t, d.Plausible)
		assert.Equal(t, 1, d.FaceCount)
		assert.Equal(t, domain.StrategyModel, d.Strategy)
		assert.Equal(t, image.Rect(10, 8, 90, 72), d.Region.Rect)
	})

	t.Run("several faces are not plausible", func(t *testing.T) {
		d, err := NewModel(&mock.Backend{Faces: 2}).Detect(ctx, f)
		require.NoError(t, err)
		assert.False(t, d.Plausible)
		assert.Equal(t, 2, d.FaceCount)
		assert.Equal(t, f.Bounds(), d.Region.Rect)
	})

	t.Run("no face", func(t *testing.T) {
		d, err := NewModel(&mock.Backend{Faces: 0}).Detect(ctx, f)
		require.NoError(t, err)
		assert.False(t, d.Plausible)
		assert.Zero(t, d.FaceCount)
	})

	t.Run("backend failure", func(t *testing.T) {
		_, err := NewModel(&mock.Backend{Faces: 1, DetectErr: errors.New("500")}).Detect(ctx, f)
		assert.ErrorIs(t, err, domain.ErrModelBackend)
		assert.True(t, domain.IsFatal(err))
	})

	t.Run("load failure", func(t *testing.T) {
		_, err := NewModel(&mock.Backend{Faces: 1, LoadErr: errors.New("no weights")}).Detect(ctx, f)
		assert.ErrorIs(t, err, domain.ErrModelLoadFailure)
	})
}

func TestModel_LoadsOnce(t *testing.T) {
	backend := mock.New()
	m := NewModel(backend)
	f := frametest.Face(60, 60)

	for i := 0; i < 5; i++ {
		_, err := m.Detect(context.Background(), f)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, backend.Loads())
	assert.Same(t, m.Backend(), NewModel(m.Backend()).Backend(), "an already shared backend is reused")
}

// heldBackend keeps Load pending until released or its ctx ends.
type heldBackend struct {
	*mock.Backend
	started chan struct{}
	release chan struct{}
}

func (h *heldBackend) Load(ctx context.Context) error {
	close(h.started)
	select {
	case <-h.release:
		return h.Backend.Load(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestModel_LoadSurvivesOtherSessionCancel(t *testing.T) {
	backend := &heldBackend{Backend: mock.New(), started: make(chan struct{}), release: make(chan struct{})}
	m := NewModel(backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancelledErr := make(chan error, 1)
	go func() { cancelledErr <- m.Load(ctx) }()
	<-backend.started

	liveErr := make(chan error, 1)
	go func() { liveErr <- m.Load(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	err := <-cancelledErr
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrModelLoadFailure)

	close(backend.release)
	require.NoError(t, <-liveErr)
	assert.Equal(t, 1, backend.Loads())
}
