package provider

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrDescribeUnsupported is returned by backends that can only detect faces.
var ErrDescribeUnsupported = errors.New("backend does not produce face descriptors")

// ModelBackend define a interface para os serviços externos de reconhecimento facial
type ModelBackend interface {
	// Name identifica o backend nos logs e na auditoria
	Name() string

	// Load prepara o backend (credenciais, modelos, conectividade)
	Load(ctx context.Context) error

	// DetectFaces detecta faces na imagem e retorna informações sobre cada uma
	DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error)

	// Describe extrai o descritor numérico da única face presente na imagem
	Describe(ctx context.Context, image []byte) ([]float64, error)
}

// DetectedFace represents a detected face in the image
type DetectedFace struct {
	BoundingBox  BoundingBox `json:"bounding_box"`
	Confidence   float64     `json:"confidence"`
	QualityScore float64     `json:"quality_score"`
	Pose         *Pose       `json:"pose,omitempty"`
}

// Pose represents face orientation angles
type Pose struct {
	Pitch float64 `json:"pitch"` // up/down rotation
	Roll  float64 `json:"roll"`  // tilted rotation
	Yaw   float64 `json:"yaw"`   // left/right rotation
}

// BoundingBox represents the face area in pixels of the submitted image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect converts the box to integer pixel coordinates, offset by origin.
func (b BoundingBox) Rect(origin image.Point) image.Rectangle {
	r := image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
	return r.Add(origin)
}

// LoadTimeout bounds a shared backend load once no caller can cancel it.
const LoadTimeout = 2 * time.Minute

// Shared wraps a backend so that Load runs at most once successfully.
// Concurrent callers wait on the same attempt, which is detached from any
// single caller's cancellation. A caller whose ctx ends stops waiting and gets
// ctx.Err(); the attempt keeps running for the others. A failed attempt is not
// remembered and the next caller retries.
type Shared struct {
	ModelBackend

	group  singleflight.Group
	loaded atomic.Bool
}

func NewShared(b ModelBackend) *Shared {
	return &Shared{ModelBackend: b}
}

func (s *Shared) Load(ctx context.Context) error {
	if s.loaded.Load() {
		return nil
	}
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan("load", func() (interface{}, error) {
		if s.loaded.Load() {
			return nil, nil
		}
		lctx, cancel := context.WithTimeout(detached, LoadTimeout)
		defer cancel()
		if err := s.ModelBackend.Load(lctx); err != nil {
			return nil, err
		}
		s.loaded.Store(true)
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Shared) Loaded() bool {
	return s.loaded.Load()
}
