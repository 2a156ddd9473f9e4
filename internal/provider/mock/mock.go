package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sync/atomic"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const embeddingDimension = 128

// Backend implementa provider.ModelBackend para testes e desenvolvimento
type Backend struct {
	// Faces é o número de faces reportadas por imagem (padrão 1)
	Faces int
	// LoadErr, se definido, é retornado por Load
	LoadErr error
	// DetectErr, se definido, é retornado por DetectFaces e Describe
	DetectErr error

	loads atomic.Int32
}

// New cria uma nova instância do mock com uma face por imagem
func New() *Backend {
	return &Backend{Faces: 1}
}

func (b *Backend) Name() string { return "mock" }

func (b *Backend) Load(_ context.Context) error {
	b.loads.Add(1)
	return b.LoadErr
}

// Loads returns how many times Load ran.
func (b *Backend) Loads() int {
	return int(b.loads.Load())
}

// DetectFaces reporta Faces faces lado a lado, ocupando a imagem inteira
func (b *Backend) DetectFaces(_ context.Context, img []byte) ([]provider.DetectedFace, error) {
	if b.DetectErr != nil {
		return nil, b.DetectErr
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	faces := make([]provider.DetectedFace, 0, b.Faces)
	if b.Faces <= 0 {
		return faces, nil
	}
	w := float64(cfg.Width) / float64(b.Faces)
	for i := 0; i < b.Faces; i++ {
		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      w*float64(i) + w*0.1,
				Y:      float64(cfg.Height) * 0.1,
				Width:  w * 0.8,
				Height: float64(cfg.Height) * 0.8,
			},
			Confidence:   0.99,
			QualityScore: 0.95,
		})
	}
	return faces, nil
}

// Describe gera embedding determinístico baseado no hash da imagem
func (b *Backend) Describe(ctx context.Context, img []byte) ([]float64, error) {
	faces, err := b.DetectFaces(ctx, img)
	if err != nil {
		return nil, err
	}
	switch len(faces) {
	case 0:
		return nil, domain.ErrNoFaceDetected
	case 1:
		return generateEmbedding(img), nil
	default:
		return nil, domain.ErrMultipleFaces
	}
}

// generateEmbedding gera embedding unitário determinístico a partir do hash da imagem
func generateEmbedding(img []byte) []float64 {
	hash := sha256.Sum256(img)
	embedding := make([]float64, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		idx := i % hashLen
		//nolint:gosec // idx is always < hashLen due to modulo operation
		embedding[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

var _ provider.ModelBackend = (*Backend)(nil)
