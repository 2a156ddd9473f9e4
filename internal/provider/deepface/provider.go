package deepface

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels
)

// Backend implements provider.ModelBackend using the DeepFace API
type Backend struct {
	client *Client
}

// NewBackend creates a new DeepFace backend
func NewBackend(config Config) *Backend {
	return &Backend{
		client: NewClient(config),
	}
}

func (b *Backend) Name() string { return "deepface" }

// Load only checks reachability; DeepFace loads its own weights lazily.
func (b *Backend) Load(ctx context.Context) error {
	return b.client.Ping(ctx)
}

// DetectFaces detects faces in the image
func (b *Backend) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	resp, err := b.client.Represent(ctx, dataURI(image))
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	for _, result := range resp.Results {
		faceArea := float64(result.FacialArea.W * result.FacialArea.H)

		confidence := result.FaceConfidence
		if confidence <= 0 {
			confidence = calculateConfidence(faceArea)
		}

		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(result.FacialArea.X),
				Y:      float64(result.FacialArea.Y),
				Width:  float64(result.FacialArea.W),
				Height: float64(result.FacialArea.H),
			},
			Confidence:   confidence,
			QualityScore: calculateQuality(faceArea),
		})
	}

	return faces, nil
}

// Describe returns the unit-length embedding of the only face in image.
func (b *Backend) Describe(ctx context.Context, image []byte) ([]float64, error) {
	resp, err := b.client.Represent(ctx, dataURI(image))
	if err != nil {
		return nil, fmt.Errorf("describe face: %w", err)
	}

	switch len(resp.Results) {
	case 0:
		return nil, domain.ErrNoFaceDetected
	case 1:
	default:
		return nil, domain.ErrMultipleFaces
	}

	embedding := resp.Results[0].Embedding
	if len(embedding) == 0 {
		return nil, ErrNoFaceInResponse
	}
	return NormalizeEmbedding(embedding), nil
}

// calculateConfidence estimates confidence based on face area
// for detectors that do not report one
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5
	}
	// Scale from 0.7 to 0.99 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

// calculateQuality estimates quality score based on face area
func calculateQuality(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.4
	}
	// Scale from 0.6 to 0.95 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.6 + (normalized * 0.35)
}

func dataURI(image []byte) string {
	mime := http.DetectContentType(image)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
}

// Ensure Backend implements provider.ModelBackend
var _ provider.ModelBackend = (*Backend)(nil)
