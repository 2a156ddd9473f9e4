package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

// Backend counts and locates faces with AWS Rekognition. Rekognition does
// not expose face embeddings, so Describe is unsupported; pair it with a
// describing backend through provider.Hybrid.
type Backend struct {
	cfg         Config
	auditLogger audit.Logger

	mu  sync.RWMutex
	api API
}

// BackendOption defines optional configuration for Backend
type BackendOption func(*Backend)

// WithAuditLogger sets the audit logger for the backend
func WithAuditLogger(logger audit.Logger) BackendOption {
	return func(b *Backend) {
		b.auditLogger = logger
	}
}

// WithAPI injects a ready client, skipping credential resolution on Load
func WithAPI(api API) BackendOption {
	return func(b *Backend) {
		b.api = api
	}
}

var _ provider.ModelBackend = (*Backend)(nil)

func NewBackend(cfg Config, opts ...BackendOption) *Backend {
	b := &Backend{cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return "rekognition" }

// Load resolves AWS credentials and builds the client
func (b *Backend) Load(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.api != nil {
		return nil
	}
	api, err := NewClient(ctx, b.cfg)
	if err != nil {
		return fmt.Errorf("load rekognition: %w", err)
	}
	b.api = api
	return nil
}

// logAudit logs an audit event if an audit logger is configured
// Audit failure does not affect the operation (fire-and-forget)
func (b *Backend) logAudit(ctx context.Context, success bool, err error, metadata map[string]string) {
	if b.auditLogger == nil {
		return
	}

	event := audit.Event{
		EventType: audit.EventFaceDetected,
		Provider:  b.Name(),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	_ = b.auditLogger.Log(ctx, event)
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) == 0 {
		return ErrInvalidImage
	}
	if len(image) < minImageSize {
		return fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(image), minImageSize)
	}
	if len(image) > maxImageSize {
		return fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(image), maxImageSize)
	}
	return nil
}

// DetectFaces returns faces above MinConfidence with bounding boxes in
// pixels of the submitted image. An image without faces yields an empty
// slice.
func (b *Backend) DetectFaces(ctx context.Context, img []byte) ([]provider.DetectedFace, error) {
	meta := map[string]string{"image_size": strconv.Itoa(len(img))}

	if err := validateImage(img); err != nil {
		b.logAudit(ctx, false, err, meta)
		return nil, err
	}

	b.mu.RLock()
	api := b.api
	b.mu.RUnlock()
	if api == nil {
		return nil, ErrNotLoaded
	}

	dims, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidImage, err)
		b.logAudit(ctx, false, err, meta)
		return nil, err
	}

	output, err := api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: img},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		mapped, noFace := parseAPIError(err)
		if noFace {
			b.logAudit(ctx, true, nil, map[string]string{"faces_count": "0", "image_size": meta["image_size"]})
			return []provider.DetectedFace{}, nil
		}
		b.logAudit(ctx, false, mapped, meta)
		return nil, fmt.Errorf("detect faces: %w", mapped)
	}

	w, h := float64(dims.Width), float64(dims.Height)
	faces := make([]provider.DetectedFace, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.BoundingBox == nil || detail.Confidence == nil {
			continue
		}
		if float64(*detail.Confidence) < b.cfg.MinConfidence {
			continue
		}
		box := detail.BoundingBox
		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(deref(box.Left)) * w,
				Y:      float64(deref(box.Top)) * h,
				Width:  float64(deref(box.Width)) * w,
				Height: float64(deref(box.Height)) * h,
			},
			Confidence:   float64(*detail.Confidence) / 100.0,
			QualityScore: calculateQualityScore(detail.Quality),
			Pose:         convertPose(detail.Pose),
		})
	}

	b.logAudit(ctx, true, nil, map[string]string{
		"faces_count": strconv.Itoa(len(faces)),
		"image_size":  meta["image_size"],
	})

	return faces, nil
}

// Describe is not available on Rekognition
func (b *Backend) Describe(_ context.Context, _ []byte) ([]float64, error) {
	return nil, provider.ErrDescribeUnsupported
}

// calculateQualityScore combines Rekognition brightness and sharpness (0-100)
// into a 0-1 score, weighting sharpness more heavily
func calculateQualityScore(quality *types.ImageQuality) float64 {
	if quality == nil {
		return 0.0
	}

	brightness := 0.0
	sharpness := 0.0

	if quality.Brightness != nil {
		brightness = float64(*quality.Brightness) / 100.0
	}
	if quality.Sharpness != nil {
		sharpness = float64(*quality.Sharpness) / 100.0
	}

	return brightness*0.3 + sharpness*0.7
}

func convertPose(p *types.Pose) *provider.Pose {
	if p == nil {
		return nil
	}
	return &provider.Pose{
		Pitch: float64(deref(p.Pitch)),
		Roll:  float64(deref(p.Roll)),
		Yaw:   float64(deref(p.Yaw)),
	}
}

func deref(v *float32) float32 {
	if v == nil {
		return 0
	}
	return *v
}
