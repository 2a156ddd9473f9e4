package face

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/rekognition"
)

// BackendType defines supported model backends
type BackendType string

const (
	// BackendDeepFace is the self-hosted DeepFace API (detection and descriptors)
	BackendDeepFace BackendType = "deepface"
	// BackendRekognition is AWS Rekognition (detection only, cannot enroll)
	BackendRekognition BackendType = "rekognition"
	// BackendHybrid detects with Rekognition and describes with DeepFace
	BackendHybrid BackendType = "hybrid"
	// BackendMock is deterministic and offline, for development
	BackendMock BackendType = "mock"
	// BackendNone disables the model strategy
	BackendNone BackendType = "none"
)

// NewModelBackend creates the model backend selected by configuration.
// Backends are not loaded here; the model detector loads them on first use.
//
// Environment variables:
//   - MODEL_BACKEND: "deepface", "rekognition", "hybrid", "mock" or "none" (default: "deepface")
//   - DEEPFACE_URL, DEEPFACE_MODEL, DEEPFACE_TIMEOUT: DeepFace API settings
//   - AWS_REGION, REKOGNITION_MIN_CONFIDENCE: Rekognition settings
//   - AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY: via the AWS SDK credential chain
func NewModelBackend(cfg *config.Config, auditLogger audit.Logger) (provider.ModelBackend, error) {
	switch BackendType(cfg.ModelBackend) {
	case BackendDeepFace, "":
		return createDeepFaceBackend(cfg), nil

	case BackendRekognition:
		return createRekognitionBackend(cfg, auditLogger), nil

	case BackendHybrid:
		return provider.NewHybrid(createRekognitionBackend(cfg, auditLogger), createDeepFaceBackend(cfg)), nil

	case BackendMock:
		return mock.New(), nil

	case BackendNone:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown model backend: %s (supported: %s, %s, %s, %s, %s)",
			cfg.ModelBackend, BackendDeepFace, BackendRekognition, BackendHybrid, BackendMock, BackendNone)
	}
}

func createRekognitionBackend(cfg *config.Config, auditLogger audit.Logger) *rekognition.Backend {
	rekogConfig := rekognition.DefaultConfig()
	if cfg.AWSRegion != "" {
		rekogConfig.Region = cfg.AWSRegion
	}
	if cfg.RekognitionMinConfidence > 0 {
		rekogConfig.MinConfidence = cfg.RekognitionMinConfidence
	}

	var opts []rekognition.BackendOption
	if auditLogger != nil {
		opts = append(opts, rekognition.WithAuditLogger(auditLogger))
	}
	return rekognition.NewBackend(rekogConfig, opts...)
}

func createDeepFaceBackend(cfg *config.Config) *deepface.Backend {
	deepfaceConfig := deepface.DefaultConfig()
	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		deepfaceConfig.Model = cfg.DeepFaceModel
	}
	if cfg.DeepFaceTimeout > 0 {
		deepfaceConfig.Timeout = cfg.DeepFaceTimeout
	}

	return deepface.NewBackend(deepfaceConfig)
}
