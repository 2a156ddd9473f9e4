package face

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/rekognition"
)

func TestNewModelBackend(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		wantName string
		check    func(t *testing.T, b provider.ModelBackend)
	}{
		{
			name:     "explicit deepface",
			backend:  "deepface",
			wantName: "deepface",
			check: func(t *testing.T, b provider.ModelBackend) {
				assert.IsType(t, &deepface.Backend{}, b)
			},
		},
		{
			name:     "empty defaults to deepface",
			backend:  "",
			wantName: "deepface",
		},
		{
			name:     "rekognition",
			backend:  "rekognition",
			wantName: "rekognition",
			check: func(t *testing.T, b provider.ModelBackend) {
				assert.IsType(t, &rekognition.Backend{}, b)
			},
		},
		{
			name:     "hybrid",
			backend:  "hybrid",
			wantName: "rekognition+deepface",
			check: func(t *testing.T, b provider.ModelBackend) {
				h, ok := b.(*provider.Hybrid)
				require.True(t, ok)
				assert.IsType(t, &rekognition.Backend{}, h.Detector)
				assert.IsType(t, &deepface.Backend{}, h.Describer)
			},
		},
		{
			name:     "mock",
			backend:  "mock",
			wantName: "mock",
			check: func(t *testing.T, b provider.ModelBackend) {
				assert.IsType(t, &mock.Backend{}, b)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				ModelBackend:    tt.backend,
				DeepFaceURL:     "http://deepface:5005",
				DeepFaceTimeout: 5 * time.Second,
				AWSRegion:       "sa-east-1",
			}

			b, err := NewModelBackend(cfg, &audit.NoOpLogger{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, b.Name())
			if tt.check != nil {
				tt.check(t, b)
			}
		})
	}
}

func TestNewModelBackend_Unknown(t *testing.T) {
	_, err := NewModelBackend(&config.Config{ModelBackend: "opencv"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model backend: opencv")
}

func TestNewModelBackend_None(t *testing.T) {
	b, err := NewModelBackend(&config.Config{ModelBackend: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}
