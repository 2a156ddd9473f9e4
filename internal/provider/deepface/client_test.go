package deepface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.RetryCount = 0
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestClient_Represent(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse interface{}
		serverStatus   int
		wantErr        bool
		wantErrContain string
		wantFaces      int
	}{
		{
			name: "successful response with single face",
			serverResponse: RepresentResponse{
				Results: []RepresentResult{
					{Embedding: make([]float64, 512), FacialArea: FacialArea{X: 10, Y: 20, W: 100, H: 100}},
				},
			},
			serverStatus: http.StatusOK,
			wantFaces:    1,
		},
		{
			name: "successful response with multiple faces",
			serverResponse: RepresentResponse{
				Results: []RepresentResult{
					{Embedding: make([]float64, 512), FacialArea: FacialArea{X: 10, Y: 20, W: 100, H: 100}},
					{Embedding: make([]float64, 512), FacialArea: FacialArea{X: 150, Y: 30, W: 90, H: 90}},
				},
			},
			serverStatus: http.StatusOK,
			wantFaces:    2,
		},
		{
			name:           "face could not be detected maps to empty result",
			serverResponse: map[string]string{"error": "Exception while representing pair: Face could not be detected in numpy array."},
			serverStatus:   http.StatusBadRequest,
			wantFaces:      0,
		},
		{
			name:           "server error 500",
			serverResponse: map[string]string{"error": "internal server error"},
			serverStatus:   http.StatusInternalServerError,
			wantErr:        true,
			wantErrContain: "deepface service unavailable",
		},
		{
			name:           "bad request 400",
			serverResponse: map[string]string{"error": "invalid image format"},
			serverStatus:   http.StatusBadRequest,
			wantErr:        true,
			wantErrContain: "status 400",
		},
		{
			name:           "invalid json response",
			serverResponse: "not a valid json",
			serverStatus:   http.StatusOK,
			wantErr:        true,
			wantErrContain: "invalid response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/represent", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req RepresentRequest
				if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
					assert.NotEmpty(t, req.Img)
					assert.Equal(t, "Facenet512", req.Model)
					assert.Equal(t, "retinaface", req.Detector)
					assert.True(t, req.EnforceDetection)
				}

				w.WriteHeader(tt.serverStatus)
				if str, ok := tt.serverResponse.(string); ok {
					_, _ = w.Write([]byte(str))
				} else {
					_ = json.NewEncoder(w).Encode(tt.serverResponse)
				}
			}))
			defer server.Close()

			client := NewClient(testConfig(server.URL))
			resp, err := client.Represent(context.Background(), "data:image/jpeg;base64,dGVzdA==")

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrContain)
				return
			}

			require.NoError(t, err)
			assert.Len(t, resp.Results, tt.wantFaces)
		})
	}
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("Welcome to DeepFace API!"))
	}))
	defer server.Close()

	assert.NoError(t, NewClient(testConfig(server.URL)).Ping(context.Background()))
}

func TestClient_RetryOnFailure(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{}})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryCount = 3

	resp, err := NewClient(cfg).Represent(context.Background(), "x")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestClient_RetryExhaustion(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryCount = 2

	_, err := NewClient(cfg).Represent(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeepFaceUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts), "expected initial attempt + 2 retries")
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid request"})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryCount = 3

	_, err := NewClient(cfg).Represent(context.Background(), "x")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(RepresentResponse{})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(testConfig(server.URL)).Represent(ctx, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(RepresentResponse{})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond

	_, err := NewClient(cfg).Represent(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeepFaceUnavailable)
}

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, calculateBackoff(base, 0))
	assert.Equal(t, base, calculateBackoff(base, 1))
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(base, 2))
	assert.Equal(t, 400*time.Millisecond, calculateBackoff(base, 3))
	assert.Equal(t, maxBackoff, calculateBackoff(10*time.Second, 5))
}
