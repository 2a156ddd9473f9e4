package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame/frametest"
)

// MockFaceService is a mock implementation of FaceService
type MockFaceService struct {
	mock.Mock
}

func (m *MockFaceService) Enroll(ctx context.Context, employeeID string, strategy domain.Strategy, f *frame.Frame, replace bool) (*domain.Enrollment, error) {
	args := m.Called(ctx, employeeID, strategy, f, replace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Enrollment), args.Error(1)
}

func (m *MockFaceService) Verify(ctx context.Context, employeeID string, strategy domain.Strategy, f *frame.Frame, threshold float64) (*domain.Verification, error) {
	args := m.Called(ctx, employeeID, strategy, f, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Verification), args.Error(1)
}

func (m *MockFaceService) Match(enrolled, candidate *domain.Fingerprint, threshold float64) (*domain.VerificationResult, error) {
	args := m.Called(enrolled, candidate, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VerificationResult), args.Error(1)
}

func (m *MockFaceService) Identify(ctx context.Context, strategy domain.Strategy, f *frame.Frame, threshold float64, k int) (*domain.IdentifyResult, error) {
	args := m.Called(ctx, strategy, f, threshold, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IdentifyResult), args.Error(1)
}

func (m *MockFaceService) Delete(ctx context.Context, employeeID string, strategy domain.Strategy) error {
	args := m.Called(ctx, employeeID, strategy)
	return args.Error(0)
}

func (m *MockFaceService) History(ctx context.Context, employeeID string, limit int) ([]domain.Verification, error) {
	args := m.Called(ctx, employeeID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Verification), args.Error(1)
}

// testLogger returns a logger that discards all output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var facePNG = frametest.PNG(frametest.Face(160, 120))

// Helper to create multipart request
func createMultipartRequest(fields map[string]string, imageContent []byte, contentType string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}

	if imageContent != nil {
		// Create part with custom Content-Type header
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="face.png"`)
		h.Set("Content-Type", contentType)

		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		_, _ = part.Write(imageContent)
	}

	_ = writer.Close()
	return body, writer.FormDataContentType(), nil
}

func createTestApp(svc FaceService) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(testLogger())})
	h := NewFaceHandler(svc, testLogger())

	app.Post("/v1/enrollments", h.Enroll)
	app.Delete("/v1/enrollments/:employee_id", h.Delete)
	app.Post("/v1/verifications", h.Verify)
	app.Post("/v1/match", h.Match)
	app.Post("/v1/identify", h.Identify)
	app.Get("/v1/employees/:employee_id/verifications", h.History)
	return app
}

func doMultipart(t *testing.T, app *fiber.App, path string, fields map[string]string, image []byte, contentType string) (int, []byte) {
	t.Helper()
	body, ct, err := createMultipartRequest(fields, image, contentType)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", ct)
	resp, err := app.Test(req)
	require.NoError(t, err)

	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Code
}

func TestFaceHandler_Enroll(t *testing.T) {
	enrollmentID := uuid.New()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		fields         map[string]string
		imageContent   []byte
		contentType    string
		setupMock      func(*MockFaceService)
		expectedStatus int
		expectedCode   string
		checkResponse  func(t *testing.T, body []byte)
	}{
		{
			name:         "successful enrollment",
			fields:       map[string]string{"employee_id": "emp-1", "strategy": "heuristic"},
			imageContent: facePNG,
			contentType:  "image/png",
			setupMock: func(m *MockFaceService) {
				m.On("Enroll", mock.Anything, "emp-1", domain.StrategyHeuristic, mock.AnythingOfType("*frame.Frame"), false).Return(&domain.Enrollment{
					ID:           enrollmentID,
					EmployeeID:   "emp-1",
					Strategy:     domain.StrategyHeuristic,
					QualityScore: 72,
					CreatedAt:    now,
				}, nil)
			},
			expectedStatus: 201,
			checkResponse: func(t *testing.T, body []byte) {
				var resp EnrollResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, enrollmentID.String(), resp.EnrollmentID)
				assert.Equal(t, "emp-1", resp.EmployeeID)
				assert.Equal(t, 72, resp.QualityScore)
				assert.Equal(t, "2026-03-02T08:00:00Z", resp.CreatedAt)
			},
		},
		{
			name:         "replace passes through",
			fields:       map[string]string{"employee_id": "emp-1", "replace": "true"},
			imageContent: facePNG,
			contentType:  "image/png",
			setupMock: func(m *MockFaceService) {
				m.On("Enroll", mock.Anything, "emp-1", domain.Strategy(""), mock.Anything, true).Return(&domain.Enrollment{
					ID:         enrollmentID,
					EmployeeID: "emp-1",
					Strategy:   domain.StrategyHeuristic,
					CreatedAt:  now,
				}, nil)
			},
			expectedStatus: 201,
		},
		{
			name:           "missing employee_id",
			fields:         map[string]string{},
			imageContent:   facePNG,
			contentType:    "image/png",
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: 422,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "unknown strategy",
			fields:         map[string]string{"employee_id": "emp-1", "strategy": "magic"},
			imageContent:   facePNG,
			contentType:    "image/png",
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: 422,
			expectedCode:   "INVALID_STRATEGY",
		},
		{
			name:           "missing image",
			fields:         map[string]string{"employee_id": "emp-1"},
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: 422,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "unsupported content type",
			fields:         map[string]string{"employee_id": "emp-1"},
			imageContent:   facePNG,
			contentType:    "application/pdf",
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: 422,
			expectedCode:   "INVALID_IMAGE",
		},
		{
			name:           "undecodable image",
			fields:         map[string]string{"employee_id": "emp-1"},
			imageContent:   make([]byte, 5000),
			contentType:    "image/jpeg",
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: 422,
			expectedCode:   "INVALID_IMAGE",
		},
		{
			name:         "enrollment exists",
			fields:       map[string]string{"employee_id": "emp-1"},
			imageContent: facePNG,
			contentType:  "image/png",
			setupMock: func(m *MockFaceService) {
				m.On("Enroll", mock.Anything, "emp-1", domain.Strategy(""), mock.Anything, false).Return(nil, domain.ErrEnrollmentExists)
			},
			expectedStatus: 409,
			expectedCode:   "ENROLLMENT_EXISTS",
		},
		{
			name:         "no face detected",
			fields:       map[string]string{"employee_id": "emp-1"},
			imageContent: facePNG,
			contentType:  "image/png",
			setupMock: func(m *MockFaceService) {
				m.On("Enroll", mock.Anything, "emp-1", domain.Strategy(""), mock.Anything, false).Return(nil, domain.ErrNoFaceDetected)
			},
			expectedStatus: 422,
			expectedCode:   "NO_FACE_DETECTED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockFaceService)
			tt.setupMock(svc)
			app := createTestApp(svc)

			status, body := doMultipart(t, app, "/v1/enrollments", tt.fields, tt.imageContent, tt.contentType)

			assert.Equal(t, tt.expectedStatus, status, string(body))
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, body))
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, body)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestFaceHandler_Verify(t *testing.T) {
	verificationID := uuid.New()

	tests := []struct {
		name           string
		fields         map[string]string
		setupMock      func(*MockFaceService)
		expectedStatus int
		expectedCode   string
		checkResponse  func(t *testing.T, body []byte)
	}{
		{
			name:   "matched",
			fields: map[string]string{"employee_id": "emp-1"},
			setupMock: func(m *MockFaceService) {
				m.On("Verify", mock.Anything, "emp-1", domain.Strategy(""), mock.Anything, 0.0).Return(&domain.Verification{
					ID:         verificationID,
					EmployeeID: "emp-1",
					Matched:    true,
					Distance:   0.05,
					Threshold:  0.12,
					Strategy:   domain.StrategyHeuristic,
					LatencyMs:  12,
				}, nil)
			},
			expectedStatus: 200,
			checkResponse: func(t *testing.T, body []byte) {
				var resp VerifyResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.True(t, resp.Matched)
				assert.Equal(t, verificationID.String(), resp.VerificationID)
				assert.InDelta(t, 0.05, resp.Distance, 1e-9)
				assert.Equal(t, domain.StrategyHeuristic, resp.Strategy)
			},
		},
		{
			name:   "explicit threshold",
			fields: map[string]string{"employee_id": "emp-1", "strategy": "model", "threshold": "0.4"},
			setupMock: func(m *MockFaceService) {
				m.On("Verify", mock.Anything, "emp-1", domain.StrategyModel, mock.Anything, 0.4).Return(&domain.Verification{
					ID:        verificationID,
					Threshold: 0.4,
					Strategy:  domain.StrategyModel,
				}, nil)
			},
			expectedStatus: 200,
		},
		{
			name:           "malformed threshold",
			fields:         map[string]string{"employee_id": "emp-1", "threshold": "high"},
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: 422,
			expectedCode:   "INVALID_THRESHOLD",
		},
		{
			name:           "zero threshold",
			fields:         map[string]string{"employee_id": "emp-1", "threshold": "0"},
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: 422,
			expectedCode:   "INVALID_THRESHOLD",
		},
		{
			name:           "negative threshold",
			fields:         map[string]string{"employee_id": "emp-1", "threshold": "-1"},
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: 422,
			expectedCode:   "INVALID_THRESHOLD",
		},
		{
			name:   "not enrolled",
			fields: map[string]string{"employee_id": "emp-404"},
			setupMock: func(m *MockFaceService) {
				m.On("Verify", mock.Anything, "emp-404", domain.Strategy(""), mock.Anything, 0.0).Return(nil, domain.ErrEnrollmentNotFound)
			},
			expectedStatus: 404,
			expectedCode:   "ENROLLMENT_NOT_FOUND",
		},
		{
			name:   "too many attempts",
			fields: map[string]string{"employee_id": "emp-1"},
			setupMock: func(m *MockFaceService) {
				m.On("Verify", mock.Anything, "emp-1", domain.Strategy(""), mock.Anything, 0.0).Return(nil, domain.ErrTooManyAttempts.WithError(errors.New("5/5 attempts in 5m0s")))
			},
			expectedStatus: 429,
			expectedCode:   "TOO_MANY_ATTEMPTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockFaceService)
			tt.setupMock(svc)
			app := createTestApp(svc)

			status, body := doMultipart(t, app, "/v1/verifications", tt.fields, facePNG, "image/png")

			assert.Equal(t, tt.expectedStatus, status, string(body))
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, body))
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, body)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestFaceHandler_Match(t *testing.T) {
	body := `{
		"enrolled":  {"strategy": "model", "vector": [1, 0, 0], "created_at": "2026-03-02T08:00:00Z"},
		"candidate": {"strategy": "model", "vector": [0.9, 0.1, 0], "created_at": "2026-03-02T08:00:00Z"},
		"threshold": 0.6
	}`

	t.Run("returns the comparison", func(t *testing.T) {
		svc := new(MockFaceService)
		svc.On("Match", mock.AnythingOfType("*domain.Fingerprint"), mock.AnythingOfType("*domain.Fingerprint"), 0.6).Return(&domain.VerificationResult{
			Matched:   true,
			Distance:  0.3,
			Threshold: 0.6,
			Strategy:  domain.StrategyModel,
		}, nil)
		app := createTestApp(svc)

		req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var result domain.VerificationResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.True(t, result.Matched)
		assert.InDelta(t, 0.3, result.Distance, 1e-9)
		svc.AssertExpectations(t)
	})

	t.Run("strategy mismatch", func(t *testing.T) {
		svc := new(MockFaceService)
		svc.On("Match", mock.Anything, mock.Anything, 0.6).Return(nil, domain.ErrStrategyMismatch)
		app := createTestApp(svc)

		req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 422, resp.StatusCode)

		data, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "STRATEGY_MISMATCH", errorCode(t, data))
	})

	t.Run("explicit non-positive threshold", func(t *testing.T) {
		for _, raw := range []string{"0", "-1"} {
			svc := new(MockFaceService)
			app := createTestApp(svc)

			payload := strings.Replace(body, `"threshold": 0.6`, `"threshold": `+raw, 1)
			req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, 422, resp.StatusCode, raw)

			data, _ := io.ReadAll(resp.Body)
			assert.Equal(t, "INVALID_THRESHOLD", errorCode(t, data), raw)
			svc.AssertNotCalled(t, "Match", mock.Anything, mock.Anything, mock.Anything)
		}
	})

	t.Run("invalid fingerprint", func(t *testing.T) {
		svc := new(MockFaceService)
		app := createTestApp(svc)

		req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(`{"enrolled":{"strategy":"model","vector":[]},"candidate":{"strategy":"model","vector":[1]}}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 422, resp.StatusCode)

		data, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "INVALID_FINGERPRINT", errorCode(t, data))
		svc.AssertNotCalled(t, "Match", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing candidate", func(t *testing.T) {
		svc := new(MockFaceService)
		app := createTestApp(svc)

		req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(`{"enrolled":{"strategy":"model","vector":[1]}}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 422, resp.StatusCode)
	})

	t.Run("malformed json", func(t *testing.T) {
		svc := new(MockFaceService)
		app := createTestApp(svc)

		req := httptest.NewRequest("POST", "/v1/match", strings.NewReader(`{`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})
}

func TestFaceHandler_Identify(t *testing.T) {
	searchID := uuid.New()

	t.Run("returns nearest employees", func(t *testing.T) {
		svc := new(MockFaceService)
		svc.On("Identify", mock.Anything, domain.StrategyHeuristic, mock.Anything, 0.0, 3).Return(&domain.IdentifyResult{
			Matches: []domain.IdentifyMatch{
				{EmployeeID: "emp-1", Distance: 0.04, Matched: true},
				{EmployeeID: "emp-2", Distance: 0.3},
			},
			Strategy:      domain.StrategyHeuristic,
			Threshold:     0.12,
			TotalEnrolled: 2,
			SearchID:      searchID,
		}, nil)
		app := createTestApp(svc)

		status, body := doMultipart(t, app, "/v1/identify", map[string]string{"strategy": "heuristic", "max_results": "3"}, facePNG, "image/png")
		assert.Equal(t, 200, status, string(body))

		var result domain.IdentifyResult
		require.NoError(t, json.Unmarshal(body, &result))
		require.Len(t, result.Matches, 2)
		assert.Equal(t, "emp-1", result.Matches[0].EmployeeID)
		assert.Equal(t, searchID, result.SearchID)
		svc.AssertExpectations(t)
	})

	t.Run("max_results out of range", func(t *testing.T) {
		svc := new(MockFaceService)
		app := createTestApp(svc)

		status, body := doMultipart(t, app, "/v1/identify", map[string]string{"max_results": "500"}, facePNG, "image/png")
		assert.Equal(t, 422, status)
		assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))
	})

	t.Run("non-positive threshold", func(t *testing.T) {
		for _, raw := range []string{"0", "-0.5", "NaN"} {
			svc := new(MockFaceService)
			app := createTestApp(svc)

			status, body := doMultipart(t, app, "/v1/identify", map[string]string{"threshold": raw}, facePNG, "image/png")
			assert.Equal(t, 422, status, raw)
			assert.Equal(t, "INVALID_THRESHOLD", errorCode(t, body), raw)
			svc.AssertNotCalled(t, "Identify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		}
	})

	t.Run("nothing enrolled", func(t *testing.T) {
		svc := new(MockFaceService)
		svc.On("Identify", mock.Anything, domain.Strategy(""), mock.Anything, 0.0, 0).Return(nil, domain.ErrIndexEmpty)
		app := createTestApp(svc)

		status, body := doMultipart(t, app, "/v1/identify", nil, facePNG, "image/png")
		assert.Equal(t, 404, status)
		assert.Equal(t, "INDEX_EMPTY", errorCode(t, body))
	})
}

func TestFaceHandler_Delete(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		setupMock      func(*MockFaceService)
		expectedStatus int
	}{
		{
			name: "all strategies",
			path: "/v1/enrollments/emp-1",
			setupMock: func(m *MockFaceService) {
				m.On("Delete", mock.Anything, "emp-1", domain.Strategy("")).Return(nil)
			},
			expectedStatus: 204,
		},
		{
			name: "one strategy",
			path: "/v1/enrollments/emp-1?strategy=model",
			setupMock: func(m *MockFaceService) {
				m.On("Delete", mock.Anything, "emp-1", domain.StrategyModel).Return(nil)
			},
			expectedStatus: 204,
		},
		{
			name:           "invalid strategy",
			path:           "/v1/enrollments/emp-1?strategy=magic",
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: 422,
		},
		{
			name: "not found",
			path: "/v1/enrollments/emp-404",
			setupMock: func(m *MockFaceService) {
				m.On("Delete", mock.Anything, "emp-404", domain.Strategy("")).Return(domain.ErrEnrollmentNotFound)
			},
			expectedStatus: 404,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockFaceService)
			tt.setupMock(svc)
			app := createTestApp(svc)

			resp, err := app.Test(httptest.NewRequest("DELETE", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			svc.AssertExpectations(t)
		})
	}
}

func TestFaceHandler_History(t *testing.T) {
	svc := new(MockFaceService)
	svc.On("History", mock.Anything, "emp-1", 5).Return([]domain.Verification{
		{ID: uuid.New(), EmployeeID: "emp-1", Matched: true},
		{ID: uuid.New(), EmployeeID: "emp-1", Matched: false},
	}, nil)
	app := createTestApp(svc)

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/employees/emp-1/verifications?limit=5", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "emp-1", result.EmployeeID)
	assert.Len(t, result.Verifications, 2)
	svc.AssertExpectations(t)
}
