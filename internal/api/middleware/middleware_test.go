package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "app error",
			err:        domain.ErrEnrollmentNotFound,
			wantStatus: 404,
			wantCode:   "ENROLLMENT_NOT_FOUND",
		},
		{
			name:       "wrapped app error",
			err:        fmt.Errorf("employee e1: fingerprint: %w", domain.ErrNoFaceDetected),
			wantStatus: 422,
			wantCode:   "NO_FACE_DETECTED",
		},
		{
			name:       "fiber not found",
			err:        fiber.ErrNotFound,
			wantStatus: 404,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "upgrade required",
			err:        fiber.ErrUpgradeRequired,
			wantStatus: 426,
			wantCode:   "UPGRADE_REQUIRED",
		},
		{
			name:       "unknown error",
			err:        errors.New("boom"),
			wantStatus: 500,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(testLogger())})
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestErrorHandler_TooManyAttemptsSetsRetryAfter(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(testLogger())})
	app.Get("/", func(c *fiber.Ctx) error { return domain.ErrTooManyAttempts })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestRecover(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(testLogger())})
	app.Use(Recover(testLogger()))
	app.Get("/panic", func(c *fiber.Ctx) error { panic("kaboom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(testLogger())})
	app.Use(Logger(logger))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("OK") })
	app.Get("/missing", func(c *fiber.Ctx) error { return domain.ErrEnrollmentNotFound })

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "/missing", entry["path"])
	assert.Equal(t, float64(404), entry["status"])
}
