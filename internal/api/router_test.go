package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/capture"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame/frametest"
	"github.com/saturnino-fabrica-de-software/facegate/internal/index"
	"github.com/saturnino-fabrica-de-software/facegate/internal/pipeline"
	"github.com/saturnino-fabrica-de-software/facegate/internal/repository"
	"github.com/saturnino-fabrica-de-software/facegate/internal/service"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ws"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemoryRouter(t *testing.T, requestsPerMinute int) *Router {
	t.Helper()

	svc := service.NewFaceService(
		repository.NewMemoryEnrollmentStore(),
		nil,
		pipeline.NewSet(nil, domain.StrategyHeuristic, 5),
		nil,
	).WithIndex(index.New(testLogger())).WithLogger(testLogger())

	configFor := func(st domain.Strategy) (capture.Config, error) { return capture.DefaultConfig(st), nil }

	r := NewRouter(testLogger(), &Dependencies{
		FaceService:       svc,
		Bridge:            ws.NewBridge(svc, ws.NewHub(), configFor, time.Minute, testLogger(), nil),
		RequestsPerMinute: requestsPerMinute,
	})
	r.Setup()
	t.Cleanup(func() { _ = r.Shutdown() })
	return r
}

func multipartImage(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="face.png"`)
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write(image)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func post(t *testing.T, r *Router, path string, fields map[string]string) (int, []byte) {
	t.Helper()
	body, ct := multipartImage(t, fields, frametest.PNG(frametest.Face(160, 120)))
	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", ct)
	resp, err := r.App().Test(req, -1)
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestRouter_Health(t *testing.T) {
	r := newMemoryRouter(t, 0)

	resp, err := r.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = r.App().Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var ready map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	assert.Equal(t, "disabled", ready["database"])
}

func TestRouter_NotFound(t *testing.T) {
	r := newMemoryRouter(t, 0)

	resp, err := r.App().Test(httptest.NewRequest("GET", "/nonexistent", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRouter_EnrollVerifyIdentifyDelete(t *testing.T) {
	r := newMemoryRouter(t, 0)

	status, body := post(t, r, "/v1/enrollments", map[string]string{"employee_id": "emp-1"})
	require.Equal(t, 201, status, string(body))

	status, body = post(t, r, "/v1/enrollments", map[string]string{"employee_id": "emp-1"})
	assert.Equal(t, 409, status, string(body))

	status, body = post(t, r, "/v1/verifications", map[string]string{"employee_id": "emp-1"})
	require.Equal(t, 200, status, string(body))
	var v map[string]any
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, true, v["matched"])
	assert.Equal(t, "heuristic", v["strategy"])

	status, body = post(t, r, "/v1/identify", nil)
	require.Equal(t, 200, status, string(body))
	var id domain.IdentifyResult
	require.NoError(t, json.Unmarshal(body, &id))
	require.NotEmpty(t, id.Matches)
	assert.Equal(t, "emp-1", id.Matches[0].EmployeeID)

	resp, err := r.App().Test(httptest.NewRequest("GET", "/v1/employees/emp-1/verifications", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = r.App().Test(httptest.NewRequest("DELETE", "/v1/enrollments/emp-1", nil))
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)

	status, _ = post(t, r, "/v1/verifications", map[string]string{"employee_id": "emp-1"})
	assert.Equal(t, 404, status)
}

func TestRouter_SessionRequiresUpgrade(t *testing.T) {
	r := newMemoryRouter(t, 0)

	resp, err := r.App().Test(httptest.NewRequest("GET", "/v1/sessions/ws?employee_id=emp-1", nil))
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "UPGRADE_REQUIRED", body.Error.Code)
}

func TestRouter_StatsNotMountedWithoutDatabase(t *testing.T) {
	r := newMemoryRouter(t, 0)

	resp, err := r.App().Test(httptest.NewRequest("GET", "/v1/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRouter_RateLimit(t *testing.T) {
	r := newMemoryRouter(t, 2)

	for i := 0; i < 2; i++ {
		resp, err := r.App().Test(httptest.NewRequest("GET", "/v1/employees/emp-1/verifications", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	}

	resp, err := r.App().Test(httptest.NewRequest("GET", "/v1/employees/emp-1/verifications", nil))
	require.NoError(t, err)
	assert.Equal(t, 429, resp.StatusCode)

	// health checks are outside /v1
	resp, err = r.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRouter_WithoutDependencies(t *testing.T) {
	r := NewRouter(testLogger(), nil)
	r.Setup()
	defer func() { _ = r.Shutdown() }()

	resp, err := r.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = r.App().Test(httptest.NewRequest("POST", "/v1/enrollments", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
