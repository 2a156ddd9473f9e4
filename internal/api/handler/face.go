package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/matcher"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// FaceService interface for the service
type FaceService interface {
	Enroll(ctx context.Context, employeeID string, strategy domain.Strategy, f *frame.Frame, replace bool) (*domain.Enrollment, error)
	Verify(ctx context.Context, employeeID string, strategy domain.Strategy, f *frame.Frame, threshold float64) (*domain.Verification, error)
	Match(enrolled, candidate *domain.Fingerprint, threshold float64) (*domain.VerificationResult, error)
	Identify(ctx context.Context, strategy domain.Strategy, f *frame.Frame, threshold float64, k int) (*domain.IdentifyResult, error)
	Delete(ctx context.Context, employeeID string, strategy domain.Strategy) error
	History(ctx context.Context, employeeID string, limit int) ([]domain.Verification, error)
}

// FaceHandler handles face-related requests
type FaceHandler struct {
	service FaceService
	logger  *slog.Logger
}

// NewFaceHandler creates a new FaceHandler instance
func NewFaceHandler(service FaceService, logger *slog.Logger) *FaceHandler {
	return &FaceHandler{
		service: service,
		logger:  logger,
	}
}

// EnrollResponse response for enroll endpoint
type EnrollResponse struct {
	EnrollmentID string          `json:"enrollment_id"`
	EmployeeID   string          `json:"employee_id"`
	Strategy     domain.Strategy `json:"strategy"`
	QualityScore int             `json:"quality_score"`
	CreatedAt    string          `json:"created_at"`
}

// VerifyResponse response for verify endpoint
type VerifyResponse struct {
	VerificationID string          `json:"verification_id"`
	EmployeeID     string          `json:"employee_id"`
	Matched        bool            `json:"matched"`
	Distance       float64         `json:"distance"`
	Threshold      float64         `json:"threshold"`
	Strategy       domain.Strategy `json:"strategy"`
	LatencyMs      int64           `json:"latency_ms"`
}

// MatchRequest compares two fingerprints produced elsewhere.
type MatchRequest struct {
	Enrolled  *domain.Fingerprint `json:"enrolled"`
	Candidate *domain.Fingerprint `json:"candidate"`
	Threshold *float64            `json:"threshold,omitempty"`
}

// HistoryResponse lists recent verification decisions.
type HistoryResponse struct {
	EmployeeID    string                `json:"employee_id"`
	Verifications []domain.Verification `json:"verifications"`
}

// Enroll POST /v1/enrollments - register the reference face of an employee
func (h *FaceHandler) Enroll(c *fiber.Ctx) error {
	employeeID, err := requiredForm(c, "employee_id")
	if err != nil {
		return err
	}
	strategy, err := domain.ParseStrategy(c.FormValue("strategy"), "")
	if err != nil {
		return err
	}
	replace, err := optionalBool(c.FormValue("replace"))
	if err != nil {
		return err
	}

	f, err := extractFrame(c)
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}

	e, err := h.service.Enroll(c.UserContext(), employeeID, strategy, f, replace)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(EnrollResponse{
		EnrollmentID: e.ID.String(),
		EmployeeID:   e.EmployeeID,
		Strategy:     e.Strategy,
		QualityScore: e.QualityScore,
		CreatedAt:    e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

// Verify POST /v1/verifications - verify face 1:1 against the enrollment
func (h *FaceHandler) Verify(c *fiber.Ctx) error {
	employeeID, err := requiredForm(c, "employee_id")
	if err != nil {
		return err
	}
	strategy, err := domain.ParseStrategy(c.FormValue("strategy"), "")
	if err != nil {
		return err
	}
	threshold, err := optionalThreshold(c.FormValue("threshold"))
	if err != nil {
		return err
	}

	f, err := extractFrame(c)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	v, err := h.service.Verify(c.UserContext(), employeeID, strategy, f, threshold)
	if err != nil {
		return err
	}

	return c.JSON(VerifyResponse{
		VerificationID: v.ID.String(),
		EmployeeID:     v.EmployeeID,
		Matched:        v.Matched,
		Distance:       v.Distance,
		Threshold:      v.Threshold,
		Strategy:       v.Strategy,
		LatencyMs:      v.LatencyMs,
	})
}

// Match POST /v1/match - compare two fingerprints, nothing is stored
func (h *FaceHandler) Match(c *fiber.Ctx) error {
	var req MatchRequest
	if err := c.BodyParser(&req); err != nil {
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return domain.ErrBadRequest.WithError(err)
	}
	if req.Enrolled == nil || req.Candidate == nil {
		return domain.ErrValidationFailed.WithError(errors.New("enrolled and candidate are required"))
	}

	var threshold float64
	if req.Threshold != nil {
		if t := *req.Threshold; !(t > 0) {
			return domain.ErrInvalidThreshold.WithError(fmt.Errorf("threshold %g must be positive", t))
		}
		threshold = *req.Threshold
	}

	result, err := h.service.Match(req.Enrolled, req.Candidate, threshold)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// Identify POST /v1/identify - search the enrolled employees 1:N
func (h *FaceHandler) Identify(c *fiber.Ctx) error {
	strategy, err := domain.ParseStrategy(c.FormValue("strategy"), "")
	if err != nil {
		return err
	}
	threshold, err := optionalThreshold(c.FormValue("threshold"))
	if err != nil {
		return err
	}
	k := 0
	if raw := c.FormValue("max_results"); raw != "" {
		k, err = strconv.Atoi(raw)
		if err != nil || k < 1 || k > 50 {
			return domain.ErrValidationFailed.WithError(errors.New("max_results must be between 1 and 50"))
		}
	}

	f, err := extractFrame(c)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	result, err := h.service.Identify(c.UserContext(), strategy, f, threshold, k)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// Delete DELETE /v1/enrollments/:employee_id - remove the employee's face data
func (h *FaceHandler) Delete(c *fiber.Ctx) error {
	employeeID := strings.TrimSpace(c.Params("employee_id"))
	if employeeID == "" {
		return domain.ErrValidationFailed.WithError(errors.New("employee_id is required"))
	}
	strategy, err := domain.ParseStrategy(c.Query("strategy"), "")
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.UserContext(), employeeID, strategy); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// History GET /v1/employees/:employee_id/verifications
func (h *FaceHandler) History(c *fiber.Ctx) error {
	employeeID := strings.TrimSpace(c.Params("employee_id"))
	if employeeID == "" {
		return domain.ErrValidationFailed.WithError(errors.New("employee_id is required"))
	}

	items, err := h.service.History(c.UserContext(), employeeID, c.QueryInt("limit", 20))
	if err != nil {
		return err
	}

	return c.JSON(HistoryResponse{EmployeeID: employeeID, Verifications: items})
}

func requiredForm(c *fiber.Ctx, key string) (string, error) {
	v := strings.TrimSpace(c.FormValue(key))
	if v == "" {
		return "", domain.ErrValidationFailed.WithError(fmt.Errorf("%s is required", key))
	}
	return v, nil
}

// optionalThreshold parses a threshold form value; empty means the
// strategy default.
func optionalThreshold(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	return matcher.ParseThreshold(raw)
}

func optionalBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.ErrValidationFailed.WithError(fmt.Errorf("replace: %w", err))
	}
	return b, nil
}

// extractFrame reads, validates and decodes the "image" form file
func extractFrame(c *fiber.Ctx) (*frame.Frame, error) {
	// 1. Extract file
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	// 2. Validate size
	if file.Size > maxImageSize || file.Size == 0 {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("image size %d", file.Size))
	}

	// 3. Validate Content-Type
	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("content type %q", contentType))
	}

	// 4. Read image bytes
	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	// 5. Decode
	decoded, err := frame.Decode(imageBytes)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	return decoded, nil
}
