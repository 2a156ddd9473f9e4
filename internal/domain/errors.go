package domain

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Fatal      bool   `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so that errors produced by WithError still compare
// equal to the sentinel they were derived from.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Fatal:      e.Fatal,
		Err:        err,
	}
}

// IsFatal reports whether err ends a capture session.
func IsFatal(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Fatal
	}
	return false
}

// Code returns the AppError code carried by err, or ErrInternal's code.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: 404,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		StatusCode: 422,
	}

	// Capture errors
	ErrNoFrameSource = &AppError{
		Code:       "NO_FRAME_SOURCE",
		Message:    "No frame source available",
		StatusCode: 400,
		Fatal:      true,
	}

	ErrFrameSourceFailure = &AppError{
		Code:       "FRAME_SOURCE_FAILURE",
		Message:    "Frame source stopped delivering frames",
		StatusCode: 502,
		Fatal:      true,
	}

	ErrModelLoadFailure = &AppError{
		Code:       "MODEL_LOAD_FAILURE",
		Message:    "Face model backend could not be loaded",
		StatusCode: 503,
		Fatal:      true,
	}

	ErrModelBackend = &AppError{
		Code:       "MODEL_BACKEND_ERROR",
		Message:    "Face model backend failed",
		StatusCode: 502,
		Fatal:      true,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 422,
	}

	ErrMultipleFaces = &AppError{
		Code:       "MULTIPLE_FACES",
		Message:    "Multiple faces detected, please provide image with single face",
		StatusCode: 422,
	}

	ErrLowQualityImage = &AppError{
		Code:       "LOW_QUALITY_IMAGE",
		Message:    "Image quality too low for reliable recognition",
		StatusCode: 422,
	}

	ErrNoValidFace = &AppError{
		Code:       "NO_VALID_FACE",
		Message:    "No valid face could be extracted from the frame",
		StatusCode: 422,
	}

	ErrExtractionFailed = &AppError{
		Code:       "EXTRACTION_FAILED",
		Message:    "Fingerprint extraction failed",
		StatusCode: 422,
	}

	ErrSessionNotActive = &AppError{
		Code:       "SESSION_NOT_ACTIVE",
		Message:    "Capture session is not active",
		StatusCode: 409,
	}

	ErrCaptureInProgress = &AppError{
		Code:       "CAPTURE_IN_PROGRESS",
		Message:    "A capture is already in progress",
		StatusCode: 409,
	}

	ErrSessionTimeout = &AppError{
		Code:       "SESSION_TIMEOUT",
		Message:    "Capture session timed out",
		StatusCode: 408,
		Fatal:      true,
	}

	// Matching errors
	ErrStrategyMismatch = &AppError{
		Code:       "STRATEGY_MISMATCH",
		Message:    "Fingerprints were produced by different strategies",
		StatusCode: 422,
	}

	ErrInvalidFingerprint = &AppError{
		Code:       "INVALID_FINGERPRINT",
		Message:    "Fingerprint vector is empty or malformed",
		StatusCode: 422,
	}

	ErrInvalidStrategy = &AppError{
		Code:       "INVALID_STRATEGY",
		Message:    "Unknown fingerprint strategy",
		StatusCode: 422,
	}

	ErrInvalidThreshold = &AppError{
		Code:       "INVALID_THRESHOLD",
		Message:    "Threshold must be a positive number",
		StatusCode: 422,
	}

	// Enrollment errors
	ErrEnrollmentNotFound = &AppError{
		Code:       "ENROLLMENT_NOT_FOUND",
		Message:    "No enrolled face for this employee",
		StatusCode: 404,
	}

	ErrEnrollmentExists = &AppError{
		Code:       "ENROLLMENT_EXISTS",
		Message:    "Employee already has an enrolled face for this strategy",
		StatusCode: 409,
	}

	ErrTooManyAttempts = &AppError{
		Code:       "TOO_MANY_ATTEMPTS",
		Message:    "Too many verification attempts, try again later",
		StatusCode: 429,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded",
		StatusCode: 429,
	}

	ErrIndexEmpty = &AppError{
		Code:       "INDEX_EMPTY",
		Message:    "No enrolled faces available for identification",
		StatusCode: 404,
	}
)
