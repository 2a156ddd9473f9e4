package deepface

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDeepFaceUnavailable = errors.New("deepface service unavailable")
	ErrInvalidResponse     = errors.New("invalid response from deepface")
	ErrNoFaceInResponse    = errors.New("no face data in deepface response")
)

// StatusError is a non-2xx answer from the DeepFace API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deepface returned status %d: %s", e.StatusCode, e.Body)
}

// isClientError checks if the error is a 4xx client error
func isClientError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500
	}
	return false
}

// isFaceNotDetected recognises the 400 DeepFace answers with when
// enforce_detection is on and the image holds no face.
func isFaceNotDetected(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 400 {
		return false
	}
	body := strings.ToLower(se.Body)
	return strings.Contains(body, "face could not be detected")
}
