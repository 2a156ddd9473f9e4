package rekognition

import "errors"

var (
	// ErrInvalidCredentials indicates that AWS credentials are invalid or missing
	ErrInvalidCredentials = errors.New("invalid or missing AWS credentials")

	// ErrInvalidImage indicates the image was rejected before or by Rekognition
	ErrInvalidImage = errors.New("invalid image for rekognition")

	// ErrNotLoaded is returned when the backend is used before Load
	ErrNotLoaded = errors.New("rekognition backend not loaded")
)
