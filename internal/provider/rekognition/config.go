package rekognition

// Config holds configuration for the AWS Rekognition backend
type Config struct {
	// Region is the AWS region where Rekognition service will be used (e.g., "us-east-1")
	Region string

	// MinConfidence drops detections below this confidence (0-100)
	MinConfidence float64
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region:        "us-east-1",
		MinConfidence: 90,
	}
}
