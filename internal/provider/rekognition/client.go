package rekognition

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/smithy-go"
)

const (
	errCodeAccessDenied       = "AccessDeniedException"
	errCodeInvalidParameter   = "InvalidParameterException"
	errCodeInvalidImageFormat = "InvalidImageFormatException"
	errCodeImageTooLarge      = "ImageTooLargeException"
	errCodeUnrecognizedClient = "UnrecognizedClientException"
)

// API is the subset of the Rekognition client used by the backend
type API interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// NewClient creates a Rekognition client using the AWS default credential
// chain and fails early when no credentials can be resolved
func NewClient(ctx context.Context, cfg Config) (API, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	return rekognition.NewFromConfig(awsCfg), nil
}

// parseAPIError maps Rekognition error codes. noFace reports that the image
// was rejected because it holds no usable face, which is not a failure.
func parseAPIError(err error) (mapped error, noFace bool) {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeAccessDenied, errCodeUnrecognizedClient:
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.ErrorMessage()), false
		case errCodeInvalidImageFormat, errCodeImageTooLarge:
			return fmt.Errorf("%w: %s", ErrInvalidImage, apiErr.ErrorMessage()), false
		case errCodeInvalidParameter:
			return nil, true
		}
	}
	return err, false
}
