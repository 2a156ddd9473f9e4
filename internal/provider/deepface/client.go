package deepface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the configuration for the DeepFace client
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	Model        string
	Detector     string
	RetryCount   int
	RetryBackoff time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:5005",
		Timeout:      30 * time.Second,
		Model:        "Facenet512",
		Detector:     "retinaface",
		RetryCount:   3,
		RetryBackoff: time.Second,
	}
}

// Client is the HTTP client for DeepFace API
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new DeepFace client
func NewClient(config Config) *Client {
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// Ping checks that the API answers on its root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.doRequestWithRetry(ctx, http.MethodGet, "/", nil, nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Represent calls POST /represent to detect faces and generate embeddings.
// An image without faces yields an empty result rather than an error.
func (c *Client) Represent(ctx context.Context, imageDataURI string) (*RepresentResponse, error) {
	req := RepresentRequest{
		Img:              imageDataURI,
		Model:            c.config.Model,
		Detector:         c.config.Detector,
		EnforceDetection: true,
		Align:            true,
	}

	var resp RepresentResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/represent", req, &resp); err != nil {
		if isFaceNotDetected(err) {
			return &RepresentResponse{}, nil
		}
		return nil, err
	}

	return &resp, nil
}

// maxBackoff is the maximum backoff duration for retries
const maxBackoff = 30 * time.Second

// calculateBackoff doubles base per attempt: base, 2*base, 4*base... up to maxBackoff
func calculateBackoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return base
	}
	d := base
	for i := 1; i < attempt && i < 6; i++ {
		d *= 2
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// doRequestWithRetry executes HTTP request with retry logic
func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(c.config.RetryBackoff, attempt)):
			}
		}

		lastErr = c.doRequest(ctx, method, path, body, result)
		if lastErr == nil {
			return nil
		}

		// Don't retry on context errors
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// 4xx means the request itself is wrong; retrying cannot help
		if isClientError(lastErr) || errors.Is(lastErr, ErrInvalidResponse) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: %v", ErrDeepFaceUnavailable, lastErr)
}

// doRequest executes a single HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	url := c.config.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}

	return nil
}
