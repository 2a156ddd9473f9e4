package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderSignature = "X-Facegate-Signature"
	HeaderTimestamp = "X-Facegate-Timestamp"
	HeaderEvent     = "X-Facegate-Event"
	HeaderDelivery  = "X-Facegate-Delivery"
)

// Service delivers attendance events to a single configured endpoint.
// Deliveries that fail are handed to the queue and retried by Worker.
type Service struct {
	endpoint    Endpoint
	client      *http.Client
	queue       Queue
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

func NewService(endpoint Endpoint, queue Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		queue:       queue,
		logger:      logger.With("component", "webhook"),
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
}

// Enabled reports whether an endpoint is configured. A nil Service is
// disabled.
func (s *Service) Enabled() bool {
	return s != nil && s.endpoint.URL != ""
}

// Notify sends an event once and queues it for retry when delivery fails.
// It returns an error only when the event could neither be sent nor queued.
func (s *Service) Notify(ctx context.Context, eventType string, data any) error {
	if !s.Enabled() {
		return nil
	}

	event := EventPayload{
		ID:        uuid.New(),
		Type:      eventType,
		Data:      data,
		Timestamp: s.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	sendErr := s.Send(ctx, event.ID, eventType, payload)
	if sendErr == nil {
		return nil
	}

	s.logger.WarnContext(ctx, "webhook delivery failed, queued for retry",
		slog.String("event_type", eventType),
		slog.String("error", sendErr.Error()),
	)

	if s.queue == nil {
		return sendErr
	}

	next := s.now().Add(time.Second)
	return s.queue.Enqueue(ctx, &Job{
		ID:          event.ID,
		EventType:   eventType,
		Payload:     payload,
		MaxAttempts: s.maxAttempts,
		NextRetryAt: &next,
		LastError:   sendErr.Error(),
	})
}

// Send performs a single signed POST.
func (s *Service) Send(ctx context.Context, deliveryID uuid.UUID, eventType string, payload []byte) error {
	timestamp := s.now().Unix()
	signature := Sign(s.endpoint.Secret, timestamp, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderDelivery, deliveryID.String())
	req.Header.Set("User-Agent", "Facegate-Webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return nil
}
