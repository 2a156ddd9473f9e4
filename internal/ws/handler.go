package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/capture"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/matcher"
	"github.com/saturnino-fabrica-de-software/facegate/internal/pipeline"
	"github.com/saturnino-fabrica-de-software/facegate/internal/service"
)

// FaceService is what a live session hands its capture to.
type FaceService interface {
	Pipelines() *pipeline.Set
	VerifyFingerprint(ctx context.Context, employeeID string, fp *domain.Fingerprint, threshold float64, source string) (*domain.Verification, error)
	EnrollFingerprint(ctx context.Context, employeeID string, fp *domain.Fingerprint, qualityScore int, replace bool, source string) (*domain.Enrollment, error)
}

// ConfigFunc returns the capture configuration of a strategy.
type ConfigFunc func(domain.Strategy) (capture.Config, error)

// Params are the query parameters of a session.
type Params struct {
	EmployeeID string
	Mode       Mode
	Strategy   domain.Strategy
	Threshold  float64
	Replace    bool
}

func (p Params) Validate() error {
	if !p.Mode.Valid() {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("mode must be verify, enroll or capture"))
	}
	if p.Mode != ModeCapture && p.EmployeeID == "" {
		return domain.ErrValidationFailed.WithError(errors.New("employee_id is required"))
	}
	if p.Strategy != "" && !p.Strategy.Valid() {
		return domain.ErrInvalidStrategy
	}
	return nil
}

// ParseParams reads Params through a query getter. An empty mode means verify.
func ParseParams(query func(key string) string) (Params, error) {
	p := Params{
		EmployeeID: query("employee_id"),
		Mode:       Mode(query("mode")),
		Strategy:   domain.Strategy(query("strategy")),
	}
	if p.Mode == "" {
		p.Mode = ModeVerify
	}
	if raw := query("threshold"); raw != "" {
		t, err := matcher.ParseThreshold(raw)
		if err != nil {
			return p, err
		}
		p.Threshold = t
	}
	if raw := query("replace"); raw != "" {
		r, err := strconv.ParseBool(raw)
		if err != nil {
			return p, domain.ErrValidationFailed.WithError(fmt.Errorf("replace: %w", err))
		}
		p.Replace = r
	}
	return p, p.Validate()
}

// Bridge runs one capture session per websocket connection: the browser
// streams frames in, the session streams feedback out, and the capture is
// verified or enrolled through the face service.
type Bridge struct {
	service   FaceService
	hub       *Hub
	configFor ConfigFunc
	timeout   time.Duration
	logger    *slog.Logger
	audit     audit.Logger
}

func NewBridge(svc FaceService, hub *Hub, configFor ConfigFunc, timeout time.Duration, logger *slog.Logger, auditLogger audit.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLogger == nil {
		auditLogger = &audit.NoOpLogger{}
	}
	return &Bridge{
		service:   svc,
		hub:       hub,
		configFor: configFor,
		timeout:   timeout,
		logger:    logger.With("component", "ws"),
		audit:     auditLogger,
	}
}

func (b *Bridge) Hub() *Hub { return b.hub }

// Serve blocks until the session ended and its outcome was sent.
func (b *Bridge) Serve(ctx context.Context, conn Conn, p Params) {
	c := newClient(conn, p.EmployeeID, b.logger)

	writeDone := make(chan struct{})
	go func() {
		c.WritePump()
		close(writeDone)
	}()
	defer func() {
		c.closeSend()
		<-writeDone
		_ = conn.Close()
	}()

	if err := p.Validate(); err != nil {
		c.emitFinal(EventError, errorData(err, true))
		return
	}
	if err := b.hub.Register(c); err != nil {
		c.emitFinal(EventError, errorData(err, true))
		return
	}
	defer b.hub.Unregister(c)

	sessCtx, cancel := b.sessionContext(ctx)
	defer cancel()

	buffer := frame.NewBuffer()
	results := make(chan capture.Capture, 1)
	session, err := b.start(sessCtx, c, p, buffer, results)
	if err != nil {
		c.emitFinal(EventError, errorData(err, true))
		return
	}
	c.attach(session)

	log := b.logger.With(
		slog.String("session_id", session.ID().String()),
		slog.String("employee_id", p.EmployeeID),
		slog.String("mode", string(p.Mode)),
	)
	log.Info("live session started")

	readDone := make(chan struct{})
	go func() {
		c.ReadPump(ctx, buffer)
		close(readDone)
	}()

	<-session.Done()

	select {
	case cp := <-results:
		b.complete(ctx, c, p, cp)
	default:
		if errors.Is(sessCtx.Err(), context.DeadlineExceeded) {
			c.emitFinal(EventError, errorData(domain.ErrSessionTimeout, true))
		}
	}
	log.Info("live session ended", slog.String("state", string(session.State())))

	c.closeSend()
	<-writeDone
	_ = conn.Close()
	<-readDone
}

func (b *Bridge) sessionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout > 0 {
		return context.WithTimeout(ctx, b.timeout)
	}
	return context.WithCancel(ctx)
}

func (b *Bridge) start(ctx context.Context, c *Client, p Params, buffer *frame.Buffer, results chan<- capture.Capture) (*capture.Session, error) {
	pl, err := b.service.Pipelines().Get(p.Strategy)
	if err != nil {
		return nil, err
	}
	cfg, err := b.configFor(pl.Strategy())
	if err != nil {
		return nil, err
	}

	listener := capture.Callbacks{
		Feedback: func(f capture.Feedback) { c.Emit(EventFeedback, f) },
		Captured: func(cp capture.Capture) {
			select {
			case results <- cp:
			default:
			}
		},
		Error: func(e *capture.SessionError) {
			data := errorData(e.Err, e.Fatal)
			data.Code = e.Code
			c.Emit(EventError, data)
		},
	}

	return capture.Start(ctx, cfg, capture.Dependencies{
		Source:     buffer,
		Detector:   pl.Detector,
		Extractor:  pl.Extractor,
		Analyzer:   pl.Analyzer,
		Logger:     b.logger,
		Audit:      b.audit,
		EmployeeID: p.EmployeeID,
	}, listener)
}

func (b *Bridge) complete(ctx context.Context, c *Client, p Params, cp capture.Capture) {
	c.emitFinal(EventCaptured, cp)

	switch p.Mode {
	case ModeVerify:
		v, err := b.service.VerifyFingerprint(ctx, p.EmployeeID, cp.Fingerprint, p.Threshold, service.SourceSession)
		if err != nil {
			c.emitFinal(EventError, errorData(err, true))
			return
		}
		c.emitFinal(EventVerification, v)
	case ModeEnroll:
		e, err := b.service.EnrollFingerprint(ctx, p.EmployeeID, cp.Fingerprint, cp.Quality, p.Replace, service.SourceSession)
		if err != nil {
			c.emitFinal(EventError, errorData(err, true))
			return
		}
		c.emitFinal(EventEnrollment, e)
	}
}

// Reject sends a single error event and closes conn.
func Reject(conn Conn, err error) {
	c := newClient(conn, "", slog.Default())
	c.emitFinal(EventError, errorData(err, true))
	c.closeSend()
	c.WritePump()
	_ = conn.Close()
}

func Handler(b *Bridge) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		p, err := ParseParams(func(key string) string { return c.Query(key) })
		if err != nil {
			Reject(c, err)
			return
		}
		b.Serve(context.Background(), c, p)
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
