package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/facegate/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/facegate/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facegate/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facegate/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facegate/internal/webhook"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ws"
)

type Dependencies struct {
	FaceService handler.FaceService
	Bridge      *ws.Bridge
	// DB is pinged by /ready; nil when running on memory stores.
	DB    handler.Pinger
	Stats handler.StatsReader

	WebhookWorker *webhook.Worker
	Aggregator    *metrics.Aggregator

	RequestsPerMinute int
}

type Router struct {
	app          *fiber.App
	logger       *slog.Logger
	deps         *Dependencies
	rateLimiter  *middleware.RateLimiter
	cancelWorker context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Facegate API",
		BodyLimit:    12 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Swagger documentation
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var db handler.Pinger
	if r.deps != nil {
		db = r.deps.DB
	}
	healthHandler := handler.NewHealthHandler(db)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	if r.deps == nil {
		return
	}

	v1 := r.app.Group("/v1")

	// Rate limiting per client IP; the websocket is limited at connect time
	rlConfig := middleware.DefaultRateLimiterConfig()
	if r.deps.RequestsPerMinute != 0 {
		rlConfig.Max = r.deps.RequestsPerMinute
	}
	r.rateLimiter = middleware.NewRateLimiter(rlConfig)
	v1.Use(r.rateLimiter.Handler())

	r.startWorkers()

	faceHandler := handler.NewFaceHandler(r.deps.FaceService, r.logger)

	// Enrollment routes
	v1.Post("/enrollments", faceHandler.Enroll)
	v1.Delete("/enrollments/:employee_id", faceHandler.Delete)

	// Matching routes
	v1.Post("/verifications", faceHandler.Verify)
	v1.Post("/match", faceHandler.Match)
	v1.Post("/identify", faceHandler.Identify)

	// Employee routes
	v1.Get("/employees/:employee_id/verifications", faceHandler.History)
	if r.deps.Stats != nil {
		statsHandler := handler.NewStatsHandler(r.deps.Stats)
		v1.Get("/employees/:employee_id/stats", statsHandler.Employee)
		v1.Get("/stats", statsHandler.Summary)
	}

	// Live capture sessions
	if r.deps.Bridge != nil {
		v1.Get("/sessions/ws", ws.UpgradeMiddleware(), ws.Handler(r.deps.Bridge))
	}
}

func (r *Router) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelWorker = cancel

	if r.deps.WebhookWorker != nil {
		go r.deps.WebhookWorker.Run(ctx)
	}
	if r.deps.Aggregator != nil {
		go r.deps.Aggregator.Start(ctx)
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

// Shutdown cancels live sessions, stops the background workers and drains
// open requests.
func (r *Router) Shutdown() error {
	if r.deps != nil && r.deps.Bridge != nil {
		if n := r.deps.Bridge.Hub().CancelAll(); n > 0 {
			r.logger.Info("cancelled live sessions", slog.Int("count", n))
		}
	}

	// Stop webhook worker and aggregator
	if r.cancelWorker != nil {
		r.cancelWorker()
	}

	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.ShutdownWithTimeout(10 * time.Second)
}
