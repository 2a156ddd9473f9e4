package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/saturnino-fabrica-de-software/facegate/internal/api"
	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/capture"
	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/database"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/face"
	"github.com/saturnino-fabrica-de-software/facegate/internal/index"
	"github.com/saturnino-fabrica-de-software/facegate/internal/matcher"
	"github.com/saturnino-fabrica-de-software/facegate/internal/metrics"
	"github.com/saturnino-fabrica-de-software/facegate/internal/pipeline"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ratelimit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/repository"
	"github.com/saturnino-fabrica-de-software/facegate/internal/service"
	"github.com/saturnino-fabrica-de-software/facegate/internal/webhook"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	strategy, err := cfg.Strategy()
	if err != nil {
		return err
	}

	var profile *config.Profile
	if cfg.CaptureProfile != "" {
		profile, err = config.LoadProfile(cfg.CaptureProfile)
		if err != nil {
			return fmt.Errorf("failed to load capture profile: %w", err)
		}
	}

	logger.Info("starting Facegate API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("strategy", string(strategy)),
		slog.String("model_backend", cfg.ModelBackend),
		slog.Bool("database", cfg.DatabaseURL != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditLogger := audit.NewSlogLogger(logger)

	backend, err := face.NewModelBackend(cfg, auditLogger)
	if err != nil {
		return err
	}
	if strategy == domain.StrategyModel && backend == nil {
		return fmt.Errorf("FACE_STRATEGY=model needs a MODEL_BACKEND")
	}
	pipelines := pipeline.NewSet(backend, strategy, cfg.QualityAbortThreshold)

	m := matcher.New()
	m.ModelThreshold, m.HeuristicThreshold = cfg.Thresholds(profile)

	deps := &api.Dependencies{RequestsPerMinute: cfg.RequestsPerMinute}

	var (
		enrollments repository.EnrollmentStore
		queue       webhook.Queue
		svc         *service.FaceService
	)

	if cfg.DatabaseURL != "" {
		pool, err := openDatabase(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		enrollments = repository.NewEnrollmentRepository(pool)
		svc = service.NewFaceService(enrollments, repository.NewVerificationRepository(pool), pipelines, m)
		queue = webhook.NewPgQueue(pool)

		limiter := ratelimit.NewAttemptLimiter(pool, cfg.VerifyAttemptLimit, cfg.VerifyAttemptWindow)
		svc.WithLimiter(limiter)

		stats := metrics.NewRepository(pool)
		deps.DB = pool
		deps.Stats = stats
		deps.Aggregator = metrics.NewAggregator(stats, logger, cfg.MetricsInterval, cfg.VerificationRetention, limiter)
	} else {
		logger.Warn("DATABASE_URL not set, enrollments are kept in memory")

		enrollments = repository.NewMemoryEnrollmentStore()
		svc = service.NewFaceService(enrollments, nil, pipelines, m)
		queue = webhook.NewMemoryQueue()
		svc.WithLimiter(ratelimit.NewMemoryLimiter(cfg.VerifyAttemptLimit, cfg.VerifyAttemptWindow))
	}

	ix := index.New(logger)
	strategies := []domain.Strategy{domain.StrategyHeuristic}
	if backend != nil {
		strategies = append(strategies, domain.StrategyModel)
	}
	if err := ix.Rebuild(ctx, enrollments, strategies...); err != nil {
		return fmt.Errorf("failed to build identification index: %w", err)
	}

	svc.WithIndex(ix).WithAudit(auditLogger).WithLogger(logger)

	if cfg.AttendanceWebhookURL != "" {
		notifier := webhook.NewService(webhook.Endpoint{
			URL:    cfg.AttendanceWebhookURL,
			Secret: cfg.AttendanceWebhookSecret,
		}, queue, logger)
		svc.WithNotifier(notifier)
		deps.WebhookWorker = webhook.NewWorker(queue, notifier, logger).WithInterval(cfg.WebhookRetryInterval)
	}

	configFor := func(s domain.Strategy) (capture.Config, error) {
		return cfg.CaptureConfig(s, profile)
	}
	if _, err := configFor(strategy); err != nil {
		return fmt.Errorf("invalid capture configuration: %w", err)
	}

	deps.FaceService = svc
	deps.Bridge = ws.NewBridge(svc, ws.NewHub(), configFor, cfg.SessionTimeout, logger, auditLogger)

	// Setup router
	router := api.NewRouter(logger, deps)
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}

// openDatabase connects and applies pending migrations.
func openDatabase(ctx context.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(dsn))
	if err != nil {
		return nil, err
	}

	dbName, err := database.DatabaseName(dsn)
	if err != nil {
		pool.Close()
		return nil, err
	}

	migrator, err := database.NewMigrator(database.SQLDB(pool), dbName)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer func() { _ = migrator.Close() }()

	if err := migrator.WithLogger(logger).Up(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	st, err := migrator.Status()
	if err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("database ready", slog.String("database", dbName), slog.Uint64("schema_version", uint64(st.Version)))
	return pool, nil
}
