package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Store is what the aggregator reads and prunes.
type Store interface {
	Summary(ctx context.Context, since time.Time) ([]StrategySummary, error)
	DeleteOldVerifications(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Cleaner is any other table with expiring rows, e.g. attempt counters.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Aggregator performs periodic housekeeping: it logs a verification summary
// for the elapsed interval and enforces the retention.
type Aggregator struct {
	store     Store
	cleaners  []Cleaner
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	done      chan struct{}
	now       func() time.Time
}

// NewAggregator creates a new metrics aggregator worker. A retention of
// zero keeps verifications forever.
func NewAggregator(store Store, logger *slog.Logger, interval, retention time.Duration, cleaners ...Cleaner) *Aggregator {
	if interval == 0 {
		interval = 1 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		store:     store,
		cleaners:  cleaners,
		logger:    logger.With("component", "metrics_aggregator"),
		interval:  interval,
		retention: retention,
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Start begins the aggregation worker
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval, "retention", a.retention)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.Aggregate(ctx)
		}
	}
}

// Stop gracefully shuts down the aggregator
func (a *Aggregator) Stop() {
	close(a.done)
}

// Aggregate runs one pass.
func (a *Aggregator) Aggregate(ctx context.Context) {
	a.logger.Debug("running metrics aggregation")

	summaries, err := a.store.Summary(ctx, a.now().Add(-a.interval))
	if err != nil {
		a.logger.Error("failed to summarise verifications", "error", err)
	}
	for _, s := range summaries {
		a.logger.Info("verification summary",
			"strategy", s.Strategy,
			"attempts", s.Attempts,
			"matched", s.Matched,
			"employees", s.Employees,
			"avg_distance", s.AvgDistance,
			"p95_latency_ms", s.P95LatencyMs,
		)
	}

	if a.retention > 0 {
		deleted, err := a.store.DeleteOldVerifications(ctx, a.retention)
		if err != nil {
			a.logger.Error("failed to delete old verifications", "error", err)
		} else if deleted > 0 {
			a.logger.Info("deleted old verifications", "count", deleted)
		}
	}

	for _, c := range a.cleaners {
		deleted, err := c.CleanupExpired(ctx)
		if err != nil {
			a.logger.Error("cleanup failed", "error", err)
			continue
		}
		if deleted > 0 {
			a.logger.Debug("expired rows removed", "count", deleted)
		}
	}
}
