// Package ratelimit caps how many verification attempts a key (usually an
// employee) may make inside a fixed window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// DB interface for database operations
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// AttemptLimiter provides PostgreSQL-based attempt counting, so the limit
// holds across API replicas.
type AttemptLimiter struct {
	db     DB
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewAttemptLimiter creates a limiter allowing limit attempts per window.
// A limit of zero or less disables it.
func NewAttemptLimiter(db DB, limit int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		db:     db,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Check counts one attempt for key and returns ErrTooManyAttempts once the
// window holds more than the limit.
func (r *AttemptLimiter) Check(ctx context.Context, key string) error {
	if r.limit <= 0 {
		return nil
	}

	now := r.now()
	windowEnd := now.Add(r.window)

	// An expired window restarts at one.
	query := `
		INSERT INTO rate_limit_counters (key, count, window_start, window_end)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET
			count = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN 1
				ELSE rate_limit_counters.count + 1
			END,
			window_start = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN $2
				ELSE rate_limit_counters.window_start
			END,
			window_end = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN $3
				ELSE rate_limit_counters.window_end
			END
		RETURNING count
	`

	var count int
	if err := r.db.QueryRow(ctx, query, key, now, windowEnd).Scan(&count); err != nil {
		return fmt.Errorf("check attempt limit: %w", err)
	}

	if count > r.limit {
		return domain.ErrTooManyAttempts.WithError(
			fmt.Errorf("%d/%d attempts in %s", count, r.limit, r.window))
	}
	return nil
}

// CleanupExpired removes expired counters (run periodically)
func (r *AttemptLimiter) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM rate_limit_counters WHERE window_end < $1`
	result, err := r.db.Exec(ctx, query, r.now().Add(-time.Hour))
	if err != nil {
		return 0, fmt.Errorf("cleanup attempt counters: %w", err)
	}
	return result.RowsAffected(), nil
}

// Current returns the attempts counted for key in the open window.
func (r *AttemptLimiter) Current(ctx context.Context, key string) (int, error) {
	query := `
		SELECT count
		FROM rate_limit_counters
		WHERE key = $1 AND window_end > $2
	`

	var count int
	err := r.db.QueryRow(ctx, query, key, r.now()).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("current attempts: %w", err)
	}
	return count, nil
}

// Reset clears the counter of key, e.g. after a successful match.
func (r *AttemptLimiter) Reset(ctx context.Context, key string) error {
	query := `DELETE FROM rate_limit_counters WHERE key = $1`
	if _, err := r.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

// MemoryLimiter is the single-process counterpart used without a database.
type MemoryLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string]*counter
	now      func() time.Time
}

type counter struct {
	count     int
	windowEnd time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:    limit,
		window:   window,
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

func (m *MemoryLimiter) Check(_ context.Context, key string) error {
	if m.limit <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.counters[key]
	if !ok || !c.windowEnd.After(now) {
		c = &counter{windowEnd: now.Add(m.window)}
		m.counters[key] = c
	}
	c.count++

	if c.count > m.limit {
		return domain.ErrTooManyAttempts.WithError(
			fmt.Errorf("%d/%d attempts in %s", c.count, m.limit, m.window))
	}
	return nil
}

func (m *MemoryLimiter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.counters, key)
	m.mu.Unlock()
	return nil
}
