// Package metrics aggregates the verification history into attendance
// statistics and prunes rows past their retention.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EmployeeStats summarises the decisions of one employee since a point in time.
type EmployeeStats struct {
	EmployeeID    string     `json:"employee_id"`
	Since         time.Time  `json:"since"`
	Attempts      int        `json:"attempts"`
	Matched       int        `json:"matched"`
	Rejected      int        `json:"rejected"`
	AvgDistance   float64    `json:"avg_distance"`
	AvgLatencyMs  float64    `json:"avg_latency_ms"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// MatchRate is Matched over Attempts, zero without attempts.
func (s EmployeeStats) MatchRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Attempts)
}

// StrategySummary aggregates all employees for one strategy.
type StrategySummary struct {
	Strategy     domain.Strategy `json:"strategy"`
	Attempts     int             `json:"attempts"`
	Matched      int             `json:"matched"`
	Employees    int             `json:"employees"`
	AvgDistance  float64         `json:"avg_distance"`
	P95LatencyMs float64         `json:"p95_latency_ms"`
}

// Repository handles database operations for metrics
type Repository struct {
	db  DB
	now func() time.Time
}

// NewRepository creates a new metrics repository
func NewRepository(db DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// EmployeeStats aggregates the verifications of employeeID created at or after since.
func (r *Repository) EmployeeStats(ctx context.Context, employeeID string, since time.Time) (*EmployeeStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE matched),
		       COALESCE(AVG(distance), 0),
		       COALESCE(AVG(latency_ms), 0),
		       MAX(created_at)
		FROM verifications
		WHERE employee_id = $1 AND created_at >= $2
	`

	stats := &EmployeeStats{EmployeeID: employeeID, Since: since}
	err := r.db.QueryRow(ctx, query, employeeID, since).Scan(
		&stats.Attempts,
		&stats.Matched,
		&stats.AvgDistance,
		&stats.AvgLatencyMs,
		&stats.LastAttemptAt,
	)
	if err != nil {
		return nil, fmt.Errorf("employee stats: %w", err)
	}
	stats.Rejected = stats.Attempts - stats.Matched

	return stats, nil
}

// Summary aggregates every verification since the given time per strategy.
func (r *Repository) Summary(ctx context.Context, since time.Time) ([]StrategySummary, error) {
	query := `
		SELECT strategy,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE matched),
		       COUNT(DISTINCT employee_id),
		       COALESCE(AVG(distance), 0),
		       COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY latency_ms), 0)
		FROM verifications
		WHERE created_at >= $1
		GROUP BY strategy
		ORDER BY strategy
	`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("verification summary: %w", err)
	}
	defer rows.Close()

	var out []StrategySummary
	for rows.Next() {
		var s StrategySummary
		if err := rows.Scan(&s.Strategy, &s.Attempts, &s.Matched, &s.Employees, &s.AvgDistance, &s.P95LatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

// DeleteOldVerifications removes verification records older than the retention.
func (r *Repository) DeleteOldVerifications(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM verifications
		WHERE created_at < $1
	`

	cutoff := r.now().Add(-olderThan)
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old verifications: %w", err)
	}

	return result.RowsAffected(), nil
}
