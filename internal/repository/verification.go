package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

type VerificationRepository struct {
	pool PgxPool
}

func NewVerificationRepository(pool PgxPool) *VerificationRepository {
	return &VerificationRepository{pool: pool}
}

func (r *VerificationRepository) Create(ctx context.Context, v *domain.Verification) error {
	query := `
		INSERT INTO verifications (id, enrollment_id, employee_id, matched, distance, threshold, strategy, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		v.ID,
		v.EnrollmentID,
		v.EmployeeID,
		v.Matched,
		v.Distance,
		v.Threshold,
		v.Strategy,
		v.LatencyMs,
	).Scan(&v.CreatedAt)

	if err != nil {
		return fmt.Errorf("create verification: %w", err)
	}

	return nil
}

// ListByEmployee returns the most recent decisions first.
func (r *VerificationRepository) ListByEmployee(ctx context.Context, employeeID string, limit int) ([]domain.Verification, error) {
	query := `
		SELECT id, enrollment_id, employee_id, matched, distance, threshold, strategy, latency_ms, created_at
		FROM verifications
		WHERE employee_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, employeeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Verification
	for rows.Next() {
		var v domain.Verification
		if err := rows.Scan(
			&v.ID,
			&v.EnrollmentID,
			&v.EmployeeID,
			&v.Matched,
			&v.Distance,
			&v.Threshold,
			&v.Strategy,
			&v.LatencyMs,
			&v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}

	return out, nil
}
