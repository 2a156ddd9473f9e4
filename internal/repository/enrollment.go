package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

const enrollmentColumns = `id, employee_id, strategy, fingerprint, fingerprint_created_at, quality_score, created_at, updated_at`

type EnrollmentRepository struct {
	pool PgxPool
}

func NewEnrollmentRepository(pool PgxPool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

func (r *EnrollmentRepository) Create(ctx context.Context, e *domain.Enrollment) error {
	query := `
		INSERT INTO enrollments (id, employee_id, strategy, fingerprint, fingerprint_created_at, quality_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	if err := prepare(e); err != nil {
		return err
	}

	err := r.pool.QueryRow(ctx, query,
		e.ID,
		e.EmployeeID,
		e.Strategy,
		toVector(e.Fingerprint),
		e.Fingerprint.CreatedAt(),
		e.QualityScore,
	).Scan(&e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEnrollmentExists
		}
		return fmt.Errorf("create enrollment: %w", err)
	}

	return nil
}

// Upsert replaces the fingerprint of an existing (employee, strategy) pair
// and keeps its id.
func (r *EnrollmentRepository) Upsert(ctx context.Context, e *domain.Enrollment) error {
	query := `
		INSERT INTO enrollments (id, employee_id, strategy, fingerprint, fingerprint_created_at, quality_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (employee_id, strategy) DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			fingerprint_created_at = EXCLUDED.fingerprint_created_at,
			quality_score = EXCLUDED.quality_score,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	if err := prepare(e); err != nil {
		return err
	}

	err := r.pool.QueryRow(ctx, query,
		e.ID,
		e.EmployeeID,
		e.Strategy,
		toVector(e.Fingerprint),
		e.Fingerprint.CreatedAt(),
		e.QualityScore,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}

	return nil
}

func (r *EnrollmentRepository) Get(ctx context.Context, employeeID string, strategy domain.Strategy) (*domain.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE employee_id = $1 AND strategy = $2
	`

	e, err := scanEnrollment(r.pool.QueryRow(ctx, query, employeeID, strategy))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}

	return e, nil
}

func (r *EnrollmentRepository) Delete(ctx context.Context, employeeID string, strategy domain.Strategy) error {
	query := `DELETE FROM enrollments WHERE employee_id = $1`
	args := []any{employeeID}
	if strategy != "" {
		query += ` AND strategy = $2`
		args = append(args, strategy)
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrEnrollmentNotFound
	}

	return nil
}

func (r *EnrollmentRepository) List(ctx context.Context, strategy domain.Strategy) ([]domain.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE strategy = $1
		ORDER BY employee_id
	`

	rows, err := r.pool.Query(ctx, query, strategy)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}

	return out, nil
}

func prepare(e *domain.Enrollment) error {
	if e.Fingerprint == nil {
		return domain.ErrInvalidFingerprint
	}
	if e.Strategy == "" {
		e.Strategy = e.Fingerprint.Strategy()
	}
	if e.Strategy != e.Fingerprint.Strategy() {
		return domain.ErrStrategyMismatch
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (*domain.Enrollment, error) {
	var (
		e         domain.Enrollment
		vec       pgvector.Vector
		fpCreated time.Time
	)

	err := row.Scan(
		&e.ID,
		&e.EmployeeID,
		&e.Strategy,
		&vec,
		&fpCreated,
		&e.QualityScore,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fp, err := fromVector(e.Strategy, vec, fpCreated)
	if err != nil {
		return nil, fmt.Errorf("enrollment %s: %w", e.EmployeeID, err)
	}
	e.Fingerprint = fp

	return &e, nil
}
