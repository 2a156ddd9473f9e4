package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool the repositories use, so tests can
// substitute pgxmock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EnrollmentStore defines operations for enrolled fingerprints. An empty
// strategy in Delete removes every enrollment of the employee.
type EnrollmentStore interface {
	Create(ctx context.Context, e *domain.Enrollment) error
	Upsert(ctx context.Context, e *domain.Enrollment) error
	Get(ctx context.Context, employeeID string, strategy domain.Strategy) (*domain.Enrollment, error)
	Delete(ctx context.Context, employeeID string, strategy domain.Strategy) error
	List(ctx context.Context, strategy domain.Strategy) ([]domain.Enrollment, error)
}

// VerificationStore records every 1:1 decision.
type VerificationStore interface {
	Create(ctx context.Context, v *domain.Verification) error
	ListByEmployee(ctx context.Context, employeeID string, limit int) ([]domain.Verification, error)
}

var (
	_ EnrollmentStore   = (*EnrollmentRepository)(nil)
	_ EnrollmentStore   = (*MemoryEnrollmentStore)(nil)
	_ VerificationStore = (*VerificationRepository)(nil)
)
