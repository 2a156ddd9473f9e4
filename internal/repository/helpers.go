package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

const uniqueViolation = "23505"

// isUniqueViolation checks if the error is a unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func toVector(fp *domain.Fingerprint) pgvector.Vector {
	floats := make([]float32, fp.Len())
	for i := range floats {
		floats[i] = float32(fp.At(i))
	}
	return pgvector.NewVector(floats)
}

// fromVector rebuilds a fingerprint. Values are stored as float32, which is
// well below the matching tolerance.
func fromVector(strategy domain.Strategy, vec pgvector.Vector, createdAt time.Time) (*domain.Fingerprint, error) {
	slice := vec.Slice()
	values := make([]float64, len(slice))
	for i, v := range slice {
		values[i] = float64(v)
	}
	fp, err := domain.NewFingerprint(strategy, values, createdAt)
	if err != nil {
		return nil, fmt.Errorf("decode fingerprint: %w", err)
	}
	return fp, nil
}
