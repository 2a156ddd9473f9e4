package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Queue holds deliveries that failed on the first attempt.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	// Claim marks up to limit due jobs as processing and returns them.
	Claim(ctx context.Context, limit int) ([]Job, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, next time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PgQueue struct {
	db pgxPool
}

func NewPgQueue(db pgxPool) *PgQueue {
	return &PgQueue{db: db}
}

func (q *PgQueue) Enqueue(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO webhook_queue (id, event_type, payload, attempts, max_attempts, next_retry_at, status, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
	`

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	_, err := q.db.Exec(ctx, query, job.ID, job.EventType, job.Payload, job.Attempts, job.MaxAttempts, job.NextRetryAt, job.LastError)
	if err != nil {
		return fmt.Errorf("enqueue webhook: %w", err)
	}

	return nil
}

func (q *PgQueue) Claim(ctx context.Context, limit int) ([]Job, error) {
	query := `
		UPDATE webhook_queue
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM webhook_queue
			WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING id, event_type, payload, attempts, max_attempts
	`

	rows, err := q.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim webhook jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.EventType, &job.Payload, &job.Attempts, &job.MaxAttempts); err != nil {
			return nil, fmt.Errorf("scan webhook job: %w", err)
		}
		job.Status = StatusProcessing
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (q *PgQueue) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhook_queue
		SET status = 'delivered',
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := q.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	return nil
}

func (q *PgQueue) ScheduleRetry(ctx context.Context, id uuid.UUID, next time.Time, lastError string) error {
	query := `
		UPDATE webhook_queue
		SET attempts = attempts + 1,
		    next_retry_at = $1,
		    last_error = $2,
		    status = 'pending',
		    updated_at = NOW()
		WHERE id = $3
	`

	if _, err := q.db.Exec(ctx, query, next, lastError, id); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

func (q *PgQueue) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `
		UPDATE webhook_queue
		SET status = 'failed',
		    last_error = $1,
		    updated_at = NOW()
		WHERE id = $2
	`

	if _, err := q.db.Exec(ctx, query, lastError, id); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// MemoryQueue is used when the service runs without a database. Pending
// retries are lost on restart.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
	now  func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[uuid.UUID]*Job), now: time.Now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	j := *job
	j.Status = StatusPending
	j.CreatedAt = q.now()
	j.UpdatedAt = j.CreatedAt
	q.jobs[j.ID] = &j
	return nil
}

func (q *MemoryQueue) Claim(_ context.Context, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []Job
	for _, j := range q.jobs {
		if len(out) >= limit {
			break
		}
		if j.Status != StatusPending || (j.NextRetryAt != nil && j.NextRetryAt.After(now)) {
			continue
		}
		j.Status = StatusProcessing
		j.UpdatedAt = now
		out = append(out, *j)
	}
	return out, nil
}

func (q *MemoryQueue) MarkDelivered(_ context.Context, id uuid.UUID) error {
	return q.update(id, func(j *Job) { j.Status = StatusDelivered })
}

func (q *MemoryQueue) ScheduleRetry(_ context.Context, id uuid.UUID, next time.Time, lastError string) error {
	return q.update(id, func(j *Job) {
		j.Attempts++
		j.NextRetryAt = &next
		j.LastError = lastError
		j.Status = StatusPending
	})
}

func (q *MemoryQueue) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	return q.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.LastError = lastError
	})
}

// Get returns a copy of a job. Used by tests.
func (q *MemoryQueue) Get(id uuid.UUID) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (q *MemoryQueue) update(id uuid.UUID, fn func(*Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("webhook job %s not found", id)
	}
	fn(j)
	j.UpdatedAt = q.now()
	return nil
}
