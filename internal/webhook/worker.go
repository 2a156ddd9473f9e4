package webhook

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultPollInterval = 5 * time.Second
	claimBatch          = 10
)

// Worker retries queued deliveries with exponential backoff.
type Worker struct {
	queue    Queue
	service  *Service
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	now      func() time.Time
}

func NewWorker(queue Queue, service *Service, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:    queue,
		service:  service,
		logger:   logger.With("component", "webhook_worker"),
		interval: DefaultPollInterval,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// WithInterval sets the poll period; non-positive values are ignored.
func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("webhook worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("webhook worker stopped")
			return
		case <-ticker.C:
			if err := w.ProcessQueue(ctx); err != nil {
				w.logger.Error("failed to process webhook queue", "error", err)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

// ProcessQueue handles one batch of due jobs.
func (w *Worker) ProcessQueue(ctx context.Context) error {
	jobs, err := w.queue.Claim(ctx, claimBatch)
	if err != nil {
		return err
	}

	for i := range jobs {
		job := &jobs[i]
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error("failed to process webhook job",
				"job_id", job.ID,
				"event_type", job.EventType,
				"attempts", job.Attempts,
				"error", err,
			)
		}
	}

	return nil
}

func (w *Worker) processJob(ctx context.Context, job *Job) error {
	if err := w.service.Send(ctx, job.ID, job.EventType, job.Payload); err != nil {
		return w.scheduleRetry(ctx, job, err.Error())
	}

	if err := w.queue.MarkDelivered(ctx, job.ID); err != nil {
		return err
	}
	w.logger.Info("webhook job completed", "job_id", job.ID)
	return nil
}

func (w *Worker) scheduleRetry(ctx context.Context, job *Job, errorMsg string) error {
	if job.Attempts+1 >= job.MaxAttempts {
		if err := w.queue.MarkFailed(ctx, job.ID, errorMsg); err != nil {
			return err
		}
		w.logger.Warn("webhook job failed", "job_id", job.ID, "error", errorMsg)
		return nil
	}

	delay := time.Duration(1<<job.Attempts) * time.Second
	nextRetry := w.now().Add(delay)

	if err := w.queue.ScheduleRetry(ctx, job.ID, nextRetry, errorMsg); err != nil {
		return err
	}

	w.logger.Info("webhook job scheduled for retry",
		"job_id", job.ID,
		"attempts", job.Attempts+1,
		"next_retry", nextRetry,
	)

	return nil
}
