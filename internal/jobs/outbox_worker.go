package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/observability"
)

// Topics relayed to subscribers. Anything else is retried and eventually failed.
var relayTopics = map[string]struct{}{
	"loan_submitted":       {},
	"loan_funded":          {},
	"repayment_recorded":   {},
	"late_fee_imposed":     {},
	"loan_repaid":          {},
	"loan_defaulted":       {},
	"loan_annotated":       {},
	"negotiation_recorded": {},
	"negotiation_undone":   {},
}

type OutboxJob struct {
	ID          int64
	Topic       string
	Payload     []byte
	Status      string
	Attempts    int32
	LastError   string
	AvailableAt time.Time
}

type OutboxRepository interface {
	ClaimPending(ctx context.Context, limit int32) ([]OutboxJob, error)
	MarkDone(ctx context.Context, jobID int64) error
	MarkRetry(ctx context.Context, jobID int64, nextAvailableAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, jobID int64, lastError string) error
}

// Publisher delivers one outbox event to its subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type Worker struct {
	outboxRepo   OutboxRepository
	publisher    Publisher
	logger       *slog.Logger
	maxAttempts  int32
	now          func() time.Time
	retryBackoff func(attempt int32) time.Duration
}

func NewWorker(outboxRepo OutboxRepository, publisher Publisher, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		outboxRepo:  outboxRepo,
		publisher:   publisher,
		logger:      logger,
		maxAttempts: 5,
		now:         func() time.Time { return time.Now().UTC() },
		retryBackoff: func(attempt int32) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			return time.Duration(attempt*15) * time.Second
		},
	}
}

// RunOnce relays one claimed batch. A job whose status update fails is logged and left to
// the claim lease; the rest of the batch still runs.
func (w *Worker) RunOnce(ctx context.Context, batchSize int32) error {
	jobs, err := w.outboxRepo.ClaimPending(ctx, batchSize)
	if err != nil {
		return err
	}

	var errs []error
	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Warn("outbox job update failed", "job_id", job.ID, "topic", job.Topic, "err", err)
			errs = append(errs, fmt.Errorf("job %d: %w", job.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Run polls the outbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration, batchSize int32) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("outbox relay started", "interval", interval.String(), "batch_size", batchSize)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			runCtx, runCancel := context.WithTimeout(ctx, 30*time.Second)
			err := w.RunOnce(runCtx, batchSize)
			runCancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("outbox relay run failed", "err", err)
			}
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job OutboxJob) error {
	if _, ok := relayTopics[job.Topic]; !ok {
		return w.handleJobError(ctx, job, errors.New("unsupported_topic"))
	}

	var payload struct {
		LoanID string `json:"loan_id"`
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return w.handleJobError(ctx, job, fmt.Errorf("invalid_payload"))
	}
	if payload.LoanID == "" {
		return w.handleJobError(ctx, job, errors.New("missing_loan_id"))
	}

	if err := w.publisher.Publish(ctx, job.Topic, job.Payload); err != nil {
		return w.handleJobError(ctx, job, err)
	}

	observability.OutboxJobs.WithLabelValues(job.Topic, "done").Inc()
	return w.outboxRepo.MarkDone(ctx, job.ID)
}

func (w *Worker) handleJobError(ctx context.Context, job OutboxJob, err error) error {
	msg := err.Error()
	if job.Attempts >= w.maxAttempts {
		observability.OutboxJobs.WithLabelValues(job.Topic, "failed").Inc()
		w.logger.Warn("outbox job failed", "job_id", job.ID, "topic", job.Topic, "attempts", job.Attempts, "err", msg)
		return w.outboxRepo.MarkFailed(ctx, job.ID, msg)
	}
	observability.OutboxJobs.WithLabelValues(job.Topic, "retry").Inc()
	next := w.now().Add(w.retryBackoff(job.Attempts))
	return w.outboxRepo.MarkRetry(ctx, job.ID, next, msg)
}
