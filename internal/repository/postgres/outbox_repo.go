package postgres

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/jobs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// processingLease is how long a claimed job may stay in processing before another relay
// may claim it again.
const processingLease = 5 * time.Minute

type OutboxRepository struct {
	pool  *pgxpool.Pool
	lease time.Duration
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool, lease: processingLease}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// insertOutboxJob queues a job through db, which is either the pool or the transaction
// carrying the change the job announces.
func insertOutboxJob(ctx context.Context, db execer, topic string, payload []byte) error {
	q := `INSERT INTO outbox_jobs (topic, payload, status) VALUES ($1, $2::jsonb, 'pending')`
	_, err := db.Exec(ctx, q, topic, payload)
	return err
}

func (r *OutboxRepository) Enqueue(ctx context.Context, topic string, payload []byte) error {
	return insertOutboxJob(ctx, r.pool, topic, payload)
}

// ClaimPending moves up to limit due jobs to processing and bumps their attempt count.
// Jobs stuck in processing past the lease are claimed again.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int32) ([]jobs.OutboxJob, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
UPDATE outbox_jobs
SET status = 'processing', attempts = attempts + 1, updated_at = NOW()
WHERE id IN (
  SELECT id FROM outbox_jobs
  WHERE (status IN ('pending', 'retry') AND available_at <= NOW())
     OR (status = 'processing' AND updated_at <= $2)
  ORDER BY id ASC
  LIMIT $1
  FOR UPDATE SKIP LOCKED
)
RETURNING id, topic, payload, status, attempts, last_error, available_at
`
	rows, err := r.pool.Query(ctx, q, limit, time.Now().Add(-r.lease))
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (jobs.OutboxJob, error) {
		var job jobs.OutboxJob
		err := row.Scan(&job.ID, &job.Topic, &job.Payload, &job.Status, &job.Attempts, &job.LastError, &job.AvailableAt)
		return job, err
	})
	if err != nil {
		return nil, err
	}
	// RETURNING order is unspecified.
	slices.SortFunc(out, func(a, b jobs.OutboxJob) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *OutboxRepository) MarkDone(ctx context.Context, jobID int64) error {
	q := `UPDATE outbox_jobs SET status = 'done', last_error = '', updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, jobID)
	return err
}

func (r *OutboxRepository) MarkRetry(ctx context.Context, jobID int64, nextAvailableAt time.Time, lastError string) error {
	q := `UPDATE outbox_jobs SET status = 'retry', available_at = $2, last_error = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, jobID, nextAvailableAt, lastError)
	return err
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, jobID int64, lastError string) error {
	q := `UPDATE outbox_jobs SET status = 'failed', last_error = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, jobID, lastError)
	return err
}

func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*)::bigint FROM outbox_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
