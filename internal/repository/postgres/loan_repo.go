package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/loan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type LoanRepository struct {
	pool *pgxpool.Pool
}

func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

// Create inserts the loan and its announcement in one transaction.
func (r *LoanRepository) Create(ctx context.Context, s loan.Snapshot, submissionHash []byte, msg loan.OutboxMessage) (*loan.Record, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `
INSERT INTO loans (
  id, submission_id, submission_hash, borrower, lender, status, currency, total_balance, snapshot
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb)
RETURNING created_at, updated_at
`
	out := &loan.Record{Snapshot: s}
	err = tx.QueryRow(ctx, q,
		s.ID, s.SubmissionID, submissionHash, s.Borrower, s.Lender, string(s.Status), s.Currency, s.TotalBalance.String(), raw,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, loan.ErrDuplicateSubmission
		}
		return nil, err
	}
	if err := insertOutboxJob(ctx, tx, msg.Topic, msg.Payload); err != nil {
		return nil, fmt.Errorf("queue %s: %w", msg.Topic, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id string) (*loan.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, loan.ErrNotFound
	}
	q := `SELECT snapshot, created_at, updated_at FROM loans WHERE id = $1`
	out := &loan.Record{}
	var raw []byte
	err := r.pool.QueryRow(ctx, q, id).Scan(&raw, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, loan.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &out.Snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return out, nil
}

// Update stores the snapshot and, when msg is set, queues it in the same transaction.
func (r *LoanRepository) Update(ctx context.Context, s loan.Snapshot, msg *loan.OutboxMessage) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `
UPDATE loans
SET lender = $2, status = $3, total_balance = $4, snapshot = $5::jsonb, updated_at = NOW()
WHERE id = $1
`
	tag, err := tx.Exec(ctx, q, s.ID, s.Lender, string(s.Status), s.TotalBalance.String(), raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return loan.ErrNotFound
	}
	if msg != nil {
		if err := insertOutboxJob(ctx, tx, msg.Topic, msg.Payload); err != nil {
			return fmt.Errorf("queue %s: %w", msg.Topic, err)
		}
	}
	return tx.Commit(ctx)
}

func (r *LoanRepository) List(ctx context.Context, f loan.ListFilter) ([]loan.Record, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	builder := strings.Builder{}
	builder.WriteString(`
SELECT snapshot, created_at, updated_at
FROM loans
WHERE 1=1`)

	args := []any{}
	argPos := 1
	if strings.TrimSpace(f.Borrower) != "" {
		builder.WriteString(" AND borrower = $")
		builder.WriteString(strconv.Itoa(argPos))
		args = append(args, strings.TrimSpace(f.Borrower))
		argPos++
	}
	if strings.TrimSpace(f.Lender) != "" {
		builder.WriteString(" AND lender = $")
		builder.WriteString(strconv.Itoa(argPos))
		args = append(args, strings.TrimSpace(f.Lender))
		argPos++
	}
	if strings.TrimSpace(f.Status) != "" {
		builder.WriteString(" AND status = $")
		builder.WriteString(strconv.Itoa(argPos))
		args = append(args, strings.TrimSpace(f.Status))
		argPos++
	}
	builder.WriteString(" ORDER BY created_at DESC, id")
	builder.WriteString(" LIMIT $")
	builder.WriteString(strconv.Itoa(argPos))
	args = append(args, f.Limit)
	argPos++
	builder.WriteString(" OFFSET $")
	builder.WriteString(strconv.Itoa(argPos))
	args = append(args, f.Offset)

	rows, err := r.pool.Query(ctx, builder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]loan.Record, 0)
	for rows.Next() {
		var item loan.Record
		var raw []byte
		if err := rows.Scan(&raw, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &item.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LoanRepository) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loans WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}
