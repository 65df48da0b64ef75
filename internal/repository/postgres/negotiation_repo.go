package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/negotiation"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NegotiationRepository struct {
	pool *pgxpool.Pool
}

func NewNegotiationRepository(pool *pgxpool.Pool) *NegotiationRepository {
	return &NegotiationRepository{pool: pool}
}

// AppendOp journals an append or undo row and queues msg in one transaction.
func (r *NegotiationRepository) AppendOp(ctx context.Context, loanID string, op negotiation.Op, msg negotiation.OutboxMessage) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `
INSERT INTO negotiation_events (loan_id, op, initiator, proposed_at, effective_at, changes)
VALUES ($1, $2, $3, $4, $5, $6)
`
	e := op.Event
	if _, err := tx.Exec(ctx, q, loanID, string(op.Kind), e.Initiator(), e.ProposedAt(), e.EffectiveAt(), e.Changes()); err != nil {
		return err
	}
	if err := insertOutboxJob(ctx, tx, msg.Topic, msg.Payload); err != nil {
		return fmt.Errorf("queue %s: %w", msg.Topic, err)
	}
	return tx.Commit(ctx)
}

func (r *NegotiationRepository) ListOps(ctx context.Context, loanID string) ([]negotiation.Op, error) {
	q := `
SELECT op, initiator, proposed_at, effective_at, changes
FROM negotiation_events
WHERE loan_id = $1
ORDER BY id ASC
`
	rows, err := r.pool.Query(ctx, q, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]negotiation.Op, 0)
	for rows.Next() {
		var (
			kind, initiator, changes string
			proposedAt, effectiveAt  time.Time
		)
		if err := rows.Scan(&kind, &initiator, &proposedAt, &effectiveAt, &changes); err != nil {
			return nil, err
		}
		out = append(out, negotiation.Op{
			Kind:  negotiation.OpKind(kind),
			Event: negotiation.NewEvent(initiator, proposedAt, effectiveAt, changes),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
