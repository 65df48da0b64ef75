package negotiation

import (
	"context"
	"time"
)

type RecordInput struct {
	LoanID      string    `json:"loan_id"`
	Initiator   string    `json:"initiator"`
	ProposedAt  time.Time `json:"proposed_at"`
	EffectiveAt time.Time `json:"effective_at"`
	Changes     string    `json:"changes"`
}

// OutboxMessage is queued for the relay in the same write as the journal entry.
type OutboxMessage struct {
	Topic   string
	Payload []byte
}

// Repository persists a loan's negotiation journal. Undo is stored as its own entry, so
// nothing is ever deleted.
type Repository interface {
	AppendOp(ctx context.Context, loanID string, op Op, msg OutboxMessage) error
	ListOps(ctx context.Context, loanID string) ([]Op, error)
}
