package loan

import (
	"context"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// Record is a stored snapshot with its storage timestamps.
type Record struct {
	Snapshot
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SubmitInput struct {
	SubmissionID string          `json:"submission_id"`
	Borrower     string          `json:"borrower"`
	Description  string          `json:"description"`
	LateFee      decimal.Decimal `json:"late_fee"`
}

type PaymentInput struct {
	LoanID   string          `json:"loan_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	PaidAt   time.Time       `json:"paid_at"`
}

type PaymentResult struct {
	Payment ledger.Payment `json:"payment"`
	Loan    Snapshot       `json:"loan"`
}

type DefaultInput struct {
	LoanID string `json:"loan_id"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type ListFilter struct {
	Borrower string
	Lender   string
	Status   string
	Limit    int32
	Offset   int32
}

// OutboxMessage is queued for the relay in the same write as the loan change it announces.
type OutboxMessage struct {
	Topic   string
	Payload []byte
}

// Repository stores loan snapshots. Create and Update commit the snapshot and the outbox
// message together or not at all.
type Repository interface {
	Create(ctx context.Context, s Snapshot, submissionHash []byte, msg OutboxMessage) (*Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, s Snapshot, msg *OutboxMessage) error
	List(ctx context.Context, f ListFilter) ([]Record, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Locker serializes work on a single loan across callers.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}
