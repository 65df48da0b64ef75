package loan

import (
	"fmt"
	"strings"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// Snapshot is the serializable form of Terms handed to storage and API layers.
type Snapshot struct {
	ID                string            `json:"id"`
	SubmissionID      string            `json:"submission_id"`
	Description       string            `json:"description"`
	Borrower          string            `json:"borrower"`
	Lender            string            `json:"lender,omitempty"`
	Principal         decimal.Decimal   `json:"principal"`
	Currency          string            `json:"currency"`
	LateFee           decimal.Decimal   `json:"late_fee"`
	TotalBalance      decimal.Decimal   `json:"total_balance"`
	RepaymentAmounts  []decimal.Decimal `json:"repayment_amounts"`
	DueDates          []time.Time       `json:"due_dates"`
	Location          string            `json:"location,omitempty"`
	PaymentMethods    []string          `json:"payment_methods,omitempty"`
	FundDate          *time.Time        `json:"fund_date,omitempty"`
	Status            Status            `json:"status"`
	IsDefaulted       bool              `json:"is_defaulted"`
	IsRepaid          bool              `json:"is_repaid"`
	WasChargedLateFee bool              `json:"was_charged_late_fee"`
	Ledger            ledger.State      `json:"ledger"`
	Insurance         *Insurance        `json:"insurance,omitempty"`
	PinnedCommentID   string            `json:"pinned_comment_id,omitempty"`
}

func (t *Terms) Snapshot() Snapshot {
	return Snapshot{
		ID:                t.ID,
		SubmissionID:      t.SubmissionID,
		Description:       t.Description,
		Borrower:          t.Borrower,
		Lender:            t.Lender,
		Principal:         t.Principal,
		Currency:          t.Currency,
		LateFee:           t.LateFee,
		TotalBalance:      t.ledger.Total(),
		RepaymentAmounts:  append([]decimal.Decimal{}, t.RepaymentAmounts...),
		DueDates:          append([]time.Time{}, t.DueDates...),
		Location:          t.Location,
		PaymentMethods:    append([]string(nil), t.PaymentMethods...),
		FundDate:          t.FundDate(),
		Status:            t.Status(),
		IsDefaulted:       t.defaulted,
		IsRepaid:          t.repaid,
		WasChargedLateFee: t.ledger.LateFeeCharged(),
		Ledger:            t.ledger.State(),
		Insurance:         t.Insurance,
		PinnedCommentID:   t.PinnedCommentID,
	}
}

// Restore rebuilds Terms from a snapshot after checking that its parts agree with each
// other. A snapshot that fails any check is rejected rather than repaired.
func Restore(s Snapshot, opts Options) (*Terms, error) {
	if len(s.RepaymentAmounts) != len(s.DueDates) || len(s.DueDates) != len(s.Ledger.Balances) {
		return nil, fmt.Errorf("%w: %d amounts, %d due dates, %d installments",
			ErrInconsistentSnapshot, len(s.RepaymentAmounts), len(s.DueDates), len(s.Ledger.Balances))
	}
	for _, b := range s.Ledger.Balances {
		if b.Seq < 0 || b.Seq >= len(s.DueDates) {
			return nil, fmt.Errorf("%w: installment %d out of range", ErrInconsistentSnapshot, b.Seq)
		}
		if !b.Amount.Equal(s.RepaymentAmounts[b.Seq]) || !b.DueDate.Equal(s.DueDates[b.Seq]) {
			return nil, fmt.Errorf("%w: installment %d disagrees with schedule", ErrInconsistentSnapshot, b.Seq)
		}
	}

	l, err := ledger.Restore(s.Ledger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInconsistentSnapshot, err)
	}
	if !s.TotalBalance.Equal(l.Total()) {
		return nil, fmt.Errorf("%w: total balance %s, installments sum to %s",
			ErrInconsistentSnapshot, s.TotalBalance.String(), l.Total().String())
	}
	if s.WasChargedLateFee != l.LateFeeCharged() {
		return nil, fmt.Errorf("%w: late fee flag disagrees with ledger", ErrInconsistentSnapshot)
	}
	if s.IsDefaulted && s.IsRepaid {
		return nil, fmt.Errorf("%w: both defaulted and repaid", ErrInconsistentSnapshot)
	}
	if s.FundDate == nil && (s.IsDefaulted || s.IsRepaid || l.LateFeeCharged() || len(l.Payments()) > 0) {
		return nil, fmt.Errorf("%w: activity on unconfirmed terms", ErrInconsistentSnapshot)
	}

	currency := strings.ToUpper(strings.TrimSpace(s.Currency))
	if currency == "" {
		currency = strings.ToUpper(opts.DefaultCurrency)
	}

	t := &Terms{
		ID:               s.ID,
		SubmissionID:     s.SubmissionID,
		Description:      s.Description,
		Borrower:         s.Borrower,
		Lender:           s.Lender,
		Principal:        s.Principal,
		Currency:         currency,
		LateFee:          s.LateFee,
		RepaymentAmounts: append([]decimal.Decimal{}, s.RepaymentAmounts...),
		DueDates:         append([]time.Time{}, s.DueDates...),
		Location:         s.Location,
		PaymentMethods:   append([]string(nil), s.PaymentMethods...),
		Insurance:        s.Insurance,
		PinnedCommentID:  s.PinnedCommentID,
		defaulted:        s.IsDefaulted,
		repaid:           s.IsRepaid,
		ledger:           l,
	}
	if s.FundDate != nil {
		d := *s.FundDate
		t.fundDate = &d
	}
	if s.Status != "" && s.Status != t.Status() {
		return nil, fmt.Errorf("%w: status %s, derived %s", ErrInconsistentSnapshot, s.Status, t.Status())
	}
	return t, nil
}
