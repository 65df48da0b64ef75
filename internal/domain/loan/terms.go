package loan

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/ledger"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/terms"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated        Status = "created"
	StatusActive         Status = "active"
	StatusLateFeeImposed Status = "late_fee_imposed"
	StatusRepaid         Status = "repaid"
	StatusDefaulted      Status = "defaulted"
)

func (s Status) Terminal() bool {
	return s == StatusRepaid || s == StatusDefaulted
}

// Insurance is an attached policy record. Its contents are not interpreted here.
type Insurance struct {
	Reference string          `json:"reference"`
	Details   json.RawMessage `json:"details,omitempty"`
}

type Options struct {
	DefaultCurrency string
}

// Terms is the loan aggregate. Plain descriptive fields are exported; the schedule, the
// lifecycle flags and the fund date change only through the methods below.
type Terms struct {
	ID               string
	SubmissionID     string
	Description      string
	Borrower         string
	Lender           string
	Principal        decimal.Decimal
	Currency         string
	LateFee          decimal.Decimal
	RepaymentAmounts []decimal.Decimal
	DueDates         []time.Time
	Location         string
	PaymentMethods   []string
	Insurance        *Insurance
	PinnedCommentID  string

	fundDate  *time.Time
	defaulted bool
	repaid    bool
	ledger    *ledger.Ledger
}

// NewTerms parses description and builds the repayment schedule it describes.
func NewTerms(description, borrower string, opts Options) (*Terms, error) {
	borrower = strings.TrimSpace(borrower)
	if borrower == "" {
		return nil, fmt.Errorf("%w: missing borrower", ErrInvalidInput)
	}

	parsed, err := terms.Parse(description)
	if err != nil {
		return nil, err
	}

	installments := make([]ledger.Installment, 0, len(parsed.Repayments))
	amounts := make([]decimal.Decimal, 0, len(parsed.Repayments))
	for i, r := range parsed.Repayments {
		installments = append(installments, ledger.Installment{DueDate: parsed.DueDates[i], Amount: r.Value})
		amounts = append(amounts, r.Value)
	}
	l, err := ledger.New(installments)
	if err != nil {
		return nil, err
	}

	currency := parsed.Requested.Currency
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(opts.DefaultCurrency))
	}
	if currency == "" {
		return nil, fmt.Errorf("%w: no currency stated and no default", ErrInvalidInput)
	}

	return &Terms{
		Description:      description,
		Borrower:         borrower,
		Principal:        parsed.Requested.Value,
		Currency:         currency,
		LateFee:          decimal.Zero,
		RepaymentAmounts: amounts,
		DueDates:         parsed.DueDates,
		Location:         parsed.Location,
		PaymentMethods:   parsed.PaymentMethods,
		ledger:           l,
	}, nil
}

func (t *Terms) Status() Status {
	switch {
	case t.repaid:
		return StatusRepaid
	case t.defaulted:
		return StatusDefaulted
	case t.fundDate == nil:
		return StatusCreated
	case t.ledger.LateFeeCharged():
		return StatusLateFeeImposed
	default:
		return StatusActive
	}
}

func (t *Terms) Confirmed() bool         { return t.fundDate != nil }
func (t *Terms) IsDefaulted() bool       { return t.defaulted }
func (t *Terms) IsRepaid() bool          { return t.repaid }
func (t *Terms) IsInsured() bool         { return t.Insurance != nil }
func (t *Terms) WasChargedLateFee() bool { return t.ledger.LateFeeCharged() }

func (t *Terms) FundDate() *time.Time {
	if t.fundDate == nil {
		return nil
	}
	d := *t.fundDate
	return &d
}

func (t *Terms) TotalBalance() decimal.Decimal { return t.ledger.Total() }

// Balances returns installments in schedule order.
func (t *Terms) Balances() []ledger.Balance { return t.ledger.Scheduled() }

// UnpaidBalances returns outstanding installments, earliest due first.
func (t *Terms) UnpaidBalances() []ledger.Balance { return t.ledger.Unpaid() }

func (t *Terms) Payments() []ledger.Payment { return t.ledger.Payments() }

func (t *Terms) AssignLender(lender string) error {
	lender = strings.TrimSpace(lender)
	if lender == "" {
		return ErrMissingLender
	}
	if t.Confirmed() {
		return &InvalidStateTransitionError{From: t.Status(), Action: "reassign lender of"}
	}
	if t.Lender != "" && !strings.EqualFold(t.Lender, lender) {
		return &InvalidStateTransitionError{From: t.Status(), Action: "reassign lender of"}
	}
	t.Lender = lender
	return nil
}

// Confirm fixes the terms and records the fund date. Terms confirm at most once.
func (t *Terms) Confirm(at time.Time) error {
	if t.Confirmed() {
		return &InvalidStateTransitionError{From: t.Status(), Action: "confirm"}
	}
	if t.Lender == "" {
		return ErrMissingLender
	}
	if t.ledger.Empty() {
		return ErrEmptySchedule
	}
	if err := t.ledger.Verify(); err != nil {
		return err
	}
	d := dateOf(at)
	t.fundDate = &d
	return nil
}

// MakePayment allocates amount across the schedule. A payment that clears the balance
// moves the loan to repaid.
func (t *Terms) MakePayment(amount decimal.Decimal, at time.Time) (ledger.Payment, error) {
	if err := t.requireOpen("pay"); err != nil {
		return ledger.Payment{}, err
	}
	p, err := t.ledger.Allocate(amount, at)
	if err != nil {
		return ledger.Payment{}, err
	}
	if t.ledger.Settled() {
		t.repaid = true
	}
	return p, nil
}

// ImposeLateFee charges LateFee once for the lifetime of the loan.
func (t *Terms) ImposeLateFee() (bool, error) {
	if err := t.requireOpen("impose late fee on"); err != nil {
		return false, err
	}
	return t.ledger.ImposeLateFeePenalty(t.LateFee)
}

func (t *Terms) MarkRepaid() error {
	if t.repaid {
		return nil
	}
	if t.defaulted || !t.Confirmed() {
		return &InvalidStateTransitionError{From: t.Status(), Action: "mark repaid"}
	}
	t.repaid = true
	return nil
}

func (t *Terms) MarkDefaulted() error {
	if t.defaulted {
		return nil
	}
	if t.repaid || !t.Confirmed() {
		return &InvalidStateTransitionError{From: t.Status(), Action: "mark defaulted"}
	}
	t.defaulted = true
	return nil
}

func (t *Terms) requireOpen(action string) error {
	if !t.Confirmed() || t.Status().Terminal() {
		return &InvalidStateTransitionError{From: t.Status(), Action: action}
	}
	return nil
}

func dateOf(at time.Time) time.Time {
	at = at.UTC()
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
}
