// Package ledger tracks a loan's scheduled installments and allocates incoming payments
// across them earliest-due-first.
//
// The ledger keeps a running total alongside the per-installment balances; every mutation
// keeps Total equal to the sum of the remaining balances. The ledger is not safe for
// concurrent use: hosts serialize access per loan.
package ledger

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Installment struct {
	DueDate time.Time
	Amount  decimal.Decimal
}

// Application is the share of a payment absorbed by one installment.
type Application struct {
	Seq     int             `json:"seq"`
	DueDate time.Time       `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
}

type Payment struct {
	At      time.Time       `json:"at"`
	Amount  decimal.Decimal `json:"amount"`
	Applied []Application   `json:"applied"`
}

type Ledger struct {
	// due-date ascending, ties in schedule order
	balances       []*Balance
	total          decimal.Decimal
	lateFeeCharged bool
	payments       []Payment
}

// New builds a ledger from a schedule given in its original order.
func New(installments []Installment) (*Ledger, error) {
	l := &Ledger{
		balances: make([]*Balance, 0, len(installments)),
		total:    decimal.Zero,
		payments: []Payment{},
	}
	for i, in := range installments {
		if in.Amount.IsNegative() {
			return nil, ErrInvalidAmount
		}
		l.balances = append(l.balances, newBalance(i, in.DueDate, in.Amount))
		l.total = l.total.Add(in.Amount)
	}
	sortByDueDate(l.balances)
	return l, nil
}

func sortByDueDate(balances []*Balance) {
	slices.SortStableFunc(balances, func(a, b *Balance) int {
		if c := a.dueDate.Compare(b.dueDate); c != 0 {
			return c
		}
		return a.seq - b.seq
	})
}

// Allocate applies amount to the earliest outstanding installment, carrying any leftover
// to the next one in due-date order until the amount is exhausted.
func (l *Ledger) Allocate(amount decimal.Decimal, at time.Time) (Payment, error) {
	if !amount.IsPositive() {
		return Payment{}, ErrInvalidAmount
	}
	if amount.GreaterThan(l.total) {
		return Payment{}, &OverpaymentError{Payment: amount, Outstanding: l.total}
	}

	l.total = l.total.Sub(amount)

	payment := Payment{At: at, Amount: amount, Applied: []Application{}}
	left := amount
	for _, b := range l.balances {
		if !left.IsPositive() {
			break
		}
		if b.Paid() {
			continue
		}
		before := b.remaining
		left = b.applyPayment(left)
		payment.Applied = append(payment.Applied, Application{
			Seq:     b.seq,
			DueDate: b.dueDate,
			Amount:  before.Sub(b.remaining),
		})
	}

	l.payments = append(l.payments, payment)
	return payment, nil
}

// ImposeLateFeePenalty adds fee to every outstanding installment, once per ledger lifetime.
// It reports whether anything was charged. A zero fee charges nothing and keeps the
// one-time charge available.
func (l *Ledger) ImposeLateFeePenalty(fee decimal.Decimal) (bool, error) {
	if fee.IsNegative() {
		return false, ErrInvalidAmount
	}
	if fee.IsZero() || l.lateFeeCharged {
		return false, nil
	}

	charged := false
	for _, b := range l.balances {
		if b.Paid() {
			continue
		}
		b.chargeLateFee(fee)
		l.total = l.total.Add(fee)
		charged = true
	}
	if charged {
		l.lateFeeCharged = true
	}
	return charged, nil
}

func (l *Ledger) Total() decimal.Decimal { return l.total }

func (l *Ledger) LateFeeCharged() bool { return l.lateFeeCharged }

// Empty reports a ledger built from a schedule with no installments.
func (l *Ledger) Empty() bool { return len(l.balances) == 0 }

func (l *Ledger) Settled() bool { return !l.total.IsPositive() }

func (l *Ledger) Len() int { return len(l.balances) }

// Balances returns copies in due-date order.
func (l *Ledger) Balances() []Balance {
	out := make([]Balance, 0, len(l.balances))
	for _, b := range l.balances {
		out = append(out, *b)
	}
	return out
}

// Unpaid returns copies of the outstanding installments in due-date order.
func (l *Ledger) Unpaid() []Balance {
	out := []Balance{}
	for _, b := range l.balances {
		if !b.Paid() {
			out = append(out, *b)
		}
	}
	return out
}

// Scheduled returns copies in original schedule order.
func (l *Ledger) Scheduled() []Balance {
	out := l.Balances()
	slices.SortFunc(out, func(a, b Balance) int { return a.seq - b.seq })
	return out
}

func (l *Ledger) Payments() []Payment {
	return slices.Clone(l.payments)
}

// Verify checks that the running total matches the installment balances.
func (l *Ledger) Verify() error {
	sum := decimal.Zero
	for _, b := range l.balances {
		if b.remaining.IsNegative() {
			return ErrInconsistentState
		}
		sum = sum.Add(b.remaining)
	}
	if !sum.Equal(l.total) {
		return ErrInconsistentState
	}
	return nil
}
