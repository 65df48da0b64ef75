package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is one installment's remaining-balance state. Only the owning Ledger mutates it.
type Balance struct {
	seq            int
	dueDate        time.Time
	amount         decimal.Decimal
	remaining      decimal.Decimal
	lateFeeCharged bool
}

func newBalance(seq int, dueDate time.Time, amount decimal.Decimal) *Balance {
	return &Balance{seq: seq, dueDate: dueDate, amount: amount, remaining: amount}
}

// Seq is the installment's position in the original schedule.
func (b Balance) Seq() int                   { return b.seq }
func (b Balance) DueDate() time.Time         { return b.dueDate }
func (b Balance) Amount() decimal.Decimal    { return b.amount }
func (b Balance) Remaining() decimal.Decimal { return b.remaining }
func (b Balance) LateFeeCharged() bool       { return b.lateFeeCharged }
func (b Balance) Paid() bool                 { return !b.remaining.IsPositive() }

// applyPayment absorbs up to the remaining balance and returns what is left over.
// amount must be non-negative.
func (b *Balance) applyPayment(amount decimal.Decimal) decimal.Decimal {
	applied := decimal.Min(amount, b.remaining)
	b.remaining = b.remaining.Sub(applied)
	return amount.Sub(applied)
}

// fee must be non-negative.
func (b *Balance) chargeLateFee(fee decimal.Decimal) {
	b.remaining = b.remaining.Add(fee)
	b.lateFeeCharged = true
}
