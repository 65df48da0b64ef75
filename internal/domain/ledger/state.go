package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BalanceState struct {
	Seq            int             `json:"seq"`
	DueDate        time.Time       `json:"due_date"`
	Amount         decimal.Decimal `json:"amount"`
	Remaining      decimal.Decimal `json:"remaining"`
	LateFeeCharged bool            `json:"late_fee_charged"`
}

// State is the persistable form of a Ledger. Balances are in schedule order.
type State struct {
	Balances       []BalanceState  `json:"balances"`
	Total          decimal.Decimal `json:"total"`
	LateFeeCharged bool            `json:"late_fee_charged"`
	Payments       []Payment       `json:"payments"`
}

func (l *Ledger) State() State {
	out := State{
		Balances:       []BalanceState{},
		Total:          l.total,
		LateFeeCharged: l.lateFeeCharged,
		Payments:       l.Payments(),
	}
	for _, b := range l.Scheduled() {
		out.Balances = append(out.Balances, BalanceState{
			Seq:            b.seq,
			DueDate:        b.dueDate,
			Amount:         b.amount,
			Remaining:      b.remaining,
			LateFeeCharged: b.lateFeeCharged,
		})
	}
	return out
}

// Restore rebuilds a ledger from persisted state and rejects state that no sequence of
// Allocate and ImposeLateFeePenalty calls could have produced.
func Restore(s State) (*Ledger, error) {
	l := &Ledger{
		balances:       make([]*Balance, 0, len(s.Balances)),
		total:          s.Total,
		lateFeeCharged: s.LateFeeCharged,
		payments:       append([]Payment{}, s.Payments...),
	}

	seen := map[int]struct{}{}
	anyCharged := false
	for _, bs := range s.Balances {
		if _, dup := seen[bs.Seq]; dup {
			return nil, fmt.Errorf("%w: duplicate installment %d", ErrInconsistentState, bs.Seq)
		}
		seen[bs.Seq] = struct{}{}

		if bs.Amount.IsNegative() || bs.Remaining.IsNegative() {
			return nil, fmt.Errorf("%w: negative balance on installment %d", ErrInconsistentState, bs.Seq)
		}
		if bs.LateFeeCharged && !s.LateFeeCharged {
			return nil, fmt.Errorf("%w: installment %d charged without ledger late fee", ErrInconsistentState, bs.Seq)
		}
		if !bs.LateFeeCharged && bs.Remaining.GreaterThan(bs.Amount) {
			return nil, fmt.Errorf("%w: installment %d exceeds its amount", ErrInconsistentState, bs.Seq)
		}
		anyCharged = anyCharged || bs.LateFeeCharged

		l.balances = append(l.balances, &Balance{
			seq:            bs.Seq,
			dueDate:        bs.DueDate,
			amount:         bs.Amount,
			remaining:      bs.Remaining,
			lateFeeCharged: bs.LateFeeCharged,
		})
	}
	if s.LateFeeCharged && !anyCharged {
		return nil, fmt.Errorf("%w: late fee recorded but no installment charged", ErrInconsistentState)
	}
	for i, p := range s.Payments {
		if !p.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: payment %d is not positive", ErrInconsistentState, i+1)
		}
	}

	sortByDueDate(l.balances)
	if err := l.Verify(); err != nil {
		return nil, fmt.Errorf("%w: total %s does not match installments", err, s.Total.String())
	}
	return l, nil
}
