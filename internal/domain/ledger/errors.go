package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrOverpayment       = errors.New("overpayment")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInconsistentState = errors.New("inconsistent_ledger_state")
)

type OverpaymentError struct {
	Payment     decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment %s exceeds outstanding balance %s", e.Payment.String(), e.Outstanding.String())
}

func (e *OverpaymentError) Is(target error) bool {
	return target == ErrOverpayment
}
