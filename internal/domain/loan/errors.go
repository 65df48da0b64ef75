package loan

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStateTransition = errors.New("invalid_state_transition")
	ErrEmptySchedule          = errors.New("empty_repayment_schedule")
	ErrMissingLender          = errors.New("missing_lender")
	ErrInvalidInput           = errors.New("invalid_loan_input")
	ErrInconsistentSnapshot   = errors.New("inconsistent_snapshot")
	ErrNotFound               = errors.New("loan_not_found")
	ErrDuplicateSubmission    = errors.New("duplicate_submission")
)

// InvalidStateTransitionError is returned when an action is not allowed from the loan's
// current lifecycle state.
type InvalidStateTransitionError struct {
	From   Status
	Action string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a loan in state %s", e.Action, e.From)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}
