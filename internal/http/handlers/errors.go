package handlers

import (
	"errors"
	"net/http"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/ledger"
	loandomain "github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/loan"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/negotiation"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/terms"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/lock"
	"github.com/gin-gonic/gin"
)

// writeError maps domain errors to a status and a snake_case code.
func writeError(c *gin.Context, err error) {
	var malformed *terms.MalformedTermsError
	var overpayment *ledger.OverpaymentError
	var transition *loandomain.InvalidStateTransitionError

	switch {
	case errors.As(err, &malformed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "malformed_terms", "reason": malformed.Reason})
	case errors.As(err, &overpayment):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":       "overpayment",
			"payment":     overpayment.Payment.String(),
			"outstanding": overpayment.Outstanding.String(),
		})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state_transition", "status": transition.From, "action": transition.Action})
	case errors.Is(err, ledger.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
	case errors.Is(err, loandomain.ErrCurrencyMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "currency_mismatch"})
	case errors.Is(err, loandomain.ErrEmptySchedule):
		c.JSON(http.StatusConflict, gin.H{"error": "empty_schedule"})
	case errors.Is(err, loandomain.ErrMissingLender):
		c.JSON(http.StatusConflict, gin.H{"error": "missing_lender"})
	case errors.Is(err, loandomain.ErrDuplicateSubmission):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_submission"})
	case errors.Is(err, negotiation.ErrEmptyHistory):
		c.JSON(http.StatusConflict, gin.H{"error": "empty_history"})
	case errors.Is(err, loandomain.ErrNotFound), errors.Is(err, negotiation.ErrUnknownLoan):
		c.JSON(http.StatusNotFound, gin.H{"error": "loan_not_found"})
	case errors.Is(err, loandomain.ErrInvalidInput), errors.Is(err, negotiation.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	case errors.Is(err, lock.ErrNotAcquired):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "loan_busy"})
	case errors.Is(err, loandomain.ErrInconsistentSnapshot), errors.Is(err, ledger.ErrInconsistentState):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "inconsistent_loan"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
