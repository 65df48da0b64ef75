package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/auth"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/negotiation"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/http/middleware"
	"github.com/gin-gonic/gin"
)

type NegotiationService interface {
	Record(ctx context.Context, in negotiation.RecordInput) (*negotiation.Event, error)
	Undo(ctx context.Context, loanID string) (*negotiation.Event, error)
	List(ctx context.Context, loanID string) ([]negotiation.Event, error)
	Journal(ctx context.Context, loanID string) ([]negotiation.Op, error)
}

type NegotiationHandler struct {
	negotiationService NegotiationService
	loanService        LoanService
}

func NewNegotiationHandler(negotiationService NegotiationService, loanService LoanService) *NegotiationHandler {
	return &NegotiationHandler{negotiationService: negotiationService, loanService: loanService}
}

func (h *NegotiationHandler) List(c *gin.Context) {
	events, err := h.negotiationService.List(c.Request.Context(), c.Param("loanId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": events})
}

// Journal lists every append and undo, including withdrawn events.
func (h *NegotiationHandler) Journal(c *gin.Context) {
	ops, err := h.negotiationService.Journal(c.Request.Context(), c.Param("loanId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": ops})
}

func (h *NegotiationHandler) Record(c *gin.Context) {
	var req struct {
		ProposedAt  *time.Time `json:"proposed_at"`
		EffectiveAt *time.Time `json:"effective_at"`
		Changes     string     `json:"changes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.authorizeParty(c) {
		return
	}

	handle, _ := middleware.Caller(c)
	in := negotiation.RecordInput{LoanID: c.Param("loanId"), Initiator: handle, Changes: req.Changes}
	if req.ProposedAt != nil {
		in.ProposedAt = *req.ProposedAt
	}
	if req.EffectiveAt != nil {
		in.EffectiveAt = *req.EffectiveAt
	}
	event, err := h.negotiationService.Record(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *NegotiationHandler) Undo(c *gin.Context) {
	if !h.authorizeParty(c) {
		return
	}
	event, err := h.negotiationService.Undo(c.Request.Context(), c.Param("loanId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": event})
}

// authorizeParty allows admins and the loan's borrower or lender.
func (h *NegotiationHandler) authorizeParty(c *gin.Context) bool {
	handle, role := middleware.Caller(c)
	if role == auth.RoleAdmin {
		return true
	}
	rec, err := h.loanService.GetLoan(c.Request.Context(), c.Param("loanId"))
	if err != nil {
		writeError(c, err)
		return false
	}
	if !strings.EqualFold(rec.Borrower, handle) && !strings.EqualFold(rec.Lender, handle) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}
