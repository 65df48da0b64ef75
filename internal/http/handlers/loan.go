package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/auth"
	loandomain "github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/loan"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/terms"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type LoanService interface {
	Preview(description string) (*terms.Parsed, error)
	Submit(ctx context.Context, in loandomain.SubmitInput) (*loandomain.Record, error)
	GetLoan(ctx context.Context, loanID string) (*loandomain.Record, error)
	ListLoans(ctx context.Context, filter loandomain.ListFilter) ([]loandomain.Record, error)
	AssignLender(ctx context.Context, loanID, lender string) (*loandomain.Snapshot, error)
	Confirm(ctx context.Context, loanID string) (*loandomain.Snapshot, error)
	RecordPayment(ctx context.Context, in loandomain.PaymentInput) (*loandomain.PaymentResult, error)
	ImposeLateFee(ctx context.Context, loanID string) (*loandomain.Snapshot, bool, error)
	MarkRepaid(ctx context.Context, loanID string) (*loandomain.Snapshot, error)
	MarkDefault(ctx context.Context, in loandomain.DefaultInput) (*loandomain.Snapshot, error)
	AttachInsurance(ctx context.Context, loanID string, ins loandomain.Insurance) (*loandomain.Snapshot, error)
	PinComment(ctx context.Context, loanID, commentID string) (*loandomain.Snapshot, error)
}

type LoanHandler struct {
	loanService LoanService
}

func NewLoanHandler(loanService LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

func (h *LoanHandler) ParseTerms(c *gin.Context) {
	var req struct {
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	parsed, err := h.loanService.Preview(req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, parsed)
}

func (h *LoanHandler) SubmitLoan(c *gin.Context) {
	var req struct {
		SubmissionID string          `json:"submission_id"`
		Borrower     string          `json:"borrower"`
		Description  string          `json:"description"`
		LateFee      decimal.Decimal `json:"late_fee"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	handle, role := middleware.Caller(c)
	borrower := handle
	if role == auth.RoleAdmin && strings.TrimSpace(req.Borrower) != "" {
		borrower = req.Borrower
	}

	rec, err := h.loanService.Submit(c.Request.Context(), loandomain.SubmitInput{
		SubmissionID: req.SubmissionID,
		Borrower:     borrower,
		Description:  req.Description,
		LateFee:      req.LateFee,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *LoanHandler) ListLoans(c *gin.Context) {
	limit, _ := strconv.ParseInt(strings.TrimSpace(c.DefaultQuery("limit", "50")), 10, 32)
	offset, _ := strconv.ParseInt(strings.TrimSpace(c.DefaultQuery("offset", "0")), 10, 32)
	items, err := h.loanService.ListLoans(c.Request.Context(), loandomain.ListFilter{
		Borrower: strings.TrimSpace(c.Query("borrower")),
		Lender:   strings.TrimSpace(c.Query("lender")),
		Status:   strings.TrimSpace(c.Query("status")),
		Limit:    int32(limit),
		Offset:   int32(offset),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_loans_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *LoanHandler) GetLoan(c *gin.Context) {
	loanID := strings.TrimSpace(c.Param("loanId"))
	if loanID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_loan_id"})
		return
	}
	item, err := h.loanService.GetLoan(c.Request.Context(), loanID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *LoanHandler) AssignLender(c *gin.Context) {
	var req struct {
		Lender string `json:"lender"`
	}
	_ = c.ShouldBindJSON(&req)

	handle, role := middleware.Caller(c)
	lender := handle
	if role == auth.RoleAdmin {
		lender = req.Lender
	}
	snap, err := h.loanService.AssignLender(c.Request.Context(), c.Param("loanId"), lender)
	h.respond(c, snap, err)
}

func (h *LoanHandler) Confirm(c *gin.Context) {
	if !h.authorizeLender(c) {
		return
	}
	snap, err := h.loanService.Confirm(c.Request.Context(), c.Param("loanId"))
	h.respond(c, snap, err)
}

func (h *LoanHandler) RecordPayment(c *gin.Context) {
	var req struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		PaidAt   *time.Time      `json:"paid_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !h.authorizeLender(c) {
		return
	}
	in := loandomain.PaymentInput{LoanID: c.Param("loanId"), Amount: req.Amount, Currency: req.Currency}
	if req.PaidAt != nil {
		in.PaidAt = *req.PaidAt
	}
	result, err := h.loanService.RecordPayment(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LoanHandler) ImposeLateFee(c *gin.Context) {
	if !h.authorizeLender(c) {
		return
	}
	snap, charged, err := h.loanService.ImposeLateFee(c.Request.Context(), c.Param("loanId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"charged": charged, "loan": snap})
}

func (h *LoanHandler) MarkRepaid(c *gin.Context) {
	if !h.authorizeLender(c) {
		return
	}
	snap, err := h.loanService.MarkRepaid(c.Request.Context(), c.Param("loanId"))
	h.respond(c, snap, err)
}

func (h *LoanHandler) MarkDefault(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if !h.authorizeLender(c) {
		return
	}
	handle, _ := middleware.Caller(c)
	snap, err := h.loanService.MarkDefault(c.Request.Context(), loandomain.DefaultInput{
		LoanID: c.Param("loanId"),
		Reason: req.Reason,
		Actor:  handle,
	})
	h.respond(c, snap, err)
}

func (h *LoanHandler) AttachInsurance(c *gin.Context) {
	var req struct {
		Reference string          `json:"reference"`
		Details   json.RawMessage `json:"details"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	snap, err := h.loanService.AttachInsurance(c.Request.Context(), c.Param("loanId"), loandomain.Insurance{
		Reference: req.Reference,
		Details:   req.Details,
	})
	h.respond(c, snap, err)
}

func (h *LoanHandler) PinComment(c *gin.Context) {
	var req struct {
		CommentID string `json:"comment_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	snap, err := h.loanService.PinComment(c.Request.Context(), c.Param("loanId"), req.CommentID)
	h.respond(c, snap, err)
}

// authorizeLender lets admins through and requires lenders to be the loan's lender.
func (h *LoanHandler) authorizeLender(c *gin.Context) bool {
	handle, role := middleware.Caller(c)
	if role == auth.RoleAdmin {
		return true
	}
	rec, err := h.loanService.GetLoan(c.Request.Context(), c.Param("loanId"))
	if err != nil {
		writeError(c, err)
		return false
	}
	if role != auth.RoleLender || !strings.EqualFold(rec.Lender, handle) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}

func (h *LoanHandler) respond(c *gin.Context, snap *loandomain.Snapshot, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
