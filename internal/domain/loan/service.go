package loan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/ledger"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/terms"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"
)

const (
	outboxTopicSubmitted  = "loan_submitted"
	outboxTopicFunded     = "loan_funded"
	outboxTopicRepayment  = "repayment_recorded"
	outboxTopicLateFee    = "late_fee_imposed"
	outboxTopicRepaid     = "loan_repaid"
	outboxTopicDefault    = "loan_defaulted"
	outboxTopicAnnotation = "loan_annotated"
)

var ErrCurrencyMismatch = errors.New("currency_mismatch")

type ServiceConfig struct {
	DefaultCurrency string
	DefaultLateFee  decimal.Decimal
}

type Service struct {
	loanRepo Repository
	locker   Locker
	cfg      ServiceConfig
	now      func() time.Time
	newID    func() string
}

func NewService(loanRepo Repository, locker Locker, cfg ServiceConfig) *Service {
	return &Service{
		loanRepo: loanRepo,
		locker:   locker,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
}

func HashSubmission(submissionID string) []byte {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(strings.TrimSpace(submissionID)))
	return h.Sum(nil)
}

func (s *Service) options() Options {
	return Options{DefaultCurrency: s.cfg.DefaultCurrency}
}

// Preview parses a description without storing anything.
func (s *Service) Preview(description string) (*terms.Parsed, error) {
	return terms.Parse(description)
}

func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Record, error) {
	if in.LateFee.IsNegative() {
		return nil, fmt.Errorf("%w: negative late fee", ErrInvalidInput)
	}
	t, err := NewTerms(in.Description, in.Borrower, s.options())
	if err != nil {
		return nil, err
	}

	t.ID = s.newID()
	t.SubmissionID = strings.TrimSpace(in.SubmissionID)
	if t.SubmissionID == "" {
		t.SubmissionID = t.ID
	}
	t.LateFee = in.LateFee
	if t.LateFee.IsZero() {
		t.LateFee = s.cfg.DefaultLateFee
	}

	msg := outboxMessage(outboxTopicSubmitted, t, map[string]any{
		"principal": t.Principal.String(),
		"currency":  t.Currency,
	})
	return s.loanRepo.Create(ctx, t.Snapshot(), HashSubmission(t.SubmissionID), msg)
}

func (s *Service) GetLoan(ctx context.Context, loanID string) (*Record, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, ErrInvalidInput
	}
	return s.loanRepo.GetByID(ctx, loanID)
}

func (s *Service) ListLoans(ctx context.Context, filter ListFilter) ([]Record, error) {
	return s.loanRepo.List(ctx, filter)
}

func (s *Service) AssignLender(ctx context.Context, loanID, lender string) (*Snapshot, error) {
	return s.mutate(ctx, loanID, func(t *Terms) (string, map[string]any, error) {
		if err := t.AssignLender(lender); err != nil {
			return "", nil, err
		}
		return "", nil, nil
	})
}

func (s *Service) Confirm(ctx context.Context, loanID string) (*Snapshot, error) {
	return s.mutate(ctx, loanID, func(t *Terms) (string, map[string]any, error) {
		if err := t.Confirm(s.now()); err != nil {
			return "", nil, err
		}
		return outboxTopicFunded, map[string]any{
			"fund_date":     t.FundDate().Format(time.DateOnly),
			"total_balance": t.TotalBalance().String(),
		}, nil
	})
}

func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var payment ledger.Payment
	snap, err := s.mutate(ctx, in.LoanID, func(t *Terms) (string, map[string]any, error) {
		if currency != "" && currency != t.Currency {
			return "", nil, fmt.Errorf("%w: loan is in %s", ErrCurrencyMismatch, t.Currency)
		}
		wasRepaid := t.IsRepaid()
		p, err := t.MakePayment(in.Amount, paidAt.UTC())
		if err != nil {
			return "", nil, err
		}
		payment = p
		return outboxTopicRepayment, map[string]any{
			"amount":        p.Amount.String(),
			"currency":      t.Currency,
			"paid_at":       p.At.Format(time.RFC3339),
			"total_balance": t.TotalBalance().String(),
			"repaid":        !wasRepaid && t.IsRepaid(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Payment: payment, Loan: *snap}, nil
}

// ImposeLateFee charges the loan's late fee. Repeated calls leave the loan unchanged.
func (s *Service) ImposeLateFee(ctx context.Context, loanID string) (*Snapshot, bool, error) {
	charged := false
	snap, err := s.mutate(ctx, loanID, func(t *Terms) (string, map[string]any, error) {
		ok, err := t.ImposeLateFee()
		if err != nil || !ok {
			return "", nil, err
		}
		charged = true
		return outboxTopicLateFee, map[string]any{
			"late_fee":      t.LateFee.String(),
			"total_balance": t.TotalBalance().String(),
		}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return snap, charged, nil
}

func (s *Service) MarkRepaid(ctx context.Context, loanID string) (*Snapshot, error) {
	return s.mutate(ctx, loanID, func(t *Terms) (string, map[string]any, error) {
		if t.IsRepaid() {
			return "", nil, nil
		}
		if err := t.MarkRepaid(); err != nil {
			return "", nil, err
		}
		return outboxTopicRepaid, map[string]any{"total_balance": t.TotalBalance().String()}, nil
	})
}

func (s *Service) MarkDefault(ctx context.Context, in DefaultInput) (*Snapshot, error) {
	return s.mutate(ctx, in.LoanID, func(t *Terms) (string, map[string]any, error) {
		if t.IsDefaulted() {
			return "", nil, nil
		}
		if err := t.MarkDefaulted(); err != nil {
			return "", nil, err
		}
		return outboxTopicDefault, map[string]any{
			"reason":        strings.TrimSpace(in.Reason),
			"actor":         strings.TrimSpace(in.Actor),
			"total_balance": t.TotalBalance().String(),
		}, nil
	})
}

func (s *Service) AttachInsurance(ctx context.Context, loanID string, ins Insurance) (*Snapshot, error) {
	if strings.TrimSpace(ins.Reference) == "" {
		return nil, fmt.Errorf("%w: missing insurance reference", ErrInvalidInput)
	}
	return s.mutate(ctx, loanID, func(t *Terms) (string, map[string]any, error) {
		t.Insurance = &ins
		return outboxTopicAnnotation, map[string]any{"insurance_reference": ins.Reference}, nil
	})
}

// PinComment records the external comment that mirrors the loan's state.
func (s *Service) PinComment(ctx context.Context, loanID, commentID string) (*Snapshot, error) {
	commentID = strings.TrimSpace(commentID)
	if commentID == "" {
		return nil, fmt.Errorf("%w: missing comment id", ErrInvalidInput)
	}
	return s.mutate(ctx, loanID, func(t *Terms) (string, map[string]any, error) {
		t.PinnedCommentID = commentID
		return "", nil, nil
	})
}

// mutate loads, changes and stores one loan under its lock. fn returns the outbox topic
// and extra payload to publish, or an empty topic for silent changes.
func (s *Service) mutate(ctx context.Context, loanID string, fn func(t *Terms) (string, map[string]any, error)) (*Snapshot, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, ErrInvalidInput
	}

	var out Snapshot
	err := s.locker.WithLock(ctx, "loan:"+loanID, func() error {
		rec, err := s.loanRepo.GetByID(ctx, loanID)
		if err != nil {
			return err
		}
		t, err := Restore(rec.Snapshot, s.options())
		if err != nil {
			return err
		}

		topic, extra, err := fn(t)
		if err != nil {
			return err
		}

		var msg *OutboxMessage
		if topic != "" {
			m := outboxMessage(topic, t, extra)
			msg = &m
		}
		out = t.Snapshot()
		if err := s.loanRepo.Update(ctx, out, msg); err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func outboxMessage(topic string, t *Terms, extra map[string]any) OutboxMessage {
	body := map[string]any{
		"loan_id":  t.ID,
		"borrower": t.Borrower,
		"lender":   t.Lender,
		"status":   string(t.Status()),
	}
	for k, v := range extra {
		body[k] = v
	}
	payload, _ := json.Marshal(body)
	return OutboxMessage{Topic: topic, Payload: payload}
}
