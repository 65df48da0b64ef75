package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	outboxTopicRecorded = "negotiation_recorded"
	outboxTopicUndone   = "negotiation_undone"
)

var (
	ErrInvalidInput = errors.New("invalid_negotiation_input")
	ErrUnknownLoan  = errors.New("unknown_loan")
)

type LoanFinder interface {
	Exists(ctx context.Context, loanID string) (bool, error)
}

type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

type Service struct {
	repo   Repository
	loans  LoanFinder
	locker Locker
	now    func() time.Time
}

func NewService(repo Repository, loans LoanFinder, locker Locker) *Service {
	return &Service{
		repo:   repo,
		loans:  loans,
		locker: locker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Record(ctx context.Context, in RecordInput) (*Event, error) {
	loanID := strings.TrimSpace(in.LoanID)
	if loanID == "" || strings.TrimSpace(in.Initiator) == "" || strings.TrimSpace(in.Changes) == "" {
		return nil, ErrInvalidInput
	}
	proposedAt := in.ProposedAt
	if proposedAt.IsZero() {
		proposedAt = s.now()
	}
	effectiveAt := in.EffectiveAt
	if effectiveAt.IsZero() {
		effectiveAt = s.now()
	}
	if effectiveAt.Before(proposedAt) {
		return nil, fmt.Errorf("%w: effective before proposed", ErrInvalidInput)
	}
	event := NewEvent(in.Initiator, proposedAt, effectiveAt, in.Changes)

	err := s.locker.WithLock(ctx, lockKey(loanID), func() error {
		history, err := s.load(ctx, loanID)
		if err != nil {
			return err
		}
		history.Append(event)
		op := Op{Kind: OpAppend, Event: event}
		if err := s.repo.AppendOp(ctx, loanID, op, outboxMessage(outboxTopicRecorded, loanID, event, history.Len())); err != nil {
			return fmt.Errorf("append negotiation event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Undo withdraws the most recent live event. The withdrawal is journaled, not deleted.
func (s *Service) Undo(ctx context.Context, loanID string) (*Event, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, ErrInvalidInput
	}

	var removed Event
	err := s.locker.WithLock(ctx, lockKey(loanID), func() error {
		history, err := s.load(ctx, loanID)
		if err != nil {
			return err
		}
		removed, err = history.RemoveLast()
		if err != nil {
			return err
		}
		op := Op{Kind: OpUndo, Event: removed}
		if err := s.repo.AppendOp(ctx, loanID, op, outboxMessage(outboxTopicUndone, loanID, removed, history.Len())); err != nil {
			return fmt.Errorf("journal negotiation undo: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

func (s *Service) List(ctx context.Context, loanID string) ([]Event, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, ErrInvalidInput
	}
	history, err := s.load(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return history.Events(), nil
}

// Journal returns every append and undo recorded for the loan, oldest first.
func (s *Service) Journal(ctx context.Context, loanID string) ([]Op, error) {
	loanID = strings.TrimSpace(loanID)
	if loanID == "" {
		return nil, ErrInvalidInput
	}
	history, err := s.load(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return history.Journal(), nil
}

func (s *Service) load(ctx context.Context, loanID string) (*History, error) {
	ok, err := s.loans.Exists(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownLoan
	}
	ops, err := s.repo.ListOps(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("list negotiation journal: %w", err)
	}
	return Replay(ops...)
}

func outboxMessage(topic, loanID string, e Event, count int) OutboxMessage {
	payload, _ := json.Marshal(map[string]any{
		"loan_id":      loanID,
		"initiator":    e.Initiator(),
		"effective_at": e.EffectiveAt().Format(time.RFC3339),
		"event_count":  count,
	})
	return OutboxMessage{Topic: topic, Payload: payload}
}

func lockKey(loanID string) string {
	return "loan:" + loanID
}
