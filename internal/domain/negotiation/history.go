// Package negotiation records renegotiations of a loan's terms as an append-only log.
package negotiation

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var ErrEmptyHistory = errors.New("empty_negotiation_history")

// Event is a recorded change to loan terms. It cannot be modified once created.
type Event struct {
	initiator   string
	proposedAt  time.Time
	effectiveAt time.Time
	changes     string
}

func NewEvent(initiator string, proposedAt, effectiveAt time.Time, changes string) Event {
	return Event{
		initiator:   strings.TrimSpace(initiator),
		proposedAt:  proposedAt.UTC(),
		effectiveAt: effectiveAt.UTC(),
		changes:     changes,
	}
}

func (e Event) Initiator() string      { return e.initiator }
func (e Event) ProposedAt() time.Time  { return e.proposedAt }
func (e Event) EffectiveAt() time.Time { return e.effectiveAt }
func (e Event) Changes() string        { return e.changes }

func (e Event) String() string {
	return fmt.Sprintf("The following changes were initiated by %s on %s and accepted on %s:\n\n%s",
		e.initiator, e.proposedAt.Format(time.RFC3339), e.effectiveAt.Format(time.RFC3339), e.changes)
}

type eventJSON struct {
	Initiator   string    `json:"initiator"`
	ProposedAt  time.Time `json:"proposed_at"`
	EffectiveAt time.Time `json:"effective_at"`
	Changes     string    `json:"changes"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Initiator:   e.initiator,
		ProposedAt:  e.proposedAt,
		EffectiveAt: e.effectiveAt,
		Changes:     e.changes,
	})
}

type OpKind string

const (
	OpAppend OpKind = "append"
	OpUndo   OpKind = "undo"
)

// Op is one entry of the history journal: an appended event or the undo of one.
type Op struct {
	Kind  OpKind `json:"op"`
	Event Event  `json:"event"`
}

// History holds events oldest first. Every mutation is also journaled, so the journal is
// the full audit trail while Events is the current view.
type History struct {
	events  []Event
	journal []Op
}

func NewHistory(events ...Event) *History {
	h := &History{}
	for _, e := range events {
		h.Append(e)
	}
	return h
}

// Replay rebuilds a history by applying a journal oldest first.
func Replay(ops ...Op) (*History, error) {
	h := &History{}
	for i, op := range ops {
		switch op.Kind {
		case OpAppend:
			h.Append(op.Event)
		case OpUndo:
			if _, err := h.RemoveLast(); err != nil {
				return nil, fmt.Errorf("journal entry %d: %w", i, err)
			}
		default:
			return nil, fmt.Errorf("journal entry %d: unknown op %q", i, op.Kind)
		}
	}
	return h, nil
}

func (h *History) Append(e Event) {
	h.events = append(h.events, e)
	h.journal = append(h.journal, Op{Kind: OpAppend, Event: e})
}

// RemoveLast undoes the most recent Append.
func (h *History) RemoveLast() (Event, error) {
	if len(h.events) == 0 {
		return Event{}, ErrEmptyHistory
	}
	last := h.events[len(h.events)-1]
	h.events = h.events[:len(h.events)-1]
	h.journal = append(h.journal, Op{Kind: OpUndo, Event: last})
	return last, nil
}

// Events returns a copy, oldest to newest.
func (h *History) Events() []Event {
	return slices.Clone(h.events)
}

func (h *History) Journal() []Op {
	return slices.Clone(h.journal)
}

func (h *History) Len() int { return len(h.events) }
