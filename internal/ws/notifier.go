package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Notifier turns outbox events into realtime messages on loan and party channels.
type Notifier struct {
	hub *Hub
	now func() time.Time
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub, now: func() time.Time { return time.Now().UTC() }}
}

type eventParties struct {
	LoanID    string `json:"loan_id"`
	Borrower  string `json:"borrower"`
	Lender    string `json:"lender"`
	Initiator string `json:"initiator"`
}

func (n *Notifier) Publish(_ context.Context, topic string, payload []byte) error {
	var parties eventParties
	if err := json.Unmarshal(payload, &parties); err != nil {
		return err
	}
	if strings.TrimSpace(parties.LoanID) == "" {
		return errors.New("missing_loan_id")
	}

	message, err := json.Marshal(map[string]any{
		"event":   topic,
		"data":    json.RawMessage(payload),
		"sent_at": n.now().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	n.hub.Publish(LoanChannel(parties.LoanID), message)
	for _, channel := range partyChannels(parties) {
		n.hub.Publish(channel, message)
	}
	return nil
}

func partyChannels(p eventParties) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 3)
	for _, handle := range []string{p.Borrower, p.Lender, p.Initiator} {
		handle = strings.TrimSpace(handle)
		if handle == "" {
			continue
		}
		channel := PartyChannel(handle)
		if _, ok := seen[channel]; ok {
			continue
		}
		seen[channel] = struct{}{}
		out = append(out, channel)
	}
	return out
}
