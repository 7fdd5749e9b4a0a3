// Package notify delivers committed tier transitions to the remote coordinator with
// at-least-once semantics: every message is retried until the peer confirms it or the retry
// ceiling is reached.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/traylinx/perfgov/internal/tier"
)

// MessageType is the discriminator of tier-change messages.
const MessageType = "performance_change"

// AckType is the discriminator of the peer's confirmation frames.
const AckType = "performance_change_ack"

// Action is the direction of a tier change on the wire.
type Action string

const (
	ActionUpgrade   Action = "upgrade"
	ActionDowngrade Action = "downgrade"
)

// ActionFor maps a tier direction to its wire action.
func ActionFor(d tier.Direction) Action {
	if d == tier.Up {
		return ActionUpgrade
	}
	return ActionDowngrade
}

var (
	// ErrNotConnected is returned by transports without a live connection.
	ErrNotConnected = errors.New("transport not connected")

	// ErrInvalidMessage is returned for messages that fail validation.
	ErrInvalidMessage = errors.New("invalid performance_change message")
)

// Message is the outbound tier-change notification.
type Message struct {
	Type      string    `json:"type"`
	Action    Action    `json:"action"`
	From      tier.Tier `json:"from"`
	To        tier.Tier `json:"to"`
	Rate      float64   `json:"rate"`
	Timestamp int64     `json:"timestamp"`
	ChangeID  string    `json:"changeId"`
}

// NewMessage builds the message for a committed transition.
func NewMessage(tr tier.Transition) *Message {
	action := ActionFor(tr.Direction)
	ts := tr.At.UnixMilli()
	return &Message{
		Type:      MessageType,
		Action:    action,
		From:      tr.From,
		To:        tr.To,
		Rate:      tr.Rate,
		Timestamp: ts,
		ChangeID:  NewChangeID(action, tr.To, ts),
	}
}

// NewChangeID derives a change id from the action, target tier and timestamp. The random
// suffix keeps ids unique when two transitions share a millisecond.
func NewChangeID(action Action, to tier.Tier, ts int64) string {
	return fmt.Sprintf("%s_%s_%d_%s", action, to, ts, uuid.NewString()[:8])
}

// Validate checks the message against the wire schema.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if m.Type != MessageType {
		return fmt.Errorf("%w: type %q", ErrInvalidMessage, m.Type)
	}
	if m.Action != ActionUpgrade && m.Action != ActionDowngrade {
		return fmt.Errorf("%w: action %q", ErrInvalidMessage, m.Action)
	}
	if !m.From.Valid() || !m.To.Valid() {
		return fmt.Errorf("%w: tiers %q -> %q", ErrInvalidMessage, m.From, m.To)
	}
	if m.ChangeID == "" {
		return fmt.Errorf("%w: empty changeId", ErrInvalidMessage)
	}
	if m.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp %d", ErrInvalidMessage, m.Timestamp)
	}
	return nil
}

// Transport is the remote coordinator link. Connection management is the transport's own
// concern. Send is called on the engine loop and must not block on the network: it hands
// the message off and reports straight away whether it was accepted.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
	IsConnected() bool
}

// Record is an in-flight notification awaiting confirmation.
type Record struct {
	ChangeID   string    `json:"change_id"`
	Message    Message   `json:"message"`
	RetryCount int       `json:"retry_count"`
	SentAt     time.Time `json:"sent_at,omitempty"`
}
