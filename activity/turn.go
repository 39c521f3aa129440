package activity

import (
	"context"
	"errors"
	"sync"
)

// ErrNoSender is returned by [Turn.SendActivity] when the turn was built
// without an outbound channel.
var ErrNoSender = errors.New("turn has no sender")

// TurnContext is the read-only view of the current turn consumed by the
// authorization engine and OAuth drivers.
type TurnContext interface {
	ChannelID() string
	UserID() string
	Activity() *Activity
	SendActivity(ctx context.Context, out *Activity) error
}

// SendFunc delivers an outbound activity to the channel.
type SendFunc func(ctx context.Context, out *Activity) error

// Turn is a simple [TurnContext] over one inbound activity. Sent activities
// are recorded and, when a SendFunc is configured, forwarded.
type Turn struct {
	inbound *Activity
	send    SendFunc

	mu   sync.Mutex
	sent []*Activity
}

var _ TurnContext = (*Turn)(nil)

// NewTurn wraps inbound. send may be nil, in which case outbound activities
// are only recorded.
func NewTurn(inbound *Activity, send SendFunc) *Turn {
	return &Turn{inbound: inbound, send: send}
}

func (t *Turn) ChannelID() string {
	if t == nil || t.inbound == nil {
		return ""
	}
	return t.inbound.ChannelID
}

func (t *Turn) UserID() string {
	if t == nil || t.inbound == nil {
		return ""
	}
	return t.inbound.From.ID
}

// Activity returns the inbound activity. Callers that retain it must Clone.
func (t *Turn) Activity() *Activity {
	if t == nil {
		return nil
	}
	return t.inbound
}

func (t *Turn) SendActivity(ctx context.Context, out *Activity) error {
	if t == nil {
		return ErrNoSender
	}
	t.mu.Lock()
	t.sent = append(t.sent, out.Clone())
	t.mu.Unlock()

	if t.send == nil {
		return nil
	}
	return t.send(ctx, out)
}

// Sent returns copies of the activities sent during this turn.
func (t *Turn) Sent() []*Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Activity, len(t.sent))
	for i, a := range t.sent {
		out[i] = a.Clone()
	}
	return out
}
