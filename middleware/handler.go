package middleware

import (
	"context"

	"github.com/MrEthical07/agentAuth/activity"
)

// Handler processes one turn.
type Handler interface {
	OnTurn(ctx context.Context, tc activity.TurnContext) error
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context, tc activity.TurnContext) error

func (f HandlerFunc) OnTurn(ctx context.Context, tc activity.TurnContext) error {
	return f(ctx, tc)
}

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain applies mws so that the first one sees the turn first.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// replayTurn presents a stored activity in place of the inbound one. Sends
// still go to the live turn.
type replayTurn struct {
	activity.TurnContext
	act *activity.Activity
}

func (r replayTurn) Activity() *activity.Activity {
	return r.act
}
