package middleware

import (
	"context"
	"errors"
	"strings"

	agentAuth "github.com/MrEthical07/agentAuth"
	"github.com/MrEthical07/agentAuth/activity"
)

type tokenContextKey struct{}

// TokenFromContext returns the token injected by [AutoSignIn].
func TokenFromContext(ctx context.Context) (*agentAuth.TokenResponse, bool) {
	tok, ok := ctx.Value(tokenContextKey{}).(*agentAuth.TokenResponse)
	return tok, ok && tok != nil
}

func withToken(ctx context.Context, tok *agentAuth.TokenResponse) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, tok)
}

type signInOptions struct {
	retryPrompt   string
	failurePrompt string
}

type SignInOption func(*signInOptions)

// WithRetryPrompt sets the reply sent when a continuation is rejected but
// attempts remain. Empty disables the reply.
func WithRetryPrompt(text string) SignInOption {
	return func(o *signInOptions) {
		o.retryPrompt = text
	}
}

// WithFailurePrompt sets the reply sent when a flow fails for good. Empty
// disables the reply.
func WithFailurePrompt(text string) SignInOption {
	return func(o *signInOptions) {
		o.failurePrompt = text
	}
}

// AutoSignIn guards next behind handlerID.
//
// A turn arriving while a flow is active continues that flow. When the
// continuation completes, the activity that started the flow is replayed
// through the guard so the user's original request is served. Without an
// active flow the stored token is used, or a new flow begins; a failed flow
// gets the failure prompt until the user signs out. End of conversation
// activities clear the user's records and pass through.
func AutoSignIn(auth *agentAuth.Authorization, handlerID string, opts ...SignInOption) Middleware {
	o := signInOptions{
		retryPrompt:   "That code didn't work. Please try again.",
		failurePrompt: "Sign-in failed. Sign out and try again.",
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next Handler) Handler {
		g := &guard{auth: auth, handlerID: handlerID, opts: o, next: next}
		return HandlerFunc(g.onTurn)
	}
}

type guard struct {
	auth      *agentAuth.Authorization
	handlerID string
	opts      signInOptions
	next      Handler
}

func (g *guard) onTurn(ctx context.Context, tc activity.TurnContext) error {
	if g.auth == nil {
		return agentAuth.ErrAuthorizationNotReady
	}
	if act := tc.Activity(); act != nil && act.Type == activity.TypeEndOfConversation {
		if err := g.auth.EndConversation(ctx, tc); err != nil {
			return err
		}
		return g.next.OnTurn(ctx, tc)
	}

	activeID, state, ok, err := g.auth.ActiveFlow(ctx, tc)
	if err != nil {
		return err
	}
	if ok {
		return g.continueFlow(ctx, tc, activeID, state.ContinuationActivity)
	}
	return g.serve(ctx, tc)
}

func (g *guard) continueFlow(ctx context.Context, tc activity.TurnContext, handlerID string, continuation *activity.Activity) error {
	resp, err := g.auth.ContinueFlow(ctx, tc, handlerID)
	if errors.Is(err, agentAuth.ErrNoActiveFlow) {
		// Expired or taken over between the lookup and the transaction.
		return g.serve(ctx, tc)
	}
	if err != nil {
		return err
	}

	switch {
	case resp.Completed():
		if continuation == nil {
			return nil
		}
		return g.serve(ctx, replayTurn{TurnContext: tc, act: continuation})
	case resp.Retryable:
		return g.reply(ctx, tc, g.opts.retryPrompt)
	default:
		return g.reply(ctx, tc, g.opts.failurePrompt)
	}
}

func (g *guard) serve(ctx context.Context, tc activity.TurnContext) error {
	tok, err := g.auth.GetToken(ctx, tc, g.handlerID)
	if err != nil {
		return err
	}
	if tok != nil {
		return g.next.OnTurn(withToken(ctx, tok), tc)
	}

	resp, err := g.auth.Begin(ctx, tc, g.handlerID)
	if errors.Is(err, agentAuth.ErrFlowAlreadyActive) {
		// Another turn began the flow first, or the flow failed and stays
		// failed until the user signs out.
		if _, _, active, aerr := g.auth.ActiveFlow(ctx, tc); aerr != nil || active {
			return aerr
		}
		return g.reply(ctx, tc, g.opts.failurePrompt)
	}
	if err != nil {
		return err
	}
	if resp.Completed() {
		return g.next.OnTurn(withToken(ctx, resp.Token), tc)
	}
	return nil
}

func (g *guard) reply(ctx context.Context, tc activity.TurnContext, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return tc.SendActivity(ctx, tc.Activity().Reply(text))
}
