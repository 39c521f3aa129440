package agentAuth

import (
	"context"
	"time"

	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/flow"
)

// TokenResponse is a user token obtained from a provider.
type TokenResponse struct {
	Token          string
	ConnectionName string
	// Expiration is zero when the provider did not report one.
	Expiration time.Time
}

// OAuthFlow drives the provider side of a sign-in for one handler. A nil
// token with a nil error means "no token yet".
type OAuthFlow interface {
	BeginFlow(ctx context.Context, tc activity.TurnContext) (*TokenResponse, error)
	ContinueFlow(ctx context.Context, tc activity.TurnContext) (*TokenResponse, error)
	GetUserToken(ctx context.Context, tc activity.TurnContext) (*TokenResponse, error)
	SignOut(ctx context.Context, tc activity.TurnContext) error
}

// OBOProvider exchanges a user token for one scoped to a downstream API.
type OBOProvider interface {
	Exchange(ctx context.Context, connectionName string, scopes []string, assertion string) (*TokenResponse, error)
}

// FlowResponse reports the outcome of Begin or ContinueFlow.
type FlowResponse struct {
	HandlerID         string
	Tag               flow.Tag
	Token             *TokenResponse
	AttemptsRemaining int
	// Retryable is set when a continuation failed but the flow stays active.
	Retryable bool
	// Err is the provider error behind a failed continuation, if any.
	Err error
}

// Completed reports whether the flow produced a token.
func (r *FlowResponse) Completed() bool {
	return r != nil && r.Tag == flow.TagComplete && r.Token != nil
}

// FlowFailure is passed to failure callbacks.
type FlowFailure struct {
	Tag               flow.Tag
	AttemptsRemaining int
	Retryable         bool
	Err               error
}

// SuccessFunc is invoked after a flow completes and has been committed.
type SuccessFunc func(ctx context.Context, tc activity.TurnContext, handlerID string, token *TokenResponse)

// FailureFunc is invoked after a failed continuation has been committed.
type FailureFunc func(ctx context.Context, tc activity.TurnContext, handlerID string, failure FlowFailure)
