package oauthflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	agentAuth "github.com/MrEthical07/agentAuth"
	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/tokenservice"
)

var (
	// ErrInvalidMagicCode is returned for a message that is not a six-digit code.
	ErrInvalidMagicCode = errors.New("oauthflow: message is not a magic code")
	// ErrUnsupportedActivity is returned for activities that cannot continue a flow.
	ErrUnsupportedActivity = errors.New("oauthflow: activity cannot continue sign-in")
	// ErrConnectionMismatch is returned for a token exchange aimed at another connection.
	ErrConnectionMismatch = errors.New("oauthflow: token exchange for a different connection")
)

var magicCodePattern = regexp.MustCompile(`^\d{6}$`)

// TokenClient is the subset of [tokenservice.Client] the driver uses.
type TokenClient interface {
	GetUserToken(ctx context.Context, userID, connectionName, channelID, magicCode string) (*tokenservice.TokenResponse, error)
	GetSignInResource(ctx context.Context, state tokenservice.SignInState) (*tokenservice.SignInResource, error)
	ExchangeToken(ctx context.Context, userID, connectionName, channelID string, req tokenservice.ExchangeRequest) (*tokenservice.TokenResponse, error)
	SignOut(ctx context.Context, userID, connectionName, channelID string) error
}

var _ TokenClient = (*tokenservice.Client)(nil)

type Option func(*UserTokenFlow)

// WithAppID sets the bot's app id, forwarded in the sign-in state.
func WithAppID(appID string) Option {
	return func(f *UserTokenFlow) {
		f.appID = appID
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *UserTokenFlow) {
		f.logger = logger
	}
}

// UserTokenFlow signs users in to one handler's connection through a
// user-token service.
type UserTokenFlow struct {
	client  TokenClient
	handler agentAuth.AuthHandler
	appID   string
	logger  *slog.Logger
}

var _ agentAuth.OAuthFlow = (*UserTokenFlow)(nil)

// New returns a driver for handler.
func New(client TokenClient, handler agentAuth.AuthHandler, opts ...Option) *UserTokenFlow {
	f := &UserTokenFlow{
		client:  client,
		handler: handler,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BeginFlow returns the stored token when the service has one; otherwise it
// sends a sign-in card and returns nil.
func (f *UserTokenFlow) BeginFlow(ctx context.Context, tc activity.TurnContext) (*agentAuth.TokenResponse, error) {
	tok, err := f.GetUserToken(ctx, tc)
	if err != nil || tok != nil {
		return tok, err
	}

	state := tokenservice.SignInState{
		ConnectionName: f.handler.ConnectionName,
		ChannelID:      tc.ChannelID(),
		UserID:         tc.UserID(),
		AppID:          f.appID,
	}
	if act := tc.Activity(); act != nil {
		state.ConversationID = act.Conversation.ID
		state.ServiceURL = act.ServiceURL
	}
	res, err := f.client.GetSignInResource(ctx, state)
	if err != nil {
		return nil, err
	}

	card, err := newSignInCard(f.handler.ConnectionName, f.handler.Title, f.handler.Text, res)
	if err != nil {
		return nil, err
	}
	reply := tc.Activity().Reply("")
	reply.Attachments = []activity.Attachment{card}
	if err := tc.SendActivity(ctx, reply); err != nil {
		return nil, fmt.Errorf("send sign-in card: %w", err)
	}
	f.logger.DebugContext(ctx, "sign-in card sent", "connection", f.handler.ConnectionName)
	return nil, nil
}

// ContinueFlow redeems the magic code or SSO token carried by the current
// activity.
func (f *UserTokenFlow) ContinueFlow(ctx context.Context, tc activity.TurnContext) (*agentAuth.TokenResponse, error) {
	act := tc.Activity()
	switch {
	case act == nil:
		return nil, ErrUnsupportedActivity

	case act.Type == activity.TypeMessage:
		code := strings.TrimSpace(act.Text)
		if !magicCodePattern.MatchString(code) {
			return nil, ErrInvalidMagicCode
		}
		return f.redeem(ctx, tc, code)

	case act.IsInvoke(activity.InvokeVerifyState):
		var v struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal(act.Value, &v); err != nil || v.State == "" {
			return nil, fmt.Errorf("%w: verifyState without state", ErrUnsupportedActivity)
		}
		return f.redeem(ctx, tc, v.State)

	case act.IsInvoke(activity.InvokeTokenExchange):
		var v struct {
			ID             string `json:"id"`
			ConnectionName string `json:"connectionName"`
			Token          string `json:"token"`
		}
		if err := json.Unmarshal(act.Value, &v); err != nil || v.Token == "" {
			return nil, fmt.Errorf("%w: tokenExchange without token", ErrUnsupportedActivity)
		}
		if v.ConnectionName != "" && v.ConnectionName != f.handler.ConnectionName {
			return nil, fmt.Errorf("%w: %q", ErrConnectionMismatch, v.ConnectionName)
		}
		tok, err := f.client.ExchangeToken(ctx, tc.UserID(), f.handler.ConnectionName, tc.ChannelID(),
			tokenservice.ExchangeRequest{Token: v.Token})
		return toTokenResponse(tok), err

	default:
		return nil, ErrUnsupportedActivity
	}
}

func (f *UserTokenFlow) redeem(ctx context.Context, tc activity.TurnContext, code string) (*agentAuth.TokenResponse, error) {
	tok, err := f.client.GetUserToken(ctx, tc.UserID(), f.handler.ConnectionName, tc.ChannelID(), code)
	return toTokenResponse(tok), err
}

// GetUserToken returns the stored token, or nil.
func (f *UserTokenFlow) GetUserToken(ctx context.Context, tc activity.TurnContext) (*agentAuth.TokenResponse, error) {
	tok, err := f.client.GetUserToken(ctx, tc.UserID(), f.handler.ConnectionName, tc.ChannelID(), "")
	return toTokenResponse(tok), err
}

func (f *UserTokenFlow) SignOut(ctx context.Context, tc activity.TurnContext) error {
	return f.client.SignOut(ctx, tc.UserID(), f.handler.ConnectionName, tc.ChannelID())
}

func toTokenResponse(tok *tokenservice.TokenResponse) *agentAuth.TokenResponse {
	if tok == nil || tok.Token == "" {
		return nil
	}
	return &agentAuth.TokenResponse{
		Token:          tok.Token,
		ConnectionName: tok.ConnectionName,
		Expiration:     tok.Expiration,
	}
}
