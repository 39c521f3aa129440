package middleware

import (
	"context"
	"strings"

	agentAuth "github.com/MrEthical07/agentAuth"
	"github.com/MrEthical07/agentAuth/activity"
)

// EndOfConversation deletes the user's flow records when the conversation
// ends, then passes the turn on.
func EndOfConversation(auth *agentAuth.Authorization) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, tc activity.TurnContext) error {
			if act := tc.Activity(); act != nil && act.Type == activity.TypeEndOfConversation {
				if auth == nil {
					return agentAuth.ErrAuthorizationNotReady
				}
				if err := auth.EndConversation(ctx, tc); err != nil {
					return err
				}
			}
			return next.OnTurn(ctx, tc)
		})
	}
}

// SignOutCommand signs the user out of every handler when a message equals
// command, ignoring case, and replies with confirm. Other turns pass through.
func SignOutCommand(auth *agentAuth.Authorization, command, confirm string) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, tc activity.TurnContext) error {
			act := tc.Activity()
			if act == nil || act.Type != activity.TypeMessage || !strings.EqualFold(strings.TrimSpace(act.Text), command) {
				return next.OnTurn(ctx, tc)
			}
			if auth == nil {
				return agentAuth.ErrAuthorizationNotReady
			}
			if err := auth.SignOut(ctx, tc, ""); err != nil {
				return err
			}
			if confirm == "" {
				return nil
			}
			return tc.SendActivity(ctx, act.Reply(confirm))
		})
	}
}
