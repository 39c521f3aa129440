package agentAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/jwt"
	"golang.org/x/sync/errgroup"
)

// ExchangeToken returns a token for the downstream API named by scopes.
//
// The user's token is exchanged on-behalf-of only when the handler has an
// OBO connection and the token's audience carries the configured prefix;
// otherwise the user's token is returned unchanged. Nil scopes fall back to
// the handler's default scopes. Flow state is never written.
func (a *Authorization) ExchangeToken(ctx context.Context, tc activity.TurnContext, scopes []string, handlerID string) (*TokenResponse, error) {
	if a == nil {
		return nil, ErrAuthorizationNotReady
	}
	token, err := a.GetToken(ctx, tc, handlerID)
	if err != nil || token == nil {
		return token, err
	}

	handler, _, err := a.registry.Resolve(handlerID)
	if err != nil {
		return nil, err
	}
	if !handler.Exchangeable() || !jwt.IsExchangeable(token.Token, a.config.Exchange.AudiencePrefix) {
		return token, nil
	}
	if a.obo == nil {
		return nil, ErrExchangeUnavailable
	}
	if scopes == nil {
		scopes = handler.Scopes
	}

	ctx, span := a.startSpan(ctx, "agentAuth.ExchangeToken", handler.ID)
	exchanged, err := a.obo.Exchange(ctx, handler.OBOConnectionName, scopes, token.Token)
	if err == nil && (exchanged == nil || exchanged.Token == "") {
		err = errors.New("empty exchanged token")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrProvider, err)
	}
	endSpan(span, "", err)

	scopeMeta := func() map[string]string {
		return map[string]string{
			"connection": handler.OBOConnectionName,
			"scopes":     strings.Join(scopes, " "),
		}
	}
	if err != nil {
		a.metrics.Inc(MetricTokenExchangeFailure)
		a.emitAudit(ctx, auditEventTokenExchange, false, tc, handler.ID, "", err, scopeMeta)
		a.logger.WarnContext(ctx, "token exchange failed", "handler", handler.ID, "err", err)
		return nil, err
	}

	a.metrics.Inc(MetricTokenExchange)
	a.emitAudit(ctx, auditEventTokenExchange, true, tc, handler.ID, "", nil, scopeMeta)
	if exchanged.ConnectionName == "" {
		exchanged.ConnectionName = handler.OBOConnectionName
	}
	return exchanged, nil
}

// SignOut signs the user out of handlerID, or of every handler when
// handlerID is empty. Each driver is asked to revoke its token and the flow
// records are deleted; this is the only way out of a failed flow. Records
// are deleted even when a driver fails.
func (a *Authorization) SignOut(ctx context.Context, tc activity.TurnContext, handlerID string) error {
	if a == nil {
		return ErrAuthorizationNotReady
	}
	ctx, span := a.startSpan(ctx, "agentAuth.SignOut", handlerID)

	err := a.signOut(ctx, tc, handlerID)
	endSpan(span, "", err)
	return err
}

func (a *Authorization) signOut(ctx context.Context, tc activity.TurnContext, handlerID string) error {
	ids := []string{handlerID}
	if handlerID == "" {
		ids = a.registry.IDs()
	}

	drivers := make([]OAuthFlow, len(ids))
	for i, id := range ids {
		_, driver, err := a.registry.Resolve(id)
		if err != nil {
			return err
		}
		drivers[i] = driver
	}
	records, err := a.recordStore(tc)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for i := range drivers {
		driver, id := drivers[i], ids[i]
		g.Go(func() error {
			if err := driver.SignOut(ctx, tc); err != nil {
				return fmt.Errorf("%w: sign out %q: %w", ErrProvider, id, err)
			}
			return nil
		})
	}
	driverErr := g.Wait()
	deleteErr := mapFlowStoreError(records.Delete(ctx, ids...))

	for _, id := range ids {
		a.metrics.Inc(MetricSignOut)
		a.emitAudit(ctx, auditEventSignOut, driverErr == nil && deleteErr == nil, tc, id, "", errors.Join(driverErr, deleteErr), nil)
	}
	if err := errors.Join(driverErr, deleteErr); err != nil {
		a.logger.WarnContext(ctx, "sign out incomplete", "handler", handlerID, "err", err)
		return err
	}
	a.logger.InfoContext(ctx, "signed out", "handler", handlerID,
		"channel", tc.ChannelID(), "user", tc.UserID())
	return nil
}

// EndConversation deletes every flow record of the turn's user without
// contacting providers. Tokens held by providers are left alone.
func (a *Authorization) EndConversation(ctx context.Context, tc activity.TurnContext) error {
	if a == nil {
		return ErrAuthorizationNotReady
	}
	records, err := a.recordStore(tc)
	if err != nil {
		return err
	}
	if err := records.DeleteAll(ctx); err != nil {
		return mapFlowStoreError(err)
	}
	a.emitAudit(ctx, auditEventConversationEnd, true, tc, "", "", nil, nil)
	a.logger.DebugContext(ctx, "conversation ended, flow records cleared",
		"channel", tc.ChannelID(), "user", tc.UserID())
	return nil
}
