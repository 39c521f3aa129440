package agentAuth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/flow"
)

// GetToken returns the user's token for handlerID, or nil when the user is
// not signed in. A failed flow reports nil without asking the provider; it
// stays failed until SignOut.
func (a *Authorization) GetToken(ctx context.Context, tc activity.TurnContext, handlerID string) (*TokenResponse, error) {
	if a == nil {
		return nil, ErrAuthorizationNotReady
	}
	ctx, span := a.startSpan(ctx, "agentAuth.GetToken", handlerID)

	var (
		token *TokenResponse
		tag   flow.Tag
	)
	err := a.openFlow(ctx, tc, handlerID, true, func(ctx context.Context, h *flowHandle) error {
		tag = h.state.Tag
		if h.state.Tag == flow.TagFailure {
			return nil
		}
		tok, err := h.driver.GetUserToken(ctx, tc)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProvider, err)
		}
		if tok != nil && tok.Token != "" {
			token = tok
		}
		return nil
	})
	endSpan(span, tag, err)
	if err != nil {
		return nil, err
	}

	if token == nil {
		a.metrics.Inc(MetricTokenMiss)
	} else {
		a.metrics.Inc(MetricTokenHit)
	}
	return token, nil
}

// Begin starts a sign-in flow for handlerID. The current activity is kept as
// the continuation activity so the host can replay the user's request once
// the flow completes. A provider that already holds a token completes the
// flow immediately.
func (a *Authorization) Begin(ctx context.Context, tc activity.TurnContext, handlerID string) (*FlowResponse, error) {
	if a == nil {
		return nil, ErrAuthorizationNotReady
	}
	ctx, span := a.startSpan(ctx, "agentAuth.Begin", handlerID)

	var resp *FlowResponse
	err := a.openFlow(ctx, tc, handlerID, false, func(ctx context.Context, h *flowHandle) error {
		resp = nil
		if h.state.Tag != flow.TagNotStarted {
			return ErrFlowAlreadyActive
		}
		before := h.state.Clone()

		h.state.Tag = flow.TagBegin
		h.state.Expiration = h.now.Add(a.config.Flow.Timeout).Unix()
		h.state.AttemptsRemaining = a.config.Flow.MaxAttempts
		h.state.UserToken = ""
		h.state.ContinuationActivity = tc.Activity().Clone()

		tok, err := h.driver.BeginFlow(ctx, tc)
		if err != nil {
			*h.state = *before
			return fmt.Errorf("%w: %w", ErrProvider, err)
		}

		resp = &FlowResponse{HandlerID: h.handler.ID}
		if tok != nil && tok.Token != "" {
			h.state.Tag = flow.TagComplete
			h.state.UserToken = tok.Token
			resp.Token = tok
			h.after(func() {
				a.emitAudit(ctx, auditEventFlowComplete, true, tc, h.handler.ID, string(flow.TagComplete), nil, nil)
				a.fireSuccess(ctx, tc, h.handler.ID, tok)
			})
		} else {
			h.state.Tag = flow.TagContinue
		}
		resp.Tag = h.state.Tag
		resp.AttemptsRemaining = h.state.AttemptsRemaining
		return nil
	})
	endSpan(span, tagOf(resp), err)

	switch {
	case errors.Is(err, ErrFlowAlreadyActive):
		a.metrics.Inc(MetricFlowAlreadyActive)
		return nil, err
	case err != nil:
		a.logger.WarnContext(ctx, "begin flow failed", "handler", handlerID, "err", err)
		return nil, err
	}

	a.metrics.Inc(MetricFlowBegin)
	a.emitAudit(ctx, auditEventFlowBegin, true, tc, resp.HandlerID, string(resp.Tag), nil, nil)
	a.logger.DebugContext(ctx, "flow begun", "handler", resp.HandlerID, "tag", resp.Tag,
		"channel", tc.ChannelID(), "user", tc.UserID())
	return resp, nil
}

// ContinueFlow applies the current activity to an active flow. With an empty
// handlerID the first active flow of the user is continued.
//
// Provider rejections are not errors: they consume an attempt and are
// reported through the response, leaving the flow active while attempts
// remain and failed once they run out.
func (a *Authorization) ContinueFlow(ctx context.Context, tc activity.TurnContext, handlerID string) (*FlowResponse, error) {
	if a == nil {
		return nil, ErrAuthorizationNotReady
	}
	ctx, span := a.startSpan(ctx, "agentAuth.ContinueFlow", handlerID)

	if handlerID == "" {
		id, _, ok, err := a.ActiveFlow(ctx, tc)
		if err != nil {
			endSpan(span, "", err)
			return nil, err
		}
		if !ok {
			a.metrics.Inc(MetricNoActiveFlow)
			endSpan(span, "", ErrNoActiveFlow)
			return nil, ErrNoActiveFlow
		}
		handlerID = id
		span.SetAttributes(attrHandler(handlerID))
	}

	var resp *FlowResponse
	err := a.openFlow(ctx, tc, handlerID, false, func(ctx context.Context, h *flowHandle) error {
		resp = nil
		if !h.state.IsActive(h.now) {
			return ErrNoActiveFlow
		}
		before := h.state.Clone()
		h.state.AttemptsRemaining--

		tok, err := h.driver.ContinueFlow(ctx, tc)
		if ctxErr := ctx.Err(); ctxErr != nil {
			*h.state = *before
			return ctxErr
		}

		resp = &FlowResponse{HandlerID: h.handler.ID}
		if err == nil && tok != nil && tok.Token != "" {
			h.state.Tag = flow.TagComplete
			h.state.UserToken = tok.Token
			resp.Tag = flow.TagComplete
			resp.Token = tok
			resp.AttemptsRemaining = h.state.AttemptsRemaining
			h.after(func() {
				a.fireSuccess(ctx, tc, h.handler.ID, tok)
			})
			return nil
		}

		if err != nil {
			err = fmt.Errorf("%w: %w", ErrProvider, err)
		}
		if h.state.ReachedMaxAttempts() {
			h.state.Tag = flow.TagFailure
		}
		failure := FlowFailure{
			Tag:               h.state.Tag,
			AttemptsRemaining: h.state.AttemptsRemaining,
			Retryable:         h.state.Tag == flow.TagContinue,
			Err:               err,
		}
		resp.Tag = failure.Tag
		resp.AttemptsRemaining = failure.AttemptsRemaining
		resp.Retryable = failure.Retryable
		resp.Err = err
		h.after(func() {
			a.fireFailure(ctx, tc, h.handler.ID, failure)
		})
		return nil
	})
	endSpan(span, tagOf(resp), err)

	if errors.Is(err, ErrNoActiveFlow) {
		a.metrics.Inc(MetricNoActiveFlow)
		return nil, err
	}
	if err != nil {
		a.logger.WarnContext(ctx, "continue flow failed", "handler", handlerID, "err", err)
		return nil, err
	}

	attempts := func() map[string]string {
		return map[string]string{"attempts_remaining": strconv.Itoa(resp.AttemptsRemaining)}
	}
	switch resp.Tag {
	case flow.TagComplete:
		a.metrics.Inc(MetricFlowContinueSuccess)
		a.emitAudit(ctx, auditEventFlowComplete, true, tc, resp.HandlerID, string(resp.Tag), nil, attempts)
		a.logger.InfoContext(ctx, "flow complete", "handler", resp.HandlerID,
			"channel", tc.ChannelID(), "user", tc.UserID())
	case flow.TagFailure:
		a.metrics.Inc(MetricFlowContinueFailure)
		a.metrics.Inc(MetricFlowFailed)
		a.emitAudit(ctx, auditEventFlowFailure, false, tc, resp.HandlerID, string(resp.Tag), resp.Err, attempts)
		a.logger.InfoContext(ctx, "flow failed", "handler", resp.HandlerID,
			"channel", tc.ChannelID(), "user", tc.UserID(), "err", resp.Err)
	default:
		a.metrics.Inc(MetricFlowContinueFailure)
		a.emitAudit(ctx, auditEventFlowRetry, false, tc, resp.HandlerID, string(resp.Tag), resp.Err, attempts)
		a.logger.DebugContext(ctx, "flow continuation rejected", "handler", resp.HandlerID,
			"attempt", a.config.Flow.MaxAttempts-resp.AttemptsRemaining, "err", resp.Err)
	}
	return resp, nil
}

// ActiveFlow returns the first active flow of the turn's user in handler
// registration order. It never writes.
func (a *Authorization) ActiveFlow(ctx context.Context, tc activity.TurnContext) (string, *flow.FlowState, bool, error) {
	if a == nil {
		return "", nil, false, ErrAuthorizationNotReady
	}
	records, err := a.recordStore(tc)
	if err != nil {
		return "", nil, false, err
	}
	found, ok, err := records.FindActive(ctx, a.now())
	if err != nil {
		return "", nil, false, mapFlowStoreError(err)
	}
	if !ok {
		return "", nil, false, nil
	}
	return found.HandlerID, found.State, true, nil
}

func tagOf(resp *FlowResponse) flow.Tag {
	if resp == nil {
		return ""
	}
	return resp.Tag
}
