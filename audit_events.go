package agentAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/storage"
)

const (
	auditEventFlowBegin       = "flow_begin"
	auditEventFlowComplete    = "flow_complete"
	auditEventFlowRetry       = "flow_retry"
	auditEventFlowFailure     = "flow_failure"
	auditEventTokenExchange   = "token_exchange"
	auditEventSignOut         = "sign_out"
	auditEventConversationEnd = "conversation_end"
)

// AuditErrorCode is the coarse error class recorded in audit events.
type AuditErrorCode string

const (
	auditErrHandlerNotFound     AuditErrorCode = "handler_not_found"
	auditErrInvalidContext      AuditErrorCode = "invalid_context"
	auditErrFlowAlreadyActive   AuditErrorCode = "flow_already_active"
	auditErrNoActiveFlow        AuditErrorCode = "no_active_flow"
	auditErrConcurrentModify    AuditErrorCode = "concurrent_modification"
	auditErrCorruptFlow         AuditErrorCode = "corrupt_flow"
	auditErrProvider            AuditErrorCode = "provider_error"
	auditErrExchangeUnavailable AuditErrorCode = "exchange_unavailable"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrCanceled            AuditErrorCode = "canceled"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (a *Authorization) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	tc activity.TurnContext,
	handlerID string,
	tag string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if a == nil || a.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		HandlerID: handlerID,
		Tag:       tag,
		RequestID: requestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if tc != nil {
		event.ChannelID = tc.ChannelID()
		event.UserID = tc.UserID()
		if act := tc.Activity(); act != nil {
			event.ConversationID = act.Conversation.ID
			event.TenantID = act.Conversation.TenantID
		}
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	a.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrHandlerNotFound),
		errors.Is(err, ErrAmbiguousHandler):
		return auditErrHandlerNotFound
	case errors.Is(err, ErrInvalidContext):
		return auditErrInvalidContext
	case errors.Is(err, ErrFlowAlreadyActive):
		return auditErrFlowAlreadyActive
	case errors.Is(err, ErrNoActiveFlow):
		return auditErrNoActiveFlow
	case errors.Is(err, ErrConcurrentModification):
		return auditErrConcurrentModify
	case errors.Is(err, ErrCorruptFlow):
		return auditErrCorruptFlow
	case errors.Is(err, ErrExchangeUnavailable):
		return auditErrExchangeUnavailable
	case errors.Is(err, storage.ErrUnavailable):
		return auditErrUnavailable
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	case errors.Is(err, ErrProvider):
		return auditErrProvider
	default:
		return auditErrInternal
	}
}
