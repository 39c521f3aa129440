package agentAuth

import "errors"

var (
	// ErrHandlerNotFound is returned when a handler id is not registered.
	ErrHandlerNotFound = errors.New("auth handler not found")
	// ErrAmbiguousHandler is returned when no handler id is given and more
	// than one handler is registered.
	ErrAmbiguousHandler = errors.New("auth handler id required: multiple handlers registered")
	// ErrInvalidContext is returned when the turn carries no channel or user id.
	ErrInvalidContext = errors.New("turn context missing channel or user id")
	// ErrFlowAlreadyActive is returned by Begin when a flow for the handler is
	// already in progress, completed, or failed.
	ErrFlowAlreadyActive = errors.New("flow already active")
	// ErrNoActiveFlow is returned by ContinueFlow when there is nothing to continue.
	ErrNoActiveFlow = errors.New("no active flow")
	// ErrConcurrentModification is returned when a flow record kept changing
	// under the caller for every allowed retry.
	ErrConcurrentModification = errors.New("flow record concurrently modified")
	// ErrCorruptFlow is returned when a stored flow record cannot be decoded
	// or violates a state invariant.
	ErrCorruptFlow = errors.New("flow record corrupt")
	// ErrRegistryFrozen is returned when registering after Build.
	ErrRegistryFrozen = errors.New("handler registry frozen")
	// ErrDuplicateHandler is returned when a handler id is registered twice.
	ErrDuplicateHandler = errors.New("auth handler already registered")
	// ErrInvalidHandler is returned for handler definitions missing required fields.
	ErrInvalidHandler = errors.New("invalid auth handler")
	// ErrExchangeUnavailable is returned when a handler is exchangeable but no
	// OBOProvider was configured.
	ErrExchangeUnavailable = errors.New("token exchange provider not configured")
	// ErrProvider wraps errors returned by an OAuthFlow driver or OBOProvider.
	ErrProvider = errors.New("auth provider error")
	// ErrAuthorizationNotReady is returned by methods called on a nil Authorization.
	ErrAuthorizationNotReady = errors.New("authorization not initialized")
)
