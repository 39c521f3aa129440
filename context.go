package agentAuth

import "context"

type requestIDContextKey struct{}

// WithRequestID attaches a caller-chosen correlation id to ctx. It is copied
// into audit events and log records produced while handling the turn.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
