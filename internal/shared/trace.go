package shared

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}
type mcpSessionKey struct{}

// WithRequestID attaches a request_id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID extracts request_id from context. Returns "-" if absent.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// NewRequestID generates a new request_id.
func NewRequestID() string {
	return uuid.NewString()
}

// WithMCPSessionID attaches the protocol session id to the context.
func WithMCPSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, mcpSessionKey{}, sessionID)
}

// MCPSessionID extracts the protocol session id from context. Returns "" if absent.
func MCPSessionID(ctx context.Context) string {
	if v, ok := ctx.Value(mcpSessionKey{}).(string); ok {
		return v
	}
	return ""
}
