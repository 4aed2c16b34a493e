package middleware

import "context"

// contextKey is the private type for context values set by this
// package.
type contextKey string

const (
	// requestIDKey carries the request id through the handler chain.
	requestIDKey contextKey = "request_id"
)

// GetRequestID returns the request id from the context, or "".
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// withRequestID attaches a request id to the context.
func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
