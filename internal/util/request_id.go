package util

import (
	"context"
	"strings"
)

type requestIDContextKey string

const requestIDCtxKey = requestIDContextKey("request_id")

// WithRequestID tags ctx with an id that remote calls send as X-Request-Id.
// An empty id generates one. A child logger carrying "request_id" is stored
// alongside so LoggerFromContext returns a correlated logger.
func WithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		id = NewID()
	}
	ctx = context.WithValue(ctx, requestIDCtxKey, id)
	return ContextWithLogger(ctx, LoggerFromContext(ctx).With("request_id", id))
}

// RequestIDFromContext returns request id from context.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDCtxKey).(string)
	return id
}
