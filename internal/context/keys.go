// Package context carries request-scoped values shared across layers.
package context

import (
	"context"
)

// contextKey keeps context values private to this package so callers
// cannot collide with them by accident.
type contextKey struct {
	name string
}

// UserIDKey stores the authenticated caller's user ID.
var UserIDKey = contextKey{"userID"}

// RequestIDKey stores the per-request correlation ID.
var RequestIDKey = contextKey{"requestID"}

// GetUserIDFromContext extracts the authenticated user ID, reporting
// whether one was set.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userIDVal := ctx.Value(UserIDKey)
	if userIDVal == nil {
		return "", false
	}
	userID, ok := userIDVal.(string)
	return userID, ok && userID != ""
}

// WithUserID returns a context carrying the authenticated user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestIDFromContext extracts the request correlation ID, or ""
// when none was assigned.
func GetRequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID returns a context carrying the request correlation ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
