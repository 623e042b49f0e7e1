// Package logging carries request-scoped identity and trace information
// through context so handlers and middleware can log consistently.
package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// UserIDKey holds the authenticated user's ID.
	UserIDKey contextKey = "user_id"
	// UsernameKey holds the authenticated user's username.
	UsernameKey contextKey = "username"
	// RoleKey holds the authenticated user's role.
	RoleKey contextKey = "role"
	// TraceIDKey holds the per-request trace ID.
	TraceIDKey contextKey = "trace_id"
)

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, UsernameKey, username)
}

func GetUsername(ctx context.Context) string {
	return stringValue(ctx, UsernameKey)
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

func GetRole(ctx context.Context) string {
	return stringValue(ctx, RoleKey)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// NewTraceID generates a fresh trace ID for requests that arrive without one.
func NewTraceID() string {
	return uuid.NewString()
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
