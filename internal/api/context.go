package api

import (
	"context"

	"github.com/lei/simple-copy/internal/security"
	"github.com/lei/simple-copy/pkg/logger"
)

// contextKey is an unexported type for context keys to prevent collisions
type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyLogger    contextKey = "logger"
	contextKeyIdentity  contextKey = "identity"
)

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// GetLogger retrieves the logger from context
func GetLogger(ctx context.Context) *logger.Logger {
	if log, ok := ctx.Value(contextKeyLogger).(*logger.Logger); ok {
		return log
	}
	return nil
}

// GetIdentity retrieves the authenticated identity from context.
// Requests that never passed the auth middleware are anonymous.
func GetIdentity(ctx context.Context) security.Identity {
	if id, ok := ctx.Value(contextKeyIdentity).(security.Identity); ok {
		return id
	}
	return security.Anonymous
}
