// Package context carries request-scoped correlation values used by logs,
// traces and persisted webhook rows.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	correlationIDKey
	actorTypeKey
	actorIDKey
)

const (
	ActorBuyer   = "buyer"
	ActorOwner   = "owner"
	ActorGateway = "gateway"
	ActorSystem  = "system"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDKey)
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = context.WithValue(ctx, actorTypeKey, strings.TrimSpace(actorType))
	return context.WithValue(ctx, actorIDKey, strings.TrimSpace(actorID))
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringValue(ctx, actorTypeKey), stringValue(ctx, actorIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
