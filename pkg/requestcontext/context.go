// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services read them without importing net/http.
// Every state-mutating operation resolves its caller through ActorID and Role
// here — the actor directory is consulted exactly once per request, at the
// middleware boundary.
//
// Usage in services (read values):
//
//	actorID := requestcontext.ActorID(ctx)
//	role := requestcontext.Role(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithActor(ctx, actorID, domain.RoleLandOfficer)
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "landregistry/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	actorIDKey     struct{}
	roleKey        struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyActorID     = actorIDKey{}
	ContextKeyRole        = roleKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// ActorID retrieves the authenticated actor ID from the context.
// Returns the zero value (nil UUID) if not set.
func ActorID(ctx context.Context) id.ActorID {
	if actorID, ok := ctx.Value(ContextKeyActorID).(id.ActorID); ok {
		return actorID
	}
	return id.ActorID{}
}

// Role retrieves the caller's role from the context. Returns the empty role
// if not set; guards treat an empty role as unauthenticated.
func Role(ctx context.Context) id.Role {
	if role, ok := ctx.Value(ContextKeyRole).(id.Role); ok {
		return role
	}
	return ""
}

// WithActor injects an actor identity into the context.
func WithActor(ctx context.Context, actorID id.ActorID, role id.Role) context.Context {
	ctx = context.WithValue(ctx, ContextKeyActorID, actorID)
	return context.WithValue(ctx, ContextKeyRole, role)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts (workers, tests without injection).
// A single request observes a single timestamp, so a multi-entity transition
// stamps every record with the same time.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and batch workers that need a consistent timestamp.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
