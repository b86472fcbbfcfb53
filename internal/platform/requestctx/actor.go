// Package requestctx carries request-scoped identity through context.
package requestctx

import "context"

// actorIDContextKey is the context key for the authenticated actor identity.
type actorIDContextKey struct{}

// WithActorID stores an actor identifier in context.
func WithActorID(ctx context.Context, actorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorIDContextKey{}, actorID)
}

// ActorIDFromContext returns the actor identifier stored in context.
func ActorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(actorIDContextKey{}).(string)
	return value
}
