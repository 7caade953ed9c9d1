package auth

import (
	"context"

	domain "github.com/orderlane/api/internal/domain"
)

type contextKey string

const actorContextKey contextKey = "github.com/orderlane/api/internal/platform/auth/actor"

// WithActor stores the resolved actor within the context for downstream handlers.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext retrieves the actor previously stored in context.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(domain.Actor)
	if !ok || actor.IsZero() {
		return domain.Actor{}, false
	}
	return actor, true
}
