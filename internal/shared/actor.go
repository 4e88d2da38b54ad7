package shared

import (
	"context"
	"strings"
)

// Actor identifies who performed a mutating action. Authentication lives
// outside this service; callers supply identity through request headers.
type Actor struct {
	ID   string
	Name string
}

// Valid reports whether the actor carries a usable identity.
func (a Actor) Valid() bool {
	return strings.TrimSpace(a.ID) != ""
}

type actorContextKey struct{}

// WithActor stores the actor on the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor previously stored with WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.Valid()
}
