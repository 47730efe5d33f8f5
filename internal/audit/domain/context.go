package domain

import (
	"context"
	"strings"
)

type actorKey struct{}

type actor struct {
	Type string
	ID   string
}

// ContextWithActor records who is acting on behalf of the request.
func ContextWithActor(ctx context.Context, actorType, actorID string) context.Context {
	actorType = strings.TrimSpace(actorType)
	if actorType == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor{Type: actorType, ID: strings.TrimSpace(actorID)})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	a, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return a.Type, a.ID
}
