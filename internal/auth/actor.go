package auth

import (
	"context"
	"slices"
)

// Actor is the authenticated admin behind a request.
type Actor struct {
	ID   string
	Role Role

	// Granted and Revoked adjust the role's default permissions for this admin.
	// A revocation wins over a grant.
	Granted []Permission
	Revoked []Permission
}

// Can reports whether the actor holds p.
func (a Actor) Can(p Permission) bool {
	if slices.Contains(a.Revoked, p) {
		return false
	}
	return RoleHas(a.Role, p) || slices.Contains(a.Granted, p)
}

// IsTopPrivilege reports whether the actor may touch kill-switch flags.
func (a Actor) IsTopPrivilege() bool {
	return a.Role == TopRole
}

type ctxKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
