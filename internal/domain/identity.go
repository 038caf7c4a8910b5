package domain

import "context"

// Identity is the acting user extracted from the request credentials.
type Identity struct {
	ID          string
	DisplayName string
}

type identityKey struct{}

// ContextWithIdentity stores the acting user in the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the acting user, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.ID == "" {
		return Identity{}, false
	}
	return id, true
}
