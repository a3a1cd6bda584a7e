package auth

import "context"

// Identity is the authenticated principal attached to a request. It is
// read-only once attached.
type Identity struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
}

type identityContextKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached to ctx, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
