package security

import (
	"context"
)

// Identity is the authenticated principal attached to a request after a
// successful security check.
type Identity struct {
	// Username is the authenticated user name. For jwt mode it is taken from
	// the "sub" claim when present.
	Username string

	// Scheme is the authentication scheme that produced this identity:
	// "basic", "jwt", or "none".
	Scheme string

	// Claims holds the decoded token claims for jwt mode; nil otherwise.
	Claims map[string]any
}

type identityKey struct{}

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom extracts the request identity, if any.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
