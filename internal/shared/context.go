package shared

import (
	"context"
	"strings"
)

// Principal identifies the already-authenticated actor on whose behalf a
// request runs. The identity layer in front of this service resolves
// tokens; the core only ever sees the opaque user id.
type Principal struct {
	UserID string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
// The boolean is false when no authenticated principal is present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok || strings.TrimSpace(p.UserID) == "" {
		return Principal{}, false
	}
	return p, true
}
