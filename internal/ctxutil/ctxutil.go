// Package ctxutil provides shared context key accessors.
//
// It exists to break the circular dependency between internal/dispatch and
// any HTTP/MCP transport: the transport's auth middleware populates claims
// on the request context, and dispatch needs to read them back without
// importing the transport package. Both import ctxutil instead of each
// other.
package ctxutil

import (
	"context"

	"github.com/CIRWEL/unitares-sub004/internal/auth"
)

type contextKey string

const keyClaims contextKey = "claims"

// WithClaims returns a new context carrying the given claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext extracts the JWT claims from the context, or nil if
// none were set (an internal/trusted caller with no bearer token).
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}
