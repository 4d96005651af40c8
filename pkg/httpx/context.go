package httpx

import (
	"context"

	"github.com/skillchain/registry/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyAddress ctxKey = "address"
	CtxKeyClaims  ctxKey = "claims"
)

// ContextWithClaims attaches verified token claims to the request context.
func ContextWithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyAddress, c.Address())
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// ClaimsFromContext returns the verified claims, if a bearer token was
// attached. The second return is false on anonymous requests.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

// AddressFromContext returns the authenticated wallet address or "".
func AddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyAddress).(string); ok {
		return v
	}
	return ""
}
