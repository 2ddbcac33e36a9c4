package grpcserver

import (
	"context"

	"github.com/and161185/gymflow/internal/service"
)

type ctxKey string

const principalKey ctxKey = "gf.principal"

// WithPrincipal stores the authenticated caller in context.
func WithPrincipal(ctx context.Context, p service.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromCtx fetches the authenticated caller from context.
func PrincipalFromCtx(ctx context.Context) (service.Principal, bool) {
	p, ok := ctx.Value(principalKey).(service.Principal)
	return p, ok
}
