package identity

import (
	"context"

	"github.com/carepoint/carepoint/internal/rbac"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// SubjectFromContext adapts PrincipalFromContext to rbac.SubjectFunc. It
// returns an untyped nil when no principal is present.
func SubjectFromContext(ctx context.Context) rbac.Subject {
	if p := PrincipalFromContext(ctx); p != nil {
		return p
	}
	return nil
}
