package tenancy

import (
	"context"
	"fmt"
)

type contextKey int

const (
	tenantKey contextKey = iota
	principalKey
)

// WithTenant returns a new context with the given tenant attached.
// A tenant with an empty ID is treated as absent.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// WithPrincipal returns a new context with the given principal attached.
// A principal with an empty ID is treated as absent.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// WithoutTenant returns a context that hides any tenant of its parent.
func WithoutTenant(ctx context.Context) context.Context {
	return context.WithValue(ctx, tenantKey, Tenant{})
}

// WithoutPrincipal returns a context that hides any principal of its parent.
func WithoutPrincipal(ctx context.Context) context.Context {
	return context.WithValue(ctx, principalKey, Principal{})
}

// TenantFromContext returns the ambient tenant. The boolean is false when no
// tenant can be resolved; that is not an error.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	if ctx == nil {
		return Tenant{}, false
	}
	t, _ := ctx.Value(tenantKey).(Tenant)
	return t, t.ID != ""
}

// PrincipalFromContext returns the ambient principal. The boolean is false
// when no principal can be resolved.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, _ := ctx.Value(principalKey).(Principal)
	return p, p.ID != ""
}

// CurrentTenant returns the ambient tenant or ErrTenantAccess.
func CurrentTenant(ctx context.Context) (Tenant, error) {
	t, ok := TenantFromContext(ctx)
	if !ok {
		return Tenant{}, ErrTenantAccess
	}
	return t, nil
}

// CurrentPrincipal returns the ambient principal or ErrPrincipalAccess.
func CurrentPrincipal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return Principal{}, ErrPrincipalAccess
	}
	return p, nil
}

// TenantID returns the ambient tenant id, or "" if none.
func TenantID(ctx context.Context) string {
	t, _ := TenantFromContext(ctx)
	return t.ID
}

// PrincipalID returns the ambient principal id, or "" if none.
func PrincipalID(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.ID
}

// Describe renders the ambient tenant/principal for log output.
func Describe(ctx context.Context) string {
	return fmt.Sprintf("tenant=%q principal=%q", TenantID(ctx), PrincipalID(ctx))
}
