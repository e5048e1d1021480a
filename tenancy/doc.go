// Package tenancy carries the tenant and principal of the current call on a
// context.Context.
//
// Resilience isolation and cache key derivation read the ambient tenant and
// principal through TenantFromContext / PrincipalFromContext (absent is not an
// error) or CurrentTenant / CurrentPrincipal (absent is ErrTenantAccess /
// ErrPrincipalAccess). JWTExtractor populates a context from a bearer token.
package tenancy
