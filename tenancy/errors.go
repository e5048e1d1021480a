package tenancy

import "errors"

// Sentinel errors for context access.
var (
	// ErrTenantAccess is returned when a tenant is required but none is
	// attached to the context.
	ErrTenantAccess = errors.New("tenancy: no tenant available in context")

	// ErrPrincipalAccess is returned when a principal is required but none is
	// attached to the context.
	ErrPrincipalAccess = errors.New("tenancy: no principal available in context")

	// Token errors
	ErrMissingToken   = errors.New("tenancy: missing bearer token")
	ErrTokenMalformed = errors.New("tenancy: token malformed")
	ErrTokenExpired   = errors.New("tenancy: token expired")
	ErrTokenInvalid   = errors.New("tenancy: token invalid")
)
