package tenancy

import "time"

// Tenant is the customer or organization boundary a call runs for.
type Tenant struct {
	// ID is the unique tenant identifier (e.g. the zone id of a token).
	ID string

	// Subdomain is the tenant's subdomain, if known.
	Subdomain string
}

// Principal is the authenticated identity a call runs for.
type Principal struct {
	// ID is the unique principal identifier (e.g. user name or client id).
	ID string

	// Claims contains the raw claims the principal was built from.
	Claims map[string]any

	// ExpiresAt is when the underlying credential expires.
	ExpiresAt time.Time
}

// IsExpired checks if the principal's credential has expired.
func (p Principal) IsExpired() bool {
	if p.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(p.ExpiresAt)
}

// Claim returns the string value of a claim, or "" if absent or not a string.
func (p Principal) Claim(name string) string {
	s, _ := p.Claims[name].(string)
	return s
}
