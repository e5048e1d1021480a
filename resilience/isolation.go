package resilience

import (
	"context"

	"github.com/jonwraymond/cloudsdk/tenancy"
)

// IsolationKey selects which instance of a stateful pattern serves a call.
// It is comparable and used directly as a map key. Empty fields mean the
// call is not isolated on that axis.
type IsolationKey struct {
	TenantID    string
	PrincipalID string
}

// NewIsolationKey resolves the isolation key for mode from the ambient
// tenant and principal. Required modes fail with tenancy.ErrTenantAccess or
// tenancy.ErrPrincipalAccess when context is missing.
func NewIsolationKey(ctx context.Context, mode IsolationMode) (IsolationKey, error) {
	switch mode {
	case TenantRequired:
		t, err := tenancy.CurrentTenant(ctx)
		if err != nil {
			return IsolationKey{}, err
		}
		return IsolationKey{TenantID: t.ID}, nil
	case TenantOptional:
		return IsolationKey{TenantID: tenancy.TenantID(ctx)}, nil
	case TenantAndPrincipalRequired:
		t, err := tenancy.CurrentTenant(ctx)
		if err != nil {
			return IsolationKey{}, err
		}
		p, err := tenancy.CurrentPrincipal(ctx)
		if err != nil {
			return IsolationKey{}, err
		}
		return IsolationKey{TenantID: t.ID, PrincipalID: p.ID}, nil
	case TenantAndPrincipalOptional:
		return IsolationKey{TenantID: tenancy.TenantID(ctx), PrincipalID: tenancy.PrincipalID(ctx)}, nil
	default:
		return IsolationKey{}, nil
	}
}

func (k IsolationKey) String() string {
	return "tenant=" + k.TenantID + " principal=" + k.PrincipalID
}
