package cache

import (
	"context"
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"

	"github.com/jonwraymond/cloudsdk/tenancy"
)

// Key identifies a cache slot by tenant id, principal id and an ordered list
// of components. An empty id means the key is not isolated on that axis.
//
// Keys compare structurally: two keys built from equal inputs are Equal and
// have the same Hash and String. A Key is not safe for concurrent Append.
type Key struct {
	tenantID    string
	principalID string
	components  []any
}

// KeyOfNoIsolation returns a key with neither tenant nor principal.
func KeyOfNoIsolation() *Key {
	return &Key{}
}

// KeyOfTenantIsolation returns a key isolated by the ambient tenant.
// It fails with tenancy.ErrTenantAccess if no tenant is available.
func KeyOfTenantIsolation(ctx context.Context) (*Key, error) {
	t, err := tenancy.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	return &Key{tenantID: t.ID}, nil
}

// KeyOfTenantOptionalIsolation returns a key isolated by the ambient tenant
// if one is available, and a non-isolated key otherwise.
func KeyOfTenantOptionalIsolation(ctx context.Context) *Key {
	return &Key{tenantID: tenancy.TenantID(ctx)}
}

// KeyOfTenantAndPrincipalIsolation returns a key isolated by the ambient
// tenant and principal. It fails if either is unavailable.
func KeyOfTenantAndPrincipalIsolation(ctx context.Context) (*Key, error) {
	t, err := tenancy.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	p, err := tenancy.CurrentPrincipal(ctx)
	if err != nil {
		return nil, err
	}
	return &Key{tenantID: t.ID, principalID: p.ID}, nil
}

// KeyOfTenantAndPrincipalOptionalIsolation returns a key isolated by whichever
// of the ambient tenant and principal are available.
func KeyOfTenantAndPrincipalOptionalIsolation(ctx context.Context) *Key {
	return &Key{
		tenantID:    tenancy.TenantID(ctx),
		principalID: tenancy.PrincipalID(ctx),
	}
}

// KeyFromIDs builds a key from explicit ids without consulting the context.
// Pass "" for an absent id.
func KeyFromIDs(tenantID, principalID string) *Key {
	return &Key{tenantID: tenantID, principalID: principalID}
}

// TenantID returns the tenant id and whether the key is tenant-isolated.
func (k *Key) TenantID() (string, bool) {
	return k.tenantID, k.tenantID != ""
}

// PrincipalID returns the principal id and whether the key is
// principal-isolated.
func (k *Key) PrincipalID() (string, bool) {
	return k.principalID, k.principalID != ""
}

// Components returns a copy of the key's components.
func (k *Key) Components() []any {
	out := make([]any, len(k.components))
	copy(out, k.components)
	return out
}

// Append adds components to the key and returns it for chaining.
//
// If any element is nil (including typed nil pointers, maps, slices, funcs
// and channels) the whole batch is rejected with ErrInvalidArgument and the
// key is left unchanged.
func (k *Key) Append(objs ...any) (*Key, error) {
	for i, o := range objs {
		if isNil(o) {
			return k, fmt.Errorf("%w: component %d is nil", ErrInvalidArgument, i)
		}
	}
	k.components = append(k.components, objs...)
	return k, nil
}

// Clone returns an independent copy of the key.
func (k *Key) Clone() *Key {
	return &Key{
		tenantID:    k.tenantID,
		principalID: k.principalID,
		components:  k.Components(),
	}
}

// Equal reports whether both keys have the same ids and components with the
// same canonical form, in the same order. Equal and String always agree.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	if k.tenantID != other.tenantID || k.principalID != other.principalID {
		return false
	}
	if len(k.components) != len(other.components) {
		return false
	}
	return k.MatchesComponents(other.components)
}

// Hash returns a 64-bit hash of the canonical form of the key.
func (k *Key) Hash() uint64 {
	return xxhash.Sum64String(k.String())
}

// String returns the canonical form of the key. Equal keys have equal
// canonical forms; stores index entries by it.
func (k *Key) String() string {
	return string(canonicalKey(k))
}

// MatchesTenant reports whether the key's tenant id equals tenantID.
// An empty tenantID matches keys without tenant isolation.
func (k *Key) MatchesTenant(tenantID string) bool {
	return k.tenantID == tenantID
}

// MatchesPrincipal reports whether the key's tenant and principal ids equal
// the given ids.
func (k *Key) MatchesPrincipal(tenantID, principalID string) bool {
	return k.tenantID == tenantID && k.principalID == principalID
}

// MatchesComponents reports whether the key's components equal want
// element-wise and in order, compared by canonical form.
func (k *Key) MatchesComponents(want []any) bool {
	if len(k.components) != len(want) {
		return false
	}
	for i := range want {
		if componentForm(k.components[i]) != componentForm(want[i]) {
			return false
		}
	}
	return true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
