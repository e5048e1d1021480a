package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// SerializableKey is a Key whose components are restricted to types that
// round-trip through JSON without losing their exact Go type. It is required
// by providers that store entries outside the process.
//
// Allowed component types: string, bool, all sized and unsized integer
// types, float32, float64, time.Time and time.Duration.
type SerializableKey struct {
	key *Key
}

// NewSerializableKey wraps k. It fails with ErrNotSerializable if any of k's
// components is not an allowed type.
func NewSerializableKey(k *Key) (*SerializableKey, error) {
	for i, c := range k.components {
		if _, ok := componentTag(c); !ok {
			return nil, fmt.Errorf("%w: component %d has type %T", ErrNotSerializable, i, c)
		}
	}
	return &SerializableKey{key: k.Clone()}, nil
}

// SerializableKeyFromIDs builds an empty serializable key with the given ids.
func SerializableKeyFromIDs(tenantID, principalID string) *SerializableKey {
	return &SerializableKey{key: KeyFromIDs(tenantID, principalID)}
}

// Key returns the underlying key. Callers must not Append to it directly.
func (s *SerializableKey) Key() *Key {
	return s.key
}

// Append validates and adds components. Nil elements fail with
// ErrInvalidArgument and disallowed types with ErrNotSerializable; in both
// cases the key is left unchanged.
func (s *SerializableKey) Append(objs ...any) (*SerializableKey, error) {
	for i, o := range objs {
		if isNil(o) {
			return s, fmt.Errorf("%w: component %d is nil", ErrInvalidArgument, i)
		}
		if _, ok := componentTag(o); !ok {
			return s, fmt.Errorf("%w: component %d has type %T", ErrNotSerializable, i, o)
		}
	}
	s.key.components = append(s.key.components, objs...)
	return s, nil
}

// Equal reports whether both keys wrap equal keys.
func (s *SerializableKey) Equal(other *SerializableKey) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.key.Equal(other.key)
}

// String returns the canonical form of the underlying key.
func (s *SerializableKey) String() string {
	return s.key.String()
}

type wireComponent struct {
	Type  string          `json:"t"`
	Value json.RawMessage `json:"v"`
}

type wireKey struct {
	TenantID    string          `json:"tenant,omitempty"`
	PrincipalID string          `json:"principal,omitempty"`
	Components  []wireComponent `json:"components"`
}

// MarshalJSON encodes the key with a type tag per component.
func (s *SerializableKey) MarshalJSON() ([]byte, error) {
	w := wireKey{
		TenantID:    s.key.tenantID,
		PrincipalID: s.key.principalID,
		Components:  make([]wireComponent, 0, len(s.key.components)),
	}
	for i, c := range s.key.components {
		tag, ok := componentTag(c)
		if !ok {
			return nil, fmt.Errorf("%w: component %d has type %T", ErrNotSerializable, i, c)
		}
		var raw []byte
		var err error
		switch v := c.(type) {
		case time.Time:
			raw, err = json.Marshal(v.Format(time.RFC3339Nano))
		case time.Duration:
			raw, err = json.Marshal(int64(v))
		default:
			raw, err = json.Marshal(v)
		}
		if err != nil {
			return nil, err
		}
		w.Components = append(w.Components, wireComponent{Type: tag, Value: raw})
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a key produced by MarshalJSON, restoring the exact
// component types.
func (s *SerializableKey) UnmarshalJSON(data []byte) error {
	var w wireKey
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	k := KeyFromIDs(w.TenantID, w.PrincipalID)
	for i, wc := range w.Components {
		v, err := decodeComponent(wc)
		if err != nil {
			return fmt.Errorf("component %d: %w", i, err)
		}
		k.components = append(k.components, v)
	}
	s.key = k
	return nil
}

func componentTag(v any) (string, bool) {
	switch v.(type) {
	case string:
		return "string", true
	case bool:
		return "bool", true
	case int:
		return "int", true
	case int8:
		return "int8", true
	case int16:
		return "int16", true
	case int32:
		return "int32", true
	case int64:
		return "int64", true
	case uint:
		return "uint", true
	case uint8:
		return "uint8", true
	case uint16:
		return "uint16", true
	case uint32:
		return "uint32", true
	case uint64:
		return "uint64", true
	case float32:
		return "float32", true
	case float64:
		return "float64", true
	case time.Time:
		return "time", true
	case time.Duration:
		return "duration", true
	}
	return "", false
}

func decodeComponent(wc wireComponent) (any, error) {
	switch wc.Type {
	case "string":
		return decodeAs[string](wc.Value)
	case "bool":
		return decodeAs[bool](wc.Value)
	case "int":
		return decodeAs[int](wc.Value)
	case "int8":
		return decodeAs[int8](wc.Value)
	case "int16":
		return decodeAs[int16](wc.Value)
	case "int32":
		return decodeAs[int32](wc.Value)
	case "int64":
		return decodeAs[int64](wc.Value)
	case "uint":
		return decodeAs[uint](wc.Value)
	case "uint8":
		return decodeAs[uint8](wc.Value)
	case "uint16":
		return decodeAs[uint16](wc.Value)
	case "uint32":
		return decodeAs[uint32](wc.Value)
	case "uint64":
		return decodeAs[uint64](wc.Value)
	case "float32":
		return decodeAs[float32](wc.Value)
	case "float64":
		return decodeAs[float64](wc.Value)
	case "time":
		s, err := decodeAs[string](wc.Value)
		if err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, s)
	case "duration":
		n, err := decodeAs[int64](wc.Value)
		if err != nil {
			return nil, err
		}
		return time.Duration(n), nil
	}
	return nil, fmt.Errorf("%w: unknown component type %q", ErrNotSerializable, wc.Type)
}

func decodeAs[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
