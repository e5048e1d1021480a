package observe

import "strings"

// CallMeta describes a decorated call for telemetry purposes.
type CallMeta struct {
	Identifier  string   // Configuration identifier (required)
	Isolation   string   // Isolation mode name (optional)
	TenantID    string   // Resolved tenant id, empty when not isolated
	PrincipalID string   // Resolved principal id, empty when not isolated
	Patterns    []string // Enabled resilience patterns, outermost first (optional)
}

// SpanName returns the deterministic span name for this call.
// Format: resilience.call.<identifier>
func (m CallMeta) SpanName() string {
	return "resilience.call." + m.Identifier
}

// PatternList renders Patterns as a comma separated list.
func (m CallMeta) PatternList() string {
	return strings.Join(m.Patterns, ",")
}

// Validate reports ErrMissingIdentifier when Identifier is empty.
func (m CallMeta) Validate() error {
	if m.Identifier == "" {
		return ErrMissingIdentifier
	}
	return nil
}
