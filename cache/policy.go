package cache

import (
	"fmt"
	"strings"
	"time"
)

// ExpiryStrategy selects which events reset an entry's time to live.
type ExpiryStrategy int

const (
	// ExpireAfterAccess resets the TTL on creation and on every read.
	ExpireAfterAccess ExpiryStrategy = iota
	// ExpireAfterModification resets the TTL on creation and on every write.
	ExpireAfterModification
	// ExpireAfterCreation sets the TTL once, on creation.
	ExpireAfterCreation
	// ExpireAfterTouch resets the TTL on creation, read and write.
	ExpireAfterTouch
)

// String returns the configuration name of the strategy.
func (s ExpiryStrategy) String() string {
	switch s {
	case ExpireAfterAccess:
		return "accessed"
	case ExpireAfterModification:
		return "modified"
	case ExpireAfterCreation:
		return "created"
	case ExpireAfterTouch:
		return "touched"
	default:
		return fmt.Sprintf("ExpiryStrategy(%d)", int(s))
	}
}

// ParseExpiryStrategy parses a configuration name (case-insensitive). A
// "WHEN_" prefix is accepted, as in "WHEN_CREATED".
func ParseExpiryStrategy(name string) (ExpiryStrategy, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "when_") {
	case "accessed", "access":
		return ExpireAfterAccess, nil
	case "modified", "modification", "":
		return ExpireAfterModification, nil
	case "created", "creation":
		return ExpireAfterCreation, nil
	case "touched", "touch":
		return ExpireAfterTouch, nil
	}
	return 0, fmt.Errorf("%w: unknown expiry strategy %q", ErrInvalidExpiry, name)
}

// ExpiryPolicy is the expiry configuration of a store.
type ExpiryPolicy struct {
	Strategy ExpiryStrategy

	// Duration is the time to live.
	// Default: 5 minutes
	Duration time.Duration
}

// DefaultExpiryPolicy returns modification expiry with a 5 minute TTL.
func DefaultExpiryPolicy() ExpiryPolicy {
	return ExpiryPolicy{Strategy: ExpireAfterModification, Duration: 5 * time.Minute}
}

// Validate checks the policy is usable.
func (p ExpiryPolicy) Validate() error {
	if p.Strategy < ExpireAfterAccess || p.Strategy > ExpireAfterTouch {
		return fmt.Errorf("%w: %s", ErrInvalidExpiry, p.Strategy)
	}
	if p.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidExpiry, p.Duration)
	}
	return nil
}

// String renders the policy as "<strategy>/<duration>".
func (p ExpiryPolicy) String() string {
	return p.Strategy.String() + "/" + p.Duration.String()
}

func (p ExpiryPolicy) resetsOnAccess() bool {
	return p.Strategy == ExpireAfterAccess || p.Strategy == ExpireAfterTouch
}

func (p ExpiryPolicy) resetsOnUpdate() bool {
	return p.Strategy == ExpireAfterModification || p.Strategy == ExpireAfterTouch
}
