package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when max retry attempts are exhausted.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrAmbiguousStrategy is returned when more than one decoration
	// strategy is offered at startup.
	ErrAmbiguousStrategy = errors.New("resilience: more than one decoration strategy")

	// ErrInvalidConfiguration is returned for unusable configuration values.
	ErrInvalidConfiguration = errors.New("resilience: invalid configuration")

	// ErrUnexpectedResult is returned when a typed call yields a value of
	// another type.
	ErrUnexpectedResult = errors.New("resilience: unexpected result type")
)

// Error is the single error family returned by decorated calls. It carries
// the identifier of the configuration the call ran under; the cause stays
// reachable through errors.Is and errors.As.
type Error struct {
	Identifier string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resilience: %s: %v", e.Identifier, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapError wraps err for identifier unless it is already an *Error.
func wrapError(identifier string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Identifier: identifier, Err: err}
}
