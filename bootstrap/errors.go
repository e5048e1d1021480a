package bootstrap

import "errors"

var (
	// ErrUnknownProvider is returned for a cache provider name Build cannot
	// construct.
	ErrUnknownProvider = errors.New("bootstrap: unknown cache provider")

	// ErrShutdown is returned by operations on a runtime that was shut down.
	ErrShutdown = errors.New("bootstrap: runtime shut down")
)
