package config

import "errors"

// Sentinel errors for configuration loading.
var (
	// ErrInvalidConfig is returned when a loaded value is unusable. The
	// message names the offending key.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrFileNotFound is returned when a configured file does not exist.
	ErrFileNotFound = errors.New("config: file not found")

	// ErrUnsupportedFormat is returned for a file extension with no parser.
	ErrUnsupportedFormat = errors.New("config: unsupported file format")

	// ErrNothingToWatch is returned by Watch when the loader has no files.
	ErrNothingToWatch = errors.New("config: no files to watch")
)
