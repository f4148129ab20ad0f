package store

import "errors"

// Domain-specific errors for the configuration store.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoRecord is returned when the volume holds no configuration record.
	// The controller treats this as the signal to enter provisioning mode.
	ErrNoRecord = errors.New("store: no configuration record")

	// ErrMalformedRecord is returned when the persisted record does not parse
	// into exactly three tokens. Malformed state is never repaired automatically.
	ErrMalformedRecord = errors.New("store: malformed configuration record")

	// ErrInvalidRecord is returned when a record to be written has empty
	// fields or fields that contain whitespace.
	ErrInvalidRecord = errors.New("store: invalid configuration record")

	// ErrMountFailed is returned when the volume cannot be mounted even after
	// one reformat.
	ErrMountFailed = errors.New("store: mount failed")

	// ErrFormatFailed is returned when formatting the volume fails.
	ErrFormatFailed = errors.New("store: format failed")

	// ErrWriteFailed is returned when the record cannot be written and flushed.
	ErrWriteFailed = errors.New("store: write failed")
)
