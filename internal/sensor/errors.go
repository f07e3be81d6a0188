package sensor

import "errors"

// Domain-specific errors for sensor operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrOpen is returned when a sensor link cannot be opened.
	ErrOpen = errors.New("sensor: open failed")

	// ErrRead is returned when a sensor block read fails or is incomplete.
	ErrRead = errors.New("sensor: read failed")

	// ErrDecode is returned when a raw block cannot be decoded.
	ErrDecode = errors.New("sensor: decode failed")

	// ErrIdentity is returned when vendor data or UID cannot be read.
	ErrIdentity = errors.New("sensor: identity read failed")

	// ErrClosed is returned for operations on a closed link.
	ErrClosed = errors.New("sensor: link closed")
)
