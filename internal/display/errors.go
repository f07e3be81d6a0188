package display

import "errors"

// Domain-specific errors for display transports.
var (
	// ErrTransport is returned when a transport operation fails.
	ErrTransport = errors.New("display: transport error")

	// ErrDisconnected is returned for operations on a handle that is not connected.
	ErrDisconnected = errors.New("display: not connected")
)
