package telemetry

import "errors"

// Domain-specific errors for telemetry operations.
var (
	// ErrLinkOpen is returned when a sensor board cannot be opened.
	// The attaching session stays on the fleet page.
	ErrLinkOpen = errors.New("telemetry: link open failed")

	// ErrPollerStarted is returned when a second poller is started for a context.
	ErrPollerStarted = errors.New("telemetry: poller already started")
)
