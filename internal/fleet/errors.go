package fleet

import "errors"

var (
	// ErrShutdownInProgress is returned by Attach once shutdown has begun.
	ErrShutdownInProgress = errors.New("fleet: shutdown in progress")

	// ErrDiscovery wraps scanner and transport discovery failures.
	ErrDiscovery = errors.New("fleet: discovery failed")
)
