package barrier

import "errors"

// ErrBroken is returned by Wait when the barrier timed out or was broken
// explicitly before all parties arrived.
var ErrBroken = errors.New("barrier: broken before all parties arrived")
