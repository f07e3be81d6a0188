package inventory

import "errors"

// ErrDeviceNotFound is returned when no board is recorded at an address.
var ErrDeviceNotFound = errors.New("inventory: device not found")
