package display

import (
	"context"
	"image"
)

// WigiDash USB identifiers and panel geometry.
const (
	DefaultVendorID  uint16 = 0x28DA
	DefaultProductID uint16 = 0xEF01

	ScreenWidth  = 1016
	ScreenHeight = 592
)

// TouchType classifies a touch report.
type TouchType uint8

// Touch report types. TouchNone is reported by idle panels.
const (
	TouchNone TouchType = iota
	TouchPress
	TouchRelease
)

// TouchEvent is one touch report in screen coordinates.
type TouchEvent struct {
	Type TouchType
	X    int
	Y    int
}

// Handle is one physical (or virtual) display.
type Handle interface {
	// Serial returns a stable identifier for the display.
	Serial() string

	// Connect initialises the display for full-screen frame writes.
	Connect(ctx context.Context) error

	// PollTouch returns the pending touch event, if any. It never blocks.
	PollTouch() (TouchEvent, bool, error)

	// WriteFrame pushes a full-screen frame.
	WriteFrame(frame image.Image) error

	// KeepAlive resets the panel's idle timer.
	KeepAlive() error

	// Disconnect releases the display.
	Disconnect() error
}

// Transport discovers displays by USB vendor and product ID.
type Transport interface {
	Discover(ctx context.Context, vendorID, productID uint16) ([]Handle, error)
}
