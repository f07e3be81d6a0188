// Package display defines the transport contract for small touch displays
// and two implementations: WigiDash panels over USB and in-memory virtual
// panels.
//
// A Handle is exclusively owned by one display session. The session's render
// loop and its keep-alive timer both use the handle, so implementations must
// be safe for concurrent use.
//
// USBTransport finds WigiDash panels by vendor and product ID through libusb.
// Frames are pushed as RGB565 into one full-screen widget.
//
// VirtualTransport simulates displays in memory. Touch events are injected
// with VirtualDisplay.Touch; frames can be dumped as PNG files for inspection.
package display
