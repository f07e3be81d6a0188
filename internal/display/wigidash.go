package display

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"sync"
	"time"
)

// WigiDash vendor requests (class/interface control transfers).
const (
	cmdPing             = 0x00
	cmdTimeoutClear     = 0x12
	cmdChangePage       = 0x20
	cmdGetTouch         = 0x33
	cmdUI               = 0x70
	cmdWidgetWrite      = 0x61
	cmdWidgetWriteClear = 0x63
	cmdScreenClear      = 0x90
	cmdWidgetAdd        = 0x91

	// bulkEndpoint receives framebuffer data.
	bulkEndpoint = 1

	widgetConfigSize = 20
	touchReportSize  = 8
	pingReplySize    = 3

	widgetSettle = 100 * time.Millisecond
)

// usbPort is the subset of a USB device the WigiDash protocol needs.
type usbPort interface {
	ControlIn(request uint8, value uint16, length int) ([]byte, error)
	ControlOut(request uint8, value uint16, data []byte) error
	BulkWrite(data []byte) (int, error)
	Close() error
}

// portOpener opens the USB device behind a WigiDash handle.
type portOpener func(ctx context.Context) (usbPort, error)

// WigiDash drives one WigiDash panel as a single full-screen widget.
//
// Thread Safety:
//   - Transfers are serialized, so the render loop and keep-alive timer may
//     share a handle.
type WigiDash struct {
	serial string
	open   portOpener
	width  int
	height int

	mu   sync.Mutex
	port usbPort
}

func newWigiDash(serial string, open portOpener) *WigiDash {
	return &WigiDash{serial: serial, open: open, width: ScreenWidth, height: ScreenHeight}
}

// Serial implements Handle.
func (w *WigiDash) Serial() string {
	return w.serial
}

// Connect implements Handle. It verifies the panel runs application
// firmware, clears page 0 and installs a full-screen widget.
func (w *WigiDash) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.port != nil {
		return nil
	}

	port, err := w.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrTransport, w.serial, err)
	}

	if err := initPanel(port, w.width, w.height); err != nil {
		port.Close()
		return fmt.Errorf("%w: init %s: %w", ErrTransport, w.serial, err)
	}
	w.port = port
	return nil
}

func initPanel(port usbPort, width, height int) error {
	reply, err := port.ControlIn(cmdPing, 0, pingReplySize)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if len(reply) >= 2 && reply[0] == 'B' && reply[1] == 'L' {
		return fmt.Errorf("panel is in bootloader mode")
	}
	if err := port.ControlOut(cmdScreenClear, 0, nil); err != nil {
		return fmt.Errorf("clear page: %w", err)
	}
	if err := port.ControlOut(cmdUI, cmdChangePage, nil); err != nil {
		return fmt.Errorf("change page: %w", err)
	}
	if err := port.ControlOut(cmdWidgetAdd, 0, widgetConfig(width, height)); err != nil {
		return fmt.Errorf("add widget: %w", err)
	}
	time.Sleep(widgetSettle)
	return nil
}

// widgetConfig packs a full-screen widget descriptor (4-byte aligned).
//
//	0  X int16       2  Y int16       4  Width int16   6  Height int16
//	8  BaseClr u16   12 DrawAddr u32  16 DrawLock u8   17 Invalidate u8
//	18 UpdateFromCache u8
func widgetConfig(width, height int) []byte {
	buf := make([]byte, widgetConfigSize)
	binary.LittleEndian.PutUint16(buf[4:], uint16(width))
	binary.LittleEndian.PutUint16(buf[6:], uint16(height))
	return buf
}

// PollTouch implements Handle. Any non-zero report type is a press.
func (w *WigiDash) PollTouch() (TouchEvent, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.port == nil {
		return TouchEvent{}, false, ErrDisconnected
	}

	data, err := w.port.ControlIn(cmdGetTouch, 0, touchReportSize)
	if err != nil {
		return TouchEvent{}, false, fmt.Errorf("%w: touch: %w", ErrTransport, err)
	}
	return parseTouch(data)
}

func parseTouch(data []byte) (TouchEvent, bool, error) {
	if len(data) < touchReportSize || data[0] == 0 {
		return TouchEvent{}, false, nil
	}
	return TouchEvent{
		Type: TouchPress,
		X:    int(int16(binary.LittleEndian.Uint16(data[2:4]))),
		Y:    int(int16(binary.LittleEndian.Uint16(data[4:6]))),
	}, true, nil
}

// WriteFrame implements Handle. The frame is converted to RGB565 and sent
// to the widget's framebuffer over the bulk endpoint.
func (w *WigiDash) WriteFrame(frame image.Image) error {
	pixels := RGB565(frame, w.width, w.height)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.port == nil {
		return ErrDisconnected
	}

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:], 0)
	binary.LittleEndian.PutUint32(header[4:], uint32(len(pixels)))
	if err := w.port.ControlOut(cmdWidgetWrite, 0, header); err != nil {
		return fmt.Errorf("%w: widget write: %w", ErrTransport, err)
	}

	n, err := w.port.BulkWrite(pixels)
	if err == nil && n != len(pixels) {
		err = fmt.Errorf("short write %d/%d bytes", n, len(pixels))
	}
	if err != nil {
		if cerr := w.port.ControlOut(cmdWidgetWriteClear, 0, nil); cerr != nil {
			err = fmt.Errorf("%w (clear: %v)", err, cerr)
		}
		return fmt.Errorf("%w: frame: %w", ErrTransport, err)
	}
	return nil
}

// KeepAlive implements Handle by clearing the panel's screen timeout.
func (w *WigiDash) KeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.port == nil {
		return ErrDisconnected
	}
	if err := w.port.ControlOut(cmdTimeoutClear, 0, nil); err != nil {
		return fmt.Errorf("%w: keep-alive: %w", ErrTransport, err)
	}
	return nil
}

// Disconnect implements Handle.
func (w *WigiDash) Disconnect() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.port == nil {
		return ErrDisconnected
	}
	err := w.port.Close()
	w.port = nil
	if err != nil {
		return fmt.Errorf("%w: close: %w", ErrTransport, err)
	}
	return nil
}

// RGB565 converts img to little-endian RGB565 pixels of width x height.
// Pixels outside img are black.
func RGB565(img image.Image, width, height int) []byte {
	out := make([]byte, width*height*2)
	b := img.Bounds()

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < height && y < b.Dy(); y++ {
			row := rgba.Pix[y*rgba.Stride:]
			for x := 0; x < width && x < b.Dx(); x++ {
				p := row[x*4:]
				putRGB565(out[(y*width+x)*2:], p[0], p[1], p[2])
			}
		}
		return out
	}

	for y := 0; y < height && y < b.Dy(); y++ {
		for x := 0; x < width && x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			putRGB565(out[(y*width+x)*2:], uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return out
}

func putRGB565(dst []byte, r, g, b uint8) {
	v := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
	binary.LittleEndian.PutUint16(dst, v)
}
