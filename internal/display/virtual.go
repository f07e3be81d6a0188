package display

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// touchQueueSize bounds pending injected touches per display.
const touchQueueSize = 16

// VirtualConfig configures simulated displays.
type VirtualConfig struct {
	// FrameDir, if set, receives <serial>.png snapshots of the latest frame.
	FrameDir string

	// DumpInterval limits how often a display's PNG is rewritten.
	DumpInterval time.Duration
}

// VirtualTransport is an in-memory Transport.
type VirtualTransport struct {
	mu       sync.Mutex
	displays []*VirtualDisplay
}

// NewVirtualTransport creates count displays named VDISP0..VDISPn-1.
func NewVirtualTransport(count int, cfg VirtualConfig) *VirtualTransport {
	t := &VirtualTransport{}
	for i := 0; i < count; i++ {
		t.Add(NewVirtualDisplay(fmt.Sprintf("VDISP%d", i), cfg))
	}
	return t
}

// Add plugs in another display.
func (t *VirtualTransport) Add(d *VirtualDisplay) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.displays = append(t.displays, d)
}

// Discover implements Transport. Virtual displays match any IDs.
func (t *VirtualTransport) Discover(_ context.Context, _, _ uint16) ([]Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	handles := make([]Handle, 0, len(t.displays))
	for _, d := range t.displays {
		handles = append(handles, d)
	}
	return handles, nil
}

// VirtualDisplay is a simulated display panel.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type VirtualDisplay struct {
	serial string
	cfg    VirtualConfig

	touches chan TouchEvent

	mu          sync.Mutex
	connected   bool
	failConnect bool
	failWrites  bool
	frames      int
	keepAlives  int
	disconnects int
	last        image.Image
	lastDump    time.Time
}

// NewVirtualDisplay creates a disconnected virtual display.
func NewVirtualDisplay(serial string, cfg VirtualConfig) *VirtualDisplay {
	if cfg.DumpInterval <= 0 {
		cfg.DumpInterval = time.Second
	}
	return &VirtualDisplay{
		serial:  serial,
		cfg:     cfg,
		touches: make(chan TouchEvent, touchQueueSize),
	}
}

// Serial implements Handle.
func (d *VirtualDisplay) Serial() string {
	return d.serial
}

// Connect implements Handle.
func (d *VirtualDisplay) Connect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failConnect {
		return fmt.Errorf("%w: %s: device not responding", ErrTransport, d.serial)
	}
	d.connected = true
	return nil
}

// PollTouch implements Handle.
func (d *VirtualDisplay) PollTouch() (TouchEvent, bool, error) {
	if !d.IsConnected() {
		return TouchEvent{}, false, ErrDisconnected
	}
	select {
	case ev := <-d.touches:
		return ev, true, nil
	default:
		return TouchEvent{}, false, nil
	}
}

// WriteFrame implements Handle.
func (d *VirtualDisplay) WriteFrame(frame image.Image) error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return ErrDisconnected
	}
	if d.failWrites {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s: bulk transfer failed", ErrTransport, d.serial)
	}
	d.frames++
	d.last = frame
	dump := d.cfg.FrameDir != "" && time.Since(d.lastDump) >= d.cfg.DumpInterval
	if dump {
		d.lastDump = time.Now()
	}
	d.mu.Unlock()

	if dump {
		return d.dump(frame)
	}
	return nil
}

// dump writes frame atomically to FrameDir/<serial>.png.
func (d *VirtualDisplay) dump(frame image.Image) error {
	path := filepath.Join(d.cfg.FrameDir, d.serial+".png")
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: creating frame file: %w", ErrTransport, err)
	}
	if err := png.Encode(f, frame); err != nil {
		f.Close()
		return fmt.Errorf("%w: encoding frame: %w", ErrTransport, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing frame file: %w", ErrTransport, err)
	}
	return os.Rename(tmp, path)
}

// KeepAlive implements Handle.
func (d *VirtualDisplay) KeepAlive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrDisconnected
	}
	d.keepAlives++
	return nil
}

// Disconnect implements Handle.
func (d *VirtualDisplay) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrDisconnected
	}
	d.connected = false
	d.disconnects++
	return nil
}

// Touch queues a touch event for the next PollTouch. Events beyond the queue
// size are dropped and Touch returns false.
func (d *VirtualDisplay) Touch(x, y int) bool {
	select {
	case d.touches <- TouchEvent{Type: TouchPress, X: x, Y: y}:
		return true
	default:
		return false
	}
}

// SetFailConnect makes subsequent Connect calls fail.
func (d *VirtualDisplay) SetFailConnect(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failConnect = fail
}

// SetFailWrites makes subsequent WriteFrame calls fail.
func (d *VirtualDisplay) SetFailWrites(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrites = fail
}

// IsConnected reports the connection state.
func (d *VirtualDisplay) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Frames returns the number of frames written.
func (d *VirtualDisplay) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// KeepAlives returns the number of keep-alive calls.
func (d *VirtualDisplay) KeepAlives() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keepAlives
}

// Disconnects returns how many times the display was disconnected.
func (d *VirtualDisplay) Disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnects
}

// LastFrame returns the most recently written frame.
func (d *VirtualDisplay) LastFrame() image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
