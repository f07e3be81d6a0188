package sensor

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Serial link constants.
const (
	// defaultReadTimeout bounds a single response read.
	defaultReadTimeout = time.Second

	// uidRetries and uidRetryDelay mirror the board's slow UID response after
	// power-up.
	uidRetries    = 3
	uidRetryDelay = 200 * time.Millisecond
)

// SerialConfig configures UART links.
type SerialConfig struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// SerialOpener opens BENCHLAB boards over a serial port.
type SerialOpener struct {
	cfg SerialConfig
}

// NewSerialOpener creates an opener, applying defaults for zero values.
func NewSerialOpener(cfg SerialConfig) *SerialOpener {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	return &SerialOpener{cfg: cfg}
}

// Open implements Opener.
func (o *SerialOpener) Open(_ context.Context, address string) (Link, error) {
	port, err := serial.Open(address, &serial.Mode{BaudRate: o.cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, address, err)
	}
	return &serialLink{address: address, port: port, timeout: o.cfg.ReadTimeout}, nil
}

// serialLink is a Link over one open serial port.
type serialLink struct {
	address string
	port    serial.Port
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// request writes a command and reads exactly size bytes of response.
func (l *serialLink) request(ctx context.Context, cmd Command, size int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}

	if err := l.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("resetting input buffer: %w", err)
	}
	if _, err := l.port.Write([]byte{byte(cmd)}); err != nil {
		return nil, fmt.Errorf("writing command %d: %w", cmd, err)
	}

	deadline := time.Now().Add(l.timeout)
	buf := make([]byte, size)
	n := 0
	for n < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := l.port.SetReadTimeout(remaining); err != nil {
			return nil, fmt.Errorf("setting read timeout: %w", err)
		}
		m, err := l.port.Read(buf[n:])
		if err != nil {
			return nil, err
		}
		if m == 0 {
			// Read timed out.
			break
		}
		n += m
	}
	if n != size {
		return nil, fmt.Errorf("incomplete response to command %d: got %d of %d bytes", cmd, n, size)
	}
	return buf, nil
}

// ReadIdentity implements Link.
func (l *serialLink) ReadIdentity(ctx context.Context) (Identity, error) {
	vendor, err := l.request(ctx, CmdReadVendor, vendorDataSize)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: vendor data: %w", ErrIdentity, err)
	}
	id := Identity{
		VendorID:  vendor[0],
		ProductID: vendor[1],
		Firmware:  vendor[2],
	}

	var lastErr error
	for attempt := 1; attempt <= uidRetries; attempt++ {
		uid, err := l.request(ctx, CmdReadUID, uidSize)
		if err == nil {
			id.UID = strings.ToUpper(hex.EncodeToString(uid))
			return id, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return id, ctx.Err()
		case <-time.After(uidRetryDelay):
		}
	}
	return id, fmt.Errorf("%w: uid after %d attempts: %w", ErrIdentity, uidRetries, lastErr)
}

// ReadBlock implements Link.
func (l *serialLink) ReadBlock(ctx context.Context) (RawBlock, error) {
	buf, err := l.request(ctx, CmdReadSensors, BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, l.address, err)
	}
	return RawBlock(buf), nil
}

// Close implements Link.
func (l *serialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.closed = true
	return l.port.Close()
}

// SerialScanner finds BENCHLAB boards by USB VID:PID.
type SerialScanner struct{}

// Scan implements Scanner.
func (SerialScanner) Scan(_ context.Context) ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}

	var addrs []string
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.EqualFold(p.VID, USBVendorID) && strings.EqualFold(p.PID, USBProductID) {
			addrs = append(addrs, p.Name)
		}
	}
	return addrs, nil
}
