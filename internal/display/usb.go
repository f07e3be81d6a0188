package display

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

const controlTimeout = 2 * time.Second

// USBTransport discovers WigiDash panels through libusb.
//
// Discovery only reads serial numbers; each Handle reopens its device on
// Connect, so rediscovery never holds devices that are already in use.
type USBTransport struct {
	ctx *gousb.Context
}

// NewUSBTransport creates a libusb-backed transport. Call Close when done.
func NewUSBTransport() *USBTransport {
	return &USBTransport{ctx: gousb.NewContext()}
}

// Close releases the libusb context.
func (t *USBTransport) Close() error {
	return t.ctx.Close()
}

// Discover implements Transport.
func (t *USBTransport) Discover(_ context.Context, vendorID, productID uint16) ([]Handle, error) {
	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vendorID) && desc.Product == gousb.ID(productID)
	})
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("%w: enumerate: %w", ErrTransport, err)
	}

	handles := make([]Handle, 0, len(devs))
	for _, d := range devs {
		bus, addr := d.Desc.Bus, d.Desc.Address
		serial, serr := d.SerialNumber()
		if serr != nil || serial == "" {
			serial = fmt.Sprintf("usb-%d-%d", bus, addr)
		}
		d.Close()

		handles = append(handles, newWigiDash(serial, func(context.Context) (usbPort, error) {
			return t.open(vendorID, productID, bus, addr)
		}))
	}
	return handles, nil
}

// open reopens the device at bus/addr and claims its bulk endpoint.
func (t *USBTransport) open(vendorID, productID uint16, bus, addr int) (usbPort, error) {
	devs, err := t.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vendorID) && desc.Product == gousb.ID(productID) &&
			desc.Bus == bus && desc.Address == addr
	})
	if len(devs) == 0 {
		if err == nil {
			err = fmt.Errorf("device %d-%d not found", bus, addr)
		}
		return nil, err
	}
	for _, extra := range devs[1:] {
		extra.Close()
	}
	dev := devs[0]
	dev.ControlTimeout = controlTimeout

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("auto detach: %w", err)
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("claim interface: %w", err)
	}
	ep, err := intf.OutEndpoint(bulkEndpoint)
	if err != nil {
		done()
		dev.Close()
		return nil, fmt.Errorf("bulk endpoint: %w", err)
	}
	return &usbDevice{dev: dev, release: done, out: ep}, nil
}

// usbDevice adapts a gousb device to usbPort.
type usbDevice struct {
	dev     *gousb.Device
	release func()
	out     *gousb.OutEndpoint
}

const (
	requestIn  = gousb.ControlIn | gousb.ControlClass | gousb.ControlInterface
	requestOut = gousb.ControlOut | gousb.ControlClass | gousb.ControlInterface
)

func (u *usbDevice) ControlIn(request uint8, value uint16, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := u.dev.Control(requestIn, request, value, 0, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (u *usbDevice) ControlOut(request uint8, value uint16, data []byte) error {
	_, err := u.dev.Control(requestOut, request, value, 0, data)
	return err
}

func (u *usbDevice) BulkWrite(data []byte) (int, error) {
	return u.out.Write(data)
}

func (u *usbDevice) Close() error {
	u.release()
	return u.dev.Close()
}
