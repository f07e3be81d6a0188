package sensor

import (
	"context"
	"fmt"
)

// BENCHLAB protocol constants.
const (
	// VendorID is the vendor byte reported in BENCHLAB vendor data.
	VendorID = 0xEE

	// ProductID is the product byte reported in BENCHLAB vendor data.
	ProductID = 0x10

	// USBVendorID and USBProductID identify the board's USB CDC interface.
	USBVendorID  = "0483"
	USBProductID = "5740"

	// DefaultBaudRate is the UART speed of the board.
	DefaultBaudRate = 115200
)

// Command is a single-byte UART request.
type Command byte

// Commands understood by the board. Only the read commands are used here.
const (
	CmdWelcome     Command = 0
	CmdReadSensors Command = 1
	CmdReadName    Command = 3
	CmdReadUID     Command = 13
	CmdReadVendor  Command = 14
)

// Response sizes for the read commands.
const (
	vendorDataSize = 3
	uidSize        = 12
)

// Identity is the decoded identity of a sensor board, read once per link.
type Identity struct {
	VendorID  uint8  `json:"vendor_id"`
	ProductID uint8  `json:"product_id"`
	Firmware  uint8  `json:"firmware"`
	UID       string `json:"uid"`
}

// String returns a short human-readable form.
func (i Identity) String() string {
	if i.UID == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s (fw %d)", i.UID, i.Firmware)
}

// RawBlock is one undecoded SensorStruct as read from the wire.
type RawBlock []byte

// Link is an open connection to one sensor board.
//
// A Link has exactly one owner. Implementations need not be safe for
// concurrent use.
type Link interface {
	// ReadIdentity reads vendor data and UID from the board.
	ReadIdentity(ctx context.Context) (Identity, error)

	// ReadBlock reads one raw sensor block.
	ReadBlock(ctx context.Context) (RawBlock, error)

	// Close releases the underlying handle. Calling Close twice is an error
	// for some implementations; owners must close exactly once.
	Close() error
}

// Opener opens links by device address (a serial port name for real boards).
type Opener interface {
	Open(ctx context.Context, address string) (Link, error)
}

// Scanner lists the addresses of reachable sensor boards without opening them.
type Scanner interface {
	Scan(ctx context.Context) ([]string, error)
}

// Decoder translates a raw block into named metric values.
//
// Implementations must be pure and must not block.
type Decoder interface {
	Decode(raw RawBlock) (map[string]any, error)
}
