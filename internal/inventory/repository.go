package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/benchdash/internal/sensor"
)

// Device is one row of the devices table.
type Device struct {
	Address      string
	Identity     sensor.Identity
	FirstSeen    time.Time
	LastSeen     time.Time
	LastAttached *time.Time
	AttachCount  int
}

// SQLiteRepository stores devices in SQLite. It satisfies fleet.Inventory.
//
// The devices table is created by the embedded migrations; run
// database.DB.Migrate before use.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordDevice upserts a probed board, refreshing its identity and last_seen.
func (r *SQLiteRepository) RecordDevice(ctx context.Context, address string, id sensor.Identity) error {
	now := r.stamp()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (address, uid, vendor_id, product_id, firmware, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			uid = excluded.uid,
			vendor_id = excluded.vendor_id,
			product_id = excluded.product_id,
			firmware = excluded.firmware,
			last_seen = excluded.last_seen`,
		address, id.UID, int(id.VendorID), int(id.ProductID), int(id.Firmware), now, now,
	)
	if err != nil {
		return fmt.Errorf("recording device %s: %w", address, err)
	}
	return nil
}

// RecordAttach counts a new poller for the board at address.
//
// Boards attached without a prior discovery row get one with an empty identity.
func (r *SQLiteRepository) RecordAttach(ctx context.Context, address string) error {
	now := r.stamp()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (address, first_seen, last_seen, last_attached, attach_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(address) DO UPDATE SET
			last_seen = excluded.last_seen,
			last_attached = excluded.last_attached,
			attach_count = devices.attach_count + 1`,
		address, now, now, now,
	)
	if err != nil {
		return fmt.Errorf("recording attach %s: %w", address, err)
	}
	return nil
}

// Get returns the board recorded at address.
// Returns ErrDeviceNotFound if there is none.
func (r *SQLiteRepository) Get(ctx context.Context, address string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDevices+` WHERE address = ?`, address)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", address, err)
	}
	return d, nil
}

// List returns every recorded board ordered by address.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDevices+` ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

const selectDevices = `
	SELECT address, uid, vendor_id, product_id, firmware,
		first_seen, last_seen, last_attached, attach_count
	FROM devices`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(s rowScanner) (*Device, error) {
	var d Device
	var vendor, product, firmware int
	var firstSeen, lastSeen string
	var lastAttached sql.NullString

	if err := s.Scan(
		&d.Address, &d.Identity.UID, &vendor, &product, &firmware,
		&firstSeen, &lastSeen, &lastAttached, &d.AttachCount,
	); err != nil {
		return nil, err
	}

	d.Identity.VendorID = uint8(vendor)   //nolint:gosec // Written from a uint8
	d.Identity.ProductID = uint8(product) //nolint:gosec // Written from a uint8
	d.Identity.Firmware = uint8(firmware) //nolint:gosec // Written from a uint8
	d.FirstSeen = parseTime(firstSeen)
	d.LastSeen = parseTime(lastSeen)
	if lastAttached.Valid {
		t := parseTime(lastAttached.String)
		d.LastAttached = &t
	}
	return &d, nil
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // Format is written by stamp
	return t
}
