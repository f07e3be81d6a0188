// Package sensor defines the contract for talking to BENCHLAB sensor boards
// and supplies the implementations BenchDash ships with.
//
// The package contains:
//   - Link, Opener and Scanner: the wire-level collaborator used by the
//     telemetry poller and fleet discovery
//   - Block and BlockDecoder: the raw SensorStruct layout and its translation
//     into named metrics (SYS_Power, Chip_Temp, Fan1_RPM, ...)
//   - SerialOpener/SerialScanner: the UART implementation over go.bug.st/serial
//   - SimOpener: an in-memory board producing synthetic readings, used for
//     development without hardware and throughout the tests
//
// # Wire Protocol
//
// Each request is a single command byte. The board answers with a fixed-size
// little-endian structure:
//
//	cmd 14 (read vendor data) -> 3 bytes   VendorId, ProductId, FwVersion
//	cmd 13 (read UID)         -> 12 bytes  hex-encoded as the board UID
//	cmd 1  (read sensors)     -> 216 bytes SensorStruct (natural C alignment)
package sensor
