// Package inventory persists the sensor boards BenchDash has seen.
//
// Discovery records each probed board (address, UID, firmware) and every
// first attach of a display session bumps the board's attach count. The
// table answers "which boards were on this bench, and when" after the
// process has exited; nothing at runtime reads it back.
package inventory
