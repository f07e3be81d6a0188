// Package logging provides structured logging for BenchDash.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across pollers, sessions and the fleet.
//
// # Features
//
//   - JSON output for unattended runs (machine-parsable)
//   - Text output at the bench (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Optional rotating log file alongside the console
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//	  file:
//	    path: "/var/log/benchdash.log"
//	    max_size: 50     # megabytes
//	    max_backups: 3
//	    max_age: 28      # days
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	defer logger.Close()
//	logger.Info("poller started", "address", "COM7")
package logging
