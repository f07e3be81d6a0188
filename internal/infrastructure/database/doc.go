// Package database provides SQLite connectivity for the BenchDash device inventory.
//
// This package manages:
//   - Database connection with WAL mode so the CLI can read while the service writes
//   - Schema migrations embedded in the binary (see the top-level migrations package)
//   - Connection lifecycle and health checks
//
// The inventory is an operator convenience: BenchDash keeps running if the
// database is disabled, and nothing in the sampling or display path waits on it.
//
// Usage:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.sql and applied
// oldest first, each in its own transaction. There are no down migrations.
package database
