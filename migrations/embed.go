// Package migrations embeds the inventory schema into the binary.
//
// Files are named YYYYMMDD_HHMMSS_description.sql and are applied in
// version order by database.DB.Migrate. Migrations only move forward: a
// schema change that needs undoing ships as a new file.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS
