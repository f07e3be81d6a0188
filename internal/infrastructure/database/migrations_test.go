package database

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/nerrad567/benchdash/migrations"
)

func sqlFile(body string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(body)} }

func TestMigrate_InventorySchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	n, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n == 0 {
		t.Fatal("Migrate() applied nothing on a fresh database")
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO devices (address, uid, first_seen, last_seen) VALUES ('COM7', 'AB', 'x', 'x')`); err != nil {
		t.Fatalf("devices table unusable: %v", err)
	}

	again, err := db.Migrate(ctx, migrations.FS)
	if err != nil || again != 0 {
		t.Errorf("second Migrate() = %d, %v; want 0, nil", again, err)
	}
}

func TestMigrate_AppliesOnlyNewFiles(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260301_090000_boards.sql": sqlFile("CREATE TABLE boards (address TEXT PRIMARY KEY) STRICT;"),
	}
	if n, err := db.Migrate(ctx, fsys); err != nil || n != 1 {
		t.Fatalf("first Migrate() = %d, %v; want 1, nil", n, err)
	}

	fsys["20260402_120000_board_labels.sql"] = sqlFile("ALTER TABLE boards ADD COLUMN label TEXT NOT NULL DEFAULT '';")
	if n, err := db.Migrate(ctx, fsys); err != nil || n != 1 {
		t.Fatalf("second Migrate() = %d, %v; want 1, nil", n, err)
	}

	got, err := db.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations() error = %v", err)
	}
	want := []string{"20260301_090000", "20260402_120000"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AppliedMigrations() = %v, want %v", got, want)
	}
}

func TestMigrate_FailedFileRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"20260301_090000_boards.sql": sqlFile("CREATE TABLE boards (address TEXT PRIMARY KEY) STRICT;"),
		"20260301_100000_broken.sql": sqlFile("CREATE TABLE displays (id TEXT); CREATE TABLE oops ("),
	}
	n, err := db.Migrate(ctx, fsys)
	if err == nil {
		t.Fatal("Migrate() error = nil, want failure from the broken file")
	}
	if !strings.Contains(err.Error(), "20260301_100000_broken") {
		t.Errorf("error %q does not name the failing migration", err)
	}
	if n != 1 {
		t.Errorf("applied = %d, want 1", n)
	}

	var tables int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'displays'").Scan(&tables); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if tables != 0 {
		t.Error("displays table survived a failed migration")
	}

	got, _ := db.AppliedMigrations(ctx)
	if !reflect.DeepEqual(got, []string{"20260301_090000"}) {
		t.Errorf("AppliedMigrations() = %v, want only the first version", got)
	}
}

func TestReadMigrations(t *testing.T) {
	tests := []struct {
		name    string
		fsys    fstest.MapFS
		want    []string
		wantErr string
	}{
		{
			name: "sorted by version",
			fsys: fstest.MapFS{
				"20260402_120000_b.sql": sqlFile("SELECT 2;"),
				"20260301_090000_a.sql": sqlFile("SELECT 1;"),
				"README.md":             sqlFile("ignored"),
			},
			want: []string{"20260301_090000_a", "20260402_120000_b"},
		},
		{
			name: "empty directory",
			fsys: fstest.MapFS{},
			want: []string{},
		},
		{
			name:    "bad name",
			fsys:    fstest.MapFS{"devices.sql": sqlFile("SELECT 1;")},
			wantErr: "want YYYYMMDD_HHMMSS_name.sql",
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"20260301_090000_a.sql": sqlFile("SELECT 1;"),
				"20260301_090000_b.sql": sqlFile("SELECT 2;"),
			},
			wantErr: "share version 20260301_090000",
		},
		{
			name:    "empty file",
			fsys:    fstest.MapFS{"20260301_090000_a.sql": sqlFile("  \n")},
			wantErr: "is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readMigrations(tt.fsys)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("readMigrations() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("readMigrations() error = %v", err)
			}
			names := make([]string, 0, len(got))
			for _, m := range got {
				names = append(names, m.Version+"_"+m.Name)
			}
			if !reflect.DeepEqual(names, tt.want) {
				t.Errorf("readMigrations() = %v, want %v", names, tt.want)
			}
		})
	}
}

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		file        string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20260301_090000_devices.sql", "20260301_090000", "devices", true},
		{"20260301_090000_device_attach_count.sql", "20260301_090000", "device_attach_count", true},
		{"20260301_090000_devices.up.sql", "", "", false},
		{"2026031_090000_devices.sql", "", "", false},
		{"20260301_090000_Devices.sql", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			v, n, ok := parseMigrationName(tt.file)
			if v != tt.wantVersion || n != tt.wantName || ok != tt.wantOK {
				t.Errorf("parseMigrationName(%q) = %q, %q, %v; want %q, %q, %v",
					tt.file, v, n, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}
