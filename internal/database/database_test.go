package database

import (
	"path/filepath"
	"testing"

	"github.com/znz-systems/sesdash/migrations"
)

func TestMigrationTarget(t *testing.T) {
	tests := []struct {
		driver  string
		url     string
		wantDir string
		wantURL string
		wantErr bool
	}{
		{driver: DriverPostgres, url: "postgres://u:p@db/sesdash", wantDir: "postgres", wantURL: "postgres://u:p@db/sesdash"},
		{driver: DriverPgx, url: "postgres://u:p@db/sesdash", wantDir: "postgres", wantURL: "postgres://u:p@db/sesdash"},
		{driver: DriverSQLite, url: "/var/lib/sesdash.db", wantDir: "sqlite3", wantURL: "sqlite3:///var/lib/sesdash.db"},
		{driver: DriverSQLite, url: "sqlite3://data.db", wantDir: "sqlite3", wantURL: "sqlite3://data.db"},
		{driver: DriverSQLite, url: "file:data.db", wantDir: "sqlite3", wantURL: "sqlite3://data.db"},
		{driver: DriverSQLite, url: "", wantErr: true},
		{driver: "mysql", url: "x", wantErr: true},
	}

	for _, tt := range tests {
		dir, url, err := migrationTarget(tt.driver, tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s %q: expected error", tt.driver, tt.url)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s %q: unexpected error: %v", tt.driver, tt.url, err)
		}
		if dir != tt.wantDir || url != tt.wantURL {
			t.Errorf("%s %q: got (%q, %q), want (%q, %q)", tt.driver, tt.url, dir, url, tt.wantDir, tt.wantURL)
		}
	}
}

func TestRunMigrations_SQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sesdash.db")

	if err := RunMigrations(migrations.FS, DriverSQLite, path); err != nil {
		t.Fatalf("first migration run: %v", err)
	}
	if err := RunMigrations(migrations.FS, DriverSQLite, path); err != nil {
		t.Fatalf("second migration run: %v", err)
	}

	db, err := NewDB(DriverSQLite, path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"email_events", "raw_events"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("query %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("expected empty %s, got %d rows", table, n)
		}
	}
}

func TestNewDB_RejectsUnknownDriver(t *testing.T) {
	if _, err := NewDB("oracle", "x"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
