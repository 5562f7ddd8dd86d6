package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// RunMigrations applies every pending up migration for the driver's dialect.
// fsys must contain a "postgres" and a "sqlite3" directory of migration files.
func RunMigrations(fsys fs.FS, driver, databaseURL string) error {
	dir, migrateURL, err := migrationTarget(driver, databaseURL)
	if err != nil {
		return err
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Warn("failed to close migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	slog.Info("database schema up to date", "driver", driver, "version", version, "dirty", dirty)
	return nil
}

// migrationTarget maps a database/sql driver and DSN to the migration
// directory and the URL golang-migrate expects. Both postgres drivers share the
// lib/pq based migrate driver.
func migrationTarget(driver, databaseURL string) (string, string, error) {
	switch driver {
	case DriverPostgres, DriverPgx:
		return "postgres", databaseURL, nil
	case DriverSQLite:
		dsn := strings.TrimPrefix(databaseURL, "sqlite3://")
		dsn = strings.TrimPrefix(dsn, "file:")
		if dsn == "" {
			return "", "", errors.New("sqlite database path is required")
		}
		return "sqlite3", "sqlite3://" + dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
