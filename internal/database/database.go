package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
)

// sqliteFoldDriver is go-sqlite3 with LOWER replaced by a Unicode aware
// version. The builtin only folds ASCII, which would make searches for
// "über" miss "ÜBER" while postgres matches them.
const sqliteFoldDriver = "sqlite3_fold"

func init() {
	sql.Register(sqliteFoldDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", strings.ToLower, true)
		},
	})
}

// ValidDriver reports whether driver is one of the supported driver names.
func ValidDriver(driver string) bool {
	switch driver {
	case DriverPostgres, DriverPgx, DriverSQLite:
		return true
	}
	return false
}

// NewDB opens and pings a database handle for the given driver.
func NewDB(driver, databaseURL string) (*sql.DB, error) {
	if !ValidDriver(driver) {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDriver := driver
	if driver == DriverSQLite {
		sqlDriver = sqliteFoldDriver
	}
	db, err := sql.Open(sqlDriver, dataSourceName(driver, databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Retry connecting; postgres may still be starting in Docker
	var pingErr error
	for attempt := 1; attempt <= 5; attempt++ {
		pingErr = db.Ping()
		if pingErr == nil {
			break
		}
		slog.Warn("database not ready, retrying", "driver", driver, "attempt", attempt, "error", pingErr)
		time.Sleep(2 * time.Second)
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database after 5 attempts: %w", pingErr)
	}

	if driver == DriverSQLite {
		// A single connection serialises writers and keeps the
		// ingest/cleanup transactions from failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		return db, nil
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	return db, nil
}

// dataSourceName accepts the sqlite3:// form used for migrations as well as a
// plain sqlite path.
func dataSourceName(driver, databaseURL string) string {
	if driver == DriverSQLite {
		return strings.TrimPrefix(databaseURL, "sqlite3://")
	}
	return databaseURL
}
