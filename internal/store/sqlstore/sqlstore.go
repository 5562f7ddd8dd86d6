package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/znz-systems/sesdash/internal/database"
	"github.com/znz-systems/sesdash/internal/pkg/query"
)

// Dialect selects placeholder syntax for the underlying driver.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case database.DriverPostgres, database.DriverPgx:
		return Postgres, nil
	case database.DriverSQLite:
		return SQLite, nil
	default:
		return 0, fmt.Errorf("no SQL dialect for driver %q", driver)
	}
}

func (d Dialect) placeholder() query.Placeholder {
	if d == SQLite {
		return query.Question
	}
	return query.Dollar
}

// domainExpr extracts the lower-cased part of recipient after the first "@".
func (d Dialect) domainExpr() string {
	if d == SQLite {
		return "LOWER(SUBSTR(recipient, INSTR(recipient, '@') + 1))"
	}
	return "LOWER(SUBSTRING(recipient FROM POSITION('@' IN recipient) + 1))"
}

// jsonField reads a top-level string field of a JSON column.
func (d Dialect) jsonField(column, field string) string {
	if d == SQLite {
		return "json_extract(" + column + ", '$." + field + "')"
	}
	return column + "->>'" + field + "'"
}

// Store implements store.EventStore, store.AnalyticsStore and
// store.RetentionStore on database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	ph      query.Placeholder
}

// New creates a Store over db using the given dialect.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, ph: dialect.placeholder()}
}

func (s *Store) rebind(q string) string {
	return query.Rebind(q, s.ph)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
