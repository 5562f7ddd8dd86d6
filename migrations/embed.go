package migrations

import "embed"

// FS holds the schema migrations, one directory per SQL dialect.
//
//go:embed postgres/*.sql sqlite3/*.sql
var FS embed.FS
