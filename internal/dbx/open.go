package dbx

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect names as understood by goose.
const (
	DialectPostgres = "pgx"
	DialectSQLite   = "sqlite3"
)

// Open picks a driver from the DSN scheme and opens a pool.
//
//	postgres://... or postgresql://...  → pgx
//	sqlite://path/to/file.db            → modernc sqlite, file path
//	file:...                            → modernc sqlite, passed through
//
// It returns the goose dialect matching the driver.
func Open(dsn string) (*sql.DB, string, error) {
	driver, source, dialect, err := resolve(dsn)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, "", fmt.Errorf("db open error: %w", err)
	}

	if driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY under concurrent uploads
		db.SetMaxOpenConns(1)
	}

	return db, dialect, nil
}

func resolve(dsn string) (driver, source, dialect string, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, DialectPostgres, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), DialectSQLite, nil
	case strings.HasPrefix(dsn, "file:"):
		return "sqlite", dsn, DialectSQLite, nil
	default:
		return "", "", "", fmt.Errorf("unsupported database dsn %q", dsn)
	}
}
