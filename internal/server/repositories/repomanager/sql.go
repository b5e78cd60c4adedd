// Package repomanager provides a concrete RepositoryManager for the SQL
// upload-state backends, wiring together repository constructors and
// database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/chunkstore/internal/dbx"
	"github.com/dmitrijs2005/chunkstore/internal/server/migrations"
	"github.com/dmitrijs2005/chunkstore/internal/server/repositories/uploads"
	"github.com/pressly/goose/v3"
)

// SQLRepositoryManager vends SQL-backed repositories for one goose dialect
// (dbx.DialectPostgres or dbx.DialectSQLite).
type SQLRepositoryManager struct {
	dialect string
}

// Uploads returns an uploads.Repository bound to the provided DBTX. On
// PostgreSQL, Track locks the row it reads.
func (m *SQLRepositoryManager) Uploads(db dbx.DBTX) uploads.Repository {
	if m.dialect == dbx.DialectPostgres {
		return uploads.NewSQLRepository(db, uploads.WithRowLocks())
	}
	return uploads.NewSQLRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *SQLRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(m.dialect); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewSQLRepositoryManager constructs a RepositoryManager for the dialect
// returned by dbx.Open.
func NewSQLRepositoryManager(dialect string) RepositoryManager {
	return &SQLRepositoryManager{dialect: dialect}
}
