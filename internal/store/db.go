// Package store owns the relational database: opening it under one of the
// supported drivers, creating the schema, and the read-only queries the
// feature builder and MCP tools use.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour used for DDL and placeholders.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Supported database/sql driver names.
const (
	DriverSQLite3 = "sqlite3" // mattn/go-sqlite3 (cgo)
	DriverSQLite  = "sqlite"  // modernc.org/sqlite (pure Go)
	DriverPgx     = "pgx"     // jackc/pgx stdlib
)

// Options describes which database to open.
type Options struct {
	Driver string // sqlite3 (default), sqlite, pgx
	Path   string // database file for the sqlite drivers
	URL    string // connection string for pgx
}

// Querier is satisfied by both *DB and *Tx so write helpers can run inside or
// outside a transaction. Queries are written with '?' placeholders.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Dialect() Dialect
}

// DB wraps the database handle for the culture-media store
type DB struct {
	db      *sql.DB
	driver  string
	dialect Dialect
	path    string
}

// Open opens or creates the database and applies the schema.
func Open(ctx context.Context, opts Options) (*DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite3
	}

	var dsn string
	dialect := SQLite
	switch driver {
	case DriverSQLite3, DriverSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("database path required for driver %s", driver)
		}
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = sqliteDSN(driver, opts.Path)
	case DriverPgx:
		if opts.URL == "" {
			return nil, fmt.Errorf("database URL required for driver pgx")
		}
		dsn = opts.URL
		dialect = Postgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		// Single writer. Foreign keys are a per-connection pragma, so pinning
		// the pool to one connection keeps enforcement consistent.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{db: sqlDB, driver: driver, dialect: dialect, path: opts.Path}

	if dialect == SQLite {
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := d.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return d, nil
}

func sqliteDSN(driver, path string) string {
	if driver == DriverSQLite {
		return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Driver returns the database/sql driver name in use.
func (d *DB) Driver() string { return d.driver }

// Dialect returns the SQL dialect of the open database.
func (d *DB) Dialect() Dialect { return d.dialect }

// Path returns the database file for the sqlite drivers.
func (d *DB) Path() string { return d.path }

func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, Rebind(d.dialect, query), args...)
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, Rebind(d.dialect, query), args...)
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, Rebind(d.dialect, query), args...)
}

// Tx is a transaction with the same placeholder handling as DB.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, Rebind(t.dialect, query), args...)
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, Rebind(t.dialect, query), args...)
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, Rebind(t.dialect, query), args...)
}

func (t *Tx) Dialect() Dialect { return t.dialect }

// InTx runs fn inside a transaction. The transaction commits only if fn
// returns nil; any error rolls back every write fn made.
func (d *DB) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: sqlTx, dialect: d.dialect}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rebind rewrites '?' placeholders to '$n' for Postgres. Question marks
// inside single-quoted literals are left alone.
func Rebind(dialect Dialect, query string) string {
	if dialect != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Now returns the timestamp format stored in text timestamp columns.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
