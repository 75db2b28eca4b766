package store

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	moderncsqlite "modernc.org/sqlite"
)

// ErrForeignKey marks writes rejected because a referenced row is missing.
var ErrForeignKey = errors.New("foreign key violation")

const (
	sqliteConstraintForeignKey = 787 // SQLITE_CONSTRAINT_FOREIGNKEY
	pgForeignKeyViolation      = "23503"
)

// IsForeignKeyViolation reports whether err is a referential-integrity
// failure from any of the supported drivers.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrForeignKey) {
		return true
	}

	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		return mattnErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}

	var moderncErr *moderncsqlite.Error
	if errors.As(err, &moderncErr) {
		return moderncErr.Code() == sqliteConstraintForeignKey
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}

	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
