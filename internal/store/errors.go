package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Error codes reported by Error.Code.
const (
	CodeForeignKey = "FOREIGN_KEY_VIOLATION"
	CodeUnique     = "UNIQUE_VIOLATION"
	CodeNotNull    = "NOT_NULL_VIOLATION"
	CodeDB         = "DB_ERROR"
)

// Error wraps a driver failure of a store operation.
type Error struct {
	Op   string
	Err  error
	code string
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %s: %v", e.Op, strings.ToLower(e.code), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code classifies the failure, e.g. UNIQUE_VIOLATION.
func (e *Error) Code() string { return e.code }

// IsConstraint reports whether err is a store error caused by a constraint.
func IsConstraint(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.code != CodeDB
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err, code: classify(err)}
}

// classify maps driver specific constraint errors to a code.
func classify(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fromSQLState(string(pqErr.Code))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromSQLState(pgErr.Code)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return fromSQLite(liteErr.Code(), liteErr.Error())
	}
	return CodeDB
}

func fromSQLState(state string) string {
	switch state {
	case "23503":
		return CodeForeignKey
	case "23505":
		return CodeUnique
	case "23502":
		return CodeNotNull
	}
	return CodeDB
}

func fromSQLite(code int, msg string) string {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return CodeForeignKey
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return CodeUnique
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return CodeNotNull
	}
	if code&0xff != sqlite3.SQLITE_CONSTRAINT {
		return CodeDB
	}
	switch {
	case strings.Contains(msg, "FOREIGN KEY"):
		return CodeForeignKey
	case strings.Contains(msg, "UNIQUE"):
		return CodeUnique
	case strings.Contains(msg, "NOT NULL"):
		return CodeNotNull
	}
	return CodeDB
}
