package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup by key matches no row
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("database is closed")

// StoreError reports a failed schema, connection or statement operation.
// Constraint holds the violated constraint as SQLite names it
// (e.g. "images.hash" for a UNIQUE failure) when one is involved.
type StoreError struct {
	Op         string
	Constraint string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: constraint %s violated: %v", e.Op, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ValidationError is returned when an entity is rejected before reaching SQL
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// storeErr wraps err as a *StoreError, extracting the constraint name from
// SQLite's message when the failure is a constraint violation.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}

	se = &StoreError{Op: op, Err: err}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		se.Constraint = constraintName(sqliteErr)
	}
	return se
}

func constraintName(err sqlite3.Error) string {
	msg := err.Error()
	if i := strings.Index(msg, "constraint failed: "); i >= 0 {
		return strings.TrimSpace(msg[i+len("constraint failed: "):])
	}
	switch err.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return "FOREIGN KEY"
	case sqlite3.ErrConstraintUnique:
		return "UNIQUE"
	case sqlite3.ErrConstraintCheck:
		return "CHECK"
	case sqlite3.ErrConstraintNotNull:
		return "NOT NULL"
	case sqlite3.ErrConstraintPrimaryKey:
		return "PRIMARY KEY"
	}
	return "constraint"
}

func hasExtendedCode(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}

// IsUniqueViolation reports whether err came from a UNIQUE constraint
func IsUniqueViolation(err error) bool {
	return hasExtendedCode(err, sqlite3.ErrConstraintUnique)
}

// IsForeignKeyViolation reports whether err came from a FOREIGN KEY constraint
func IsForeignKeyViolation(err error) bool {
	return hasExtendedCode(err, sqlite3.ErrConstraintForeignKey)
}

// IsCheckViolation reports whether err came from a CHECK constraint
func IsCheckViolation(err error) bool {
	return hasExtendedCode(err, sqlite3.ErrConstraintCheck)
}
