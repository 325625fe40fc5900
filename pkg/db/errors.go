package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorClass groups database errors by how callers should react.
type ErrorClass int

const (
	ErrorClassUnknown ErrorClass = iota
	ErrorClassRetryable
	ErrorClassPermanent
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgNotNullViolation     = "23502"
	pgCheckViolation       = "23514"
)

// ClassifyError inspects pgx and lib/pq errors for their SQLSTATE.
func ClassifyError(err error) ErrorClass {
	switch sqlState(err) {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return ErrorClassRetryable
	case pgUniqueViolation, pgForeignKeyViolation, pgNotNullViolation, pgCheckViolation:
		return ErrorClassPermanent
	default:
		return ErrorClassUnknown
	}
}

func sqlState(err error) string {
	code, _ := pgDetails(err)
	return code
}

// pgDetails extracts SQLSTATE and constraint name from either driver.
func pgDetails(err error) (code, constraint string) {
	if err == nil {
		return "", ""
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

// IsUniqueViolation reports whether err is a unique violation, on
// constraintName when one is given. sqlite, used in tests, only reports
// "UNIQUE constraint failed: table.column" text.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if code, constraint := pgDetails(err); code != "" {
		return code == pgUniqueViolation && (constraintName == "" || constraint == constraintName)
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}
