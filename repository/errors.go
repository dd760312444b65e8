package repository

import (
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"

	auth "github.com/neuronurture/go-auth"
)

const pgUniqueViolation = "23505"

// isUniqueViolation reports constraint violations from postgres (pgx) and
// sqlite drivers, also when wrapped by the repository layer.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		msg := e.Error()
		if strings.Contains(msg, "UNIQUE constraint failed") ||
			strings.Contains(msg, "duplicate key value violates unique constraint") {
			return true
		}
	}
	return false
}

// mapError translates driver errors into store sentinels
func mapError(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, sql.ErrNoRows), repository.IsRecordNotFound(err):
		return auth.ErrRecordNotFound
	case isUniqueViolation(err):
		return auth.ErrRecordExists
	default:
		return errors.Wrap(err, errors.CategoryInternal, message)
	}
}
