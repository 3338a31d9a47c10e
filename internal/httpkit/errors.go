package httpkit

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"renderbridge/internal/pkg/errors"
)

// IsUndefinedTable reports a 42P01 undefined_table error.
func IsUndefinedTable(err error) bool {
	return pgCode(err) == "42P01"
}

// IsUniqueViolation reports a 23505 unique_violation error.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// FromPg maps a repository error onto the coded error taxonomy so handlers
// can report it with the right status.
func FromPg(err error, resource, id string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, pgx.ErrNoRows):
		return errors.NotFound(resource, id)
	case IsUniqueViolation(err):
		return errors.AlreadyExists(resource, id)
	case IsUndefinedTable(err):
		return errors.WrapWithCode(err, errors.CodeUnavailable, resource+".query", "schema not initialized")
	default:
		return errors.Wrap(err, resource+".query", "database error")
	}
}
