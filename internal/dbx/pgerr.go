package dbx

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// UniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const UniqueViolation = "23505"

// IsUniqueViolation reports whether err (or anything it wraps) is a Postgres
// unique violation. The violated constraint name is returned alongside.
func IsUniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// NullIfEmpty maps an empty byte slice to a SQL NULL argument.
func NullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
