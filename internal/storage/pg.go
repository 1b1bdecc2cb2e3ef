// Package storage holds helpers shared by the PostgreSQL store
// implementations.
package storage

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code raised when an insert loses to
// a unique constraint. Every creation path in this codebase treats that as a
// compare-and-swap loss, never as an unexpected failure.
const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
