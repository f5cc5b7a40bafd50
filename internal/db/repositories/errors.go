package repositories

import (
	"errors"

	"github.com/lib/pq"
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation. The database constraint is the source of truth for email and slug
// uniqueness; callers translate this into a conflict error for clients. The
// advisory pre-checks (SlugExists, EmailInUse) are fast-path hints only and can
// race with concurrent writers.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}
