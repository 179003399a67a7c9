// internal/repository/postgres/errors.go
package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// Constraint names declared in schema.go.
const (
	constraintAccountOwner    = "accounts_owner_key"
	constraintCreditReference = "ledger_events_credit_reference_key"
)

const pqUniqueViolation = pq.ErrorCode("23505")

// isUniqueViolation reports whether err is a unique violation on constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqUniqueViolation && pqErr.Constraint == constraint
}
