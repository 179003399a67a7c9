// internal/util/errors.go
package util

import "errors"

// Ledger error taxonomy. Callers match with errors.Is; wrapped errors keep the
// sentinel reachable.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input provided")
	ErrInvalidAmount       = errors.New("amount must be a positive integer")
	ErrInsufficientBalance = errors.New("insufficient credits")
	ErrDuplicateReference  = errors.New("reference already recorded")
	ErrConflict            = errors.New("conflicting resource")
	ErrStoreUnavailable    = errors.New("ledger store temporarily unavailable")
	ErrCacheUnavailable    = errors.New("balance cache unavailable")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrUnauthenticated     = errors.New("missing or invalid account identity")
	ErrForbidden           = errors.New("operation not permitted for this account")
)

// IsError reports whether any error in err's chain matches target.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// IsDomainError reports whether err carries one of the ledger's business
// outcomes, as opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrInvalidInput,
		ErrInvalidAmount,
		ErrInsufficientBalance,
		ErrDuplicateReference,
		ErrConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
