// internal/repository/account_repo.go
package repository

import (
	"context"

	"credit-ledger/internal/domain"
)

// AccountRepository defines the interface for account data operations.
type AccountRepository interface {
	// CreateAccount inserts a new account; a taken owner yields util.ErrConflict.
	CreateAccount(ctx context.Context, q DBExecutor, account *domain.Account) error
	// GetAccountByID retrieves an account without locking it.
	GetAccountByID(ctx context.Context, q DBExecutor, id int64) (*domain.Account, error)
	// GetAccountForUpdate retrieves an account and row-locks it until the
	// surrounding transaction ends. q must be a transaction.
	GetAccountForUpdate(ctx context.Context, q DBExecutor, id int64) (*domain.Account, error)
	// AddToBalance adds delta to the materialized balance and returns the result.
	AddToBalance(ctx context.Context, q DBExecutor, id int64, delta int64) (int64, error)
}
