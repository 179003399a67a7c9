// internal/repository/postgres/account_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"credit-ledger/internal/domain"
	"credit-ledger/internal/repository"
	"credit-ledger/internal/util"
)

// AccountRepository implements repository.AccountRepository for PostgreSQL.
type AccountRepository struct{}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository() repository.AccountRepository {
	return &AccountRepository{}
}

// CreateAccount inserts a new account using the provided DBExecutor.
func (r *AccountRepository) CreateAccount(ctx context.Context, q repository.DBExecutor, account *domain.Account) error {
	query := `INSERT INTO accounts (owner, balance, created_at, updated_at)
              VALUES ($1, $2, $3, $4) RETURNING id`
	err := q.QueryRowContext(ctx, query, account.Owner, account.Balance, account.CreatedAt, account.UpdatedAt).Scan(&account.ID)
	if err != nil {
		if isUniqueViolation(err, constraintAccountOwner) {
			return fmt.Errorf("account owner %q: %w", account.Owner, util.ErrConflict)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccountByID retrieves an account by its ID using the provided DBExecutor.
func (r *AccountRepository) GetAccountByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Account, error) {
	return r.get(ctx, q, `SELECT id, owner, balance, created_at, updated_at FROM accounts WHERE id = $1`, id)
}

// GetAccountForUpdate retrieves an account and holds its row lock until the
// transaction in q ends, serializing concurrent mutations of one account.
func (r *AccountRepository) GetAccountForUpdate(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Account, error) {
	return r.get(ctx, q, `SELECT id, owner, balance, created_at, updated_at FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

func (r *AccountRepository) get(ctx context.Context, q repository.DBExecutor, query string, id int64) (*domain.Account, error) {
	var account domain.Account
	if err := q.GetContext(ctx, &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID %d: %w", id, err)
	}
	return &account, nil
}

// AddToBalance applies delta to the account's balance. The balance CHECK
// constraint rejects any update that would go negative.
func (r *AccountRepository) AddToBalance(ctx context.Context, q repository.DBExecutor, id int64, delta int64) (int64, error) {
	query := `UPDATE accounts SET balance = balance + $1, updated_at = $2 WHERE id = $3 RETURNING balance`
	var balance int64
	err := q.QueryRowContext(ctx, query, delta, time.Now().UTC(), id).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, util.ErrNotFound
		}
		return 0, fmt.Errorf("failed to update balance for account %d: %w", id, err)
	}
	return balance, nil
}
