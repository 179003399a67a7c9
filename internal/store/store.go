// Package store defines the durable ledger: the source of truth for account
// balances and the append-only history of balance-affecting events.
package store

import (
	"context"

	"credit-ledger/internal/domain"
)

// LedgerStore persists accounts and ledger events with transactional
// atomicity. Errors carry the util taxonomy: ErrNotFound, ErrInvalidAmount,
// ErrInsufficientBalance, ErrDuplicateReference, ErrConflict. Anything else
// is an infrastructure failure.
type LedgerStore interface {
	// CreateAccount creates an account owned by owner with startingBalance.
	CreateAccount(ctx context.Context, owner string, startingBalance int64) (*domain.Account, error)
	// GetAccount returns the account with the given id.
	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	// GetBalance returns the authoritative balance.
	GetBalance(ctx context.Context, accountID int64) (int64, error)
	// ApplyDebit atomically checks that the balance covers amount, subtracts
	// it and appends a debit event. Concurrent debits of one account are
	// serialized. It returns the post-debit balance.
	ApplyDebit(ctx context.Context, accountID, amount int64) (int64, *domain.LedgerEvent, error)
	// ApplyCredit atomically adds amount and appends a credit event recorded
	// under reference. If reference was already recorded for the same account
	// and amount it returns the current balance, the original event and
	// ErrDuplicateReference without applying anything.
	ApplyCredit(ctx context.Context, accountID, amount int64, reference string) (int64, *domain.LedgerEvent, error)
	// ListEvents returns a page of the account's events, newest first, and the total count.
	ListEvents(ctx context.Context, accountID int64, filter domain.EventFilter) ([]domain.LedgerEvent, int64, error)
}

// MessageStore persists paid messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, message *domain.Message) error
	ListMessages(ctx context.Context, accountID int64, limit int) ([]domain.Message, error)
}
