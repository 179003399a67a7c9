// internal/domain/account.go
package domain

import "time"

// Account holds a user's credit balance. Balance is the materialized sum of
// the starting balance and every LedgerEvent delta for the account.
type Account struct {
	ID        int64     `db:"id" json:"id"`                 // Primary key, BIGSERIAL in DB
	Owner     string    `db:"owner" json:"owner"`           // Unique identity handle from the auth layer
	Balance   int64     `db:"balance" json:"balance"`       // Credits, never negative
	CreatedAt time.Time `db:"created_at" json:"created_at"` // Timestamp of creation
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"` // Timestamp of last balance change
}

// NewAccount creates a new Account instance with the given starting balance.
func NewAccount(owner string, startingBalance int64) *Account {
	now := time.Now().UTC()
	return &Account{
		Owner:     owner,
		Balance:   startingBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
