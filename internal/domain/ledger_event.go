// internal/domain/ledger_event.go
package domain

import "time"

// EventKind classifies a balance change.
type EventKind string

const (
	EventKindDebit  EventKind = "debit"
	EventKindCredit EventKind = "credit"
)

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	return k == EventKindDebit || k == EventKindCredit
}

// LedgerEvent is the immutable record of a single balance change.
type LedgerEvent struct {
	ID           int64     `db:"id" json:"id"`
	AccountID    int64     `db:"account_id" json:"account_id"`
	Delta        int64     `db:"delta" json:"delta"` // Negative for debits, positive for credits
	Kind         EventKind `db:"kind" json:"kind"`
	Reference    *string   `db:"reference" json:"reference,omitempty"` // Idempotency token, unique among credits
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time `db:"created_at" json:"timestamp"`
}

// NewDebitEvent creates the event for spending amount credits.
func NewDebitEvent(accountID, amount, balanceAfter int64) *LedgerEvent {
	return &LedgerEvent{
		AccountID:    accountID,
		Delta:        -amount,
		Kind:         EventKindDebit,
		BalanceAfter: balanceAfter,
		CreatedAt:    time.Now().UTC(),
	}
}

// NewCreditEvent creates the event for recharging amount credits.
func NewCreditEvent(accountID, amount, balanceAfter int64, reference string) *LedgerEvent {
	return &LedgerEvent{
		AccountID:    accountID,
		Delta:        amount,
		Kind:         EventKindCredit,
		Reference:    &reference,
		BalanceAfter: balanceAfter,
		CreatedAt:    time.Now().UTC(),
	}
}

// Amount returns the absolute size of the change.
func (e *LedgerEvent) Amount() int64 {
	if e.Delta < 0 {
		return -e.Delta
	}
	return e.Delta
}

// EventFilter narrows a history query.
type EventFilter struct {
	Kind   EventKind // Empty means all kinds
	Limit  int
	Offset int
}
