// internal/repository/ledger_event_repo.go
package repository

import (
	"context"

	"credit-ledger/internal/domain"
)

// LedgerEventRepository defines the interface for the append-only event log.
type LedgerEventRepository interface {
	// CreateEvent appends an event. A credit reusing a recorded reference
	// yields util.ErrDuplicateReference.
	CreateEvent(ctx context.Context, q DBExecutor, event *domain.LedgerEvent) error
	// GetCreditByReference looks up the credit recorded under reference.
	GetCreditByReference(ctx context.Context, q DBExecutor, reference string) (*domain.LedgerEvent, error)
	// ListEventsByAccountID returns a page of events, newest first, and the total count.
	ListEventsByAccountID(ctx context.Context, q DBExecutor, accountID int64, filter domain.EventFilter) ([]domain.LedgerEvent, int64, error)
}
