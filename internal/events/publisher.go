// Package events publishes committed ledger events to downstream consumers.
// Publication happens after the store commit and is best effort.
package events

import (
	"context"

	"credit-ledger/internal/domain"
)

// Publisher delivers committed ledger events.
type Publisher interface {
	Publish(ctx context.Context, event *domain.LedgerEvent) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, *domain.LedgerEvent) error { return nil }
func (Noop) Close() error                                       { return nil }
