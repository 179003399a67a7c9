// Package cache provides the volatile, time-bounded balance cache. It is
// never the source of truth: every failure degrades to a miss.
package cache

import (
	"context"
	"time"

	"credit-ledger/internal/util"
)

// ErrUnavailable marks a substrate that could not be reached. Balances never
// lets it escape.
var ErrUnavailable = util.ErrCacheUnavailable

// Substrate is a key/value store holding balances. Implementations report
// failures; Balances decides how to degrade.
type Substrate interface {
	// Get returns the balance for accountID. The boolean is false on a miss
	// or when the entry expired.
	Get(ctx context.Context, accountID int64) (int64, bool, error)
	// Set stores balance and restarts its expiry clock.
	Set(ctx context.Context, accountID, balance int64, ttl time.Duration) error
	// Delete removes the entry immediately.
	Delete(ctx context.Context, accountID int64) error
	// Close releases the substrate's resources.
	Close() error
}

// BalanceCache is the contract the coordinator consumes. None of its methods
// fail: an unreachable substrate reads as absent and drops writes.
type BalanceCache interface {
	Get(ctx context.Context, accountID int64) (int64, bool)
	Set(ctx context.Context, accountID, balance int64, ttl time.Duration)
	Invalidate(ctx context.Context, accountID int64)
}
