package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Local is an in-process Substrate backed by ristretto. It suits a single
// coordinator process; with several processes use Redis.
type Local struct {
	rc *ristretto.Cache[int64, int64]
}

var _ Substrate = (*Local)(nil)

// NewLocal creates a Local substrate holding up to maxEntries balances.
func NewLocal(maxEntries int64) (*Local, error) {
	if maxEntries <= 0 {
		maxEntries = 100_000
	}
	rc, err := ristretto.NewCache(&ristretto.Config[int64, int64]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Local{rc: rc}, nil
}

// Get returns the balance if present and unexpired.
func (l *Local) Get(_ context.Context, accountID int64) (int64, bool, error) {
	v, ok := l.rc.Get(accountID)
	return v, ok, nil
}

// Set stores the balance. Wait makes the write visible before returning.
func (l *Local) Set(_ context.Context, accountID, balance int64, ttl time.Duration) error {
	l.rc.SetWithTTL(accountID, balance, 1, ttl)
	l.rc.Wait()
	return nil
}

// Delete removes the entry.
func (l *Local) Delete(_ context.Context, accountID int64) error {
	l.rc.Del(accountID)
	return nil
}

// Close stops ristretto's background goroutines.
func (l *Local) Close() error {
	l.rc.Close()
	return nil
}
