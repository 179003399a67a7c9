package cache

import (
	"context"
	"log/slog"
	"time"
)

// Lookup results reported to the Observer.
const (
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultError    = "error"
	ResultBypassed = "bypassed"
)

// Observer receives cache lookup outcomes, e.g. for metrics.
type Observer interface {
	CacheLookup(result string)
}

// Options tune a Balances cache.
type Options struct {
	// BreakerThreshold is the number of consecutive substrate failures that
	// switch the cache to bypass.
	BreakerThreshold int
	// BreakerCooldown is how long the cache stays in bypass before trying
	// the substrate again.
	BreakerCooldown time.Duration
	Logger          *slog.Logger
	Observer        Observer
}

// Balances is the BalanceCache used by the coordinator. It swallows and logs
// substrate errors, and after repeated failures bypasses the substrate
// entirely until a trial call succeeds.
type Balances struct {
	sub      Substrate
	breaker  *breaker
	logger   *slog.Logger
	observer Observer
}

var _ BalanceCache = (*Balances)(nil)

// NewBalances wraps sub. A nil sub yields a cache that is always absent.
func NewBalances(sub Substrate, opts Options) *Balances {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Balances{
		sub:      sub,
		breaker:  newBreaker(opts.BreakerThreshold, cooldown),
		logger:   logger,
		observer: opts.Observer,
	}
}

// Disabled returns a cache that never holds anything.
func Disabled() *Balances {
	return NewBalances(nil, Options{})
}

// Get returns the cached balance when present and unexpired.
func (b *Balances) Get(ctx context.Context, accountID int64) (int64, bool) {
	if !b.usable() {
		b.observe(ResultBypassed)
		return 0, false
	}
	balance, ok, err := b.sub.Get(ctx, accountID)
	if err != nil {
		b.fail(ctx, "get", accountID, err)
		b.observe(ResultError)
		return 0, false
	}
	b.succeed()
	if !ok {
		b.observe(ResultMiss)
		return 0, false
	}
	b.observe(ResultHit)
	return balance, true
}

// Set stores balance for ttl. Failures are logged and dropped.
func (b *Balances) Set(ctx context.Context, accountID, balance int64, ttl time.Duration) {
	if !b.usable() {
		return
	}
	if err := b.sub.Set(ctx, accountID, balance, ttl); err != nil {
		b.fail(ctx, "set", accountID, err)
		return
	}
	b.succeed()
}

// Invalidate removes the entry so the next read consults the store.
func (b *Balances) Invalidate(ctx context.Context, accountID int64) {
	if !b.usable() {
		return
	}
	if err := b.sub.Delete(ctx, accountID); err != nil {
		b.fail(ctx, "invalidate", accountID, err)
		return
	}
	b.succeed()
}

// Bypassed reports whether the substrate is currently skipped.
func (b *Balances) Bypassed() bool {
	return b.sub == nil || b.breaker.current() == breakerOpen
}

// Close closes the substrate.
func (b *Balances) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Close()
}

func (b *Balances) usable() bool {
	return b.sub != nil && b.breaker.allow()
}

func (b *Balances) succeed() {
	if prev := b.breaker.onSuccess(); prev != breakerClosed {
		b.logger.Info("Balance cache reachable again, leaving bypass")
	}
}

// fail records a substrate error. An error caused by the caller's own
// context ending says nothing about the substrate and is not counted.
func (b *Balances) fail(ctx context.Context, op string, accountID int64, err error) {
	if ctx.Err() != nil {
		b.breaker.onAbort()
		b.logger.Debug("Balance cache operation abandoned by caller", "op", op, "account_id", accountID, "error", err)
		return
	}
	b.logger.Warn("Balance cache operation failed", "op", op, "account_id", accountID, "error", err)
	if b.breaker.onFailure() {
		b.logger.Warn("Balance cache unreachable, bypassing", "cooldown", b.breaker.cooldown)
	}
}

func (b *Balances) observe(result string) {
	if b.observer != nil {
		b.observer.CacheLookup(result)
	}
}
