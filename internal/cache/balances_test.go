package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySubstrate is an in-memory Substrate whose calls fail while down is set
// and, like go-redis, on a context that is already done.
type flakySubstrate struct {
	mu      sync.Mutex
	entries map[int64]int64
	down    bool
	calls   int
}

func newFlakySubstrate() *flakySubstrate {
	return &flakySubstrate{entries: make(map[int64]int64)}
}

func (f *flakySubstrate) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakySubstrate) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakySubstrate) begin(ctx context.Context) error {
	f.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.down {
		return ErrUnavailable
	}
	return nil
}

func (f *flakySubstrate) Get(ctx context.Context, accountID int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx); err != nil {
		return 0, false, err
	}
	v, ok := f.entries[accountID]
	return v, ok, nil
}

func (f *flakySubstrate) Set(ctx context.Context, accountID, balance int64, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx); err != nil {
		return err
	}
	f.entries[accountID] = balance
	return nil
}

func (f *flakySubstrate) Delete(ctx context.Context, accountID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx); err != nil {
		return err
	}
	delete(f.entries, accountID)
	return nil
}

func (f *flakySubstrate) Close() error { return nil }

type countingObserver struct {
	mu      sync.Mutex
	results map[string]int
}

func (o *countingObserver) CacheLookup(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results == nil {
		o.results = make(map[string]int)
	}
	o.results[result]++
}

func TestBalancesHitMissInvalidate(t *testing.T) {
	ctx := context.Background()
	obs := &countingObserver{}
	b := NewBalances(newFlakySubstrate(), Options{Observer: obs})

	_, ok := b.Get(ctx, 1)
	assert.False(t, ok)

	b.Set(ctx, 1, 91, time.Minute)
	got, ok := b.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, int64(91), got)

	b.Invalidate(ctx, 1)
	_, ok = b.Get(ctx, 1)
	assert.False(t, ok)

	assert.Equal(t, 1, obs.results[ResultHit])
	assert.Equal(t, 2, obs.results[ResultMiss])
}

func TestBalancesSwallowErrorsAndBypass(t *testing.T) {
	ctx := context.Background()
	sub := newFlakySubstrate()
	obs := &countingObserver{}
	b := NewBalances(sub, Options{BreakerThreshold: 3, BreakerCooldown: time.Hour, Observer: obs})
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b.breaker.now = clock.now

	b.Set(ctx, 1, 50, time.Minute)
	sub.setDown(true)

	for i := 0; i < 3; i++ {
		_, ok := b.Get(ctx, 1)
		assert.False(t, ok, "an unreachable cache reads as absent")
	}
	assert.True(t, b.Bypassed())
	assert.Equal(t, 3, obs.results[ResultError])

	calls := sub.callCount()
	b.Set(ctx, 1, 49, time.Minute)
	b.Invalidate(ctx, 1)
	_, ok := b.Get(ctx, 1)
	assert.False(t, ok)
	assert.Equal(t, calls, sub.callCount(), "bypass skips the substrate")
	assert.Equal(t, 1, obs.results[ResultBypassed])

	// After the cooldown a successful trial call leaves bypass.
	sub.setDown(false)
	clock.advance(time.Hour)
	b.Invalidate(ctx, 1)
	assert.False(t, b.Bypassed())
	_, ok = b.Get(ctx, 1)
	assert.False(t, ok)
}

func TestBalancesIgnoreCallerCancellation(t *testing.T) {
	sub := newFlakySubstrate()
	b := NewBalances(sub, Options{BreakerThreshold: 5, BreakerCooldown: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		_, ok := b.Get(ctx, 1)
		assert.False(t, ok)
		b.Set(ctx, 1, 10, time.Minute)
		b.Invalidate(ctx, 1)
	}
	assert.False(t, b.Bypassed(), "cancelled callers say nothing about the substrate")

	b.Set(context.Background(), 1, 10, time.Minute)
	got, ok := b.Get(context.Background(), 1)
	require.True(t, ok)
	assert.Equal(t, int64(10), got)
}

func TestBalancesCancelledTrialReleasesSlot(t *testing.T) {
	sub := newFlakySubstrate()
	b := NewBalances(sub, Options{BreakerThreshold: 1, BreakerCooldown: time.Minute})
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b.breaker.now = clock.now

	sub.setDown(true)
	b.Invalidate(context.Background(), 1)
	require.True(t, b.Bypassed())
	sub.setDown(false)
	clock.advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Invalidate(ctx, 1) // takes the half-open trial, then is abandoned

	b.Set(context.Background(), 1, 7, time.Minute)
	got, ok := b.Get(context.Background(), 1)
	require.True(t, ok, "the next caller retries and closes the breaker")
	assert.Equal(t, int64(7), got)
}

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	b := Disabled()

	b.Set(ctx, 1, 10, time.Minute)
	_, ok := b.Get(ctx, 1)
	assert.False(t, ok)
	b.Invalidate(ctx, 1)
	assert.True(t, b.Bypassed())
	assert.NoError(t, b.Close())
}

func TestUnavailableIsWrapped(t *testing.T) {
	err := errors.Join(ErrUnavailable, errors.New("dial tcp: refused"))
	assert.ErrorIs(t, err, ErrUnavailable)
}
