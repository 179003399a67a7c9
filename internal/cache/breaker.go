package cache

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// breaker stops calls to a failing substrate for a cooldown period.
//   - closed: calls flow; consecutive failures are counted.
//   - open: calls are skipped until cooldown elapses, then half-open.
//   - half-open: one trial call is allowed; success closes, failure reopens.
type breaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration

	state    breakerState
	failures int
	inTrial  bool
	openedAt time.Time
	now      func() time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// allow reports whether a call may reach the substrate.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = breakerHalfOpen
		b.inTrial = false
	}

	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		if b.inTrial {
			return false
		}
		b.inTrial = true
		return true
	default:
		return false
	}
}

// onSuccess records a successful call and returns the state it left.
func (b *breaker) onSuccess() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.state
	b.state = breakerClosed
	b.failures = 0
	b.inTrial = false
	return prev
}

// onFailure records a failed call and reports whether it tripped the breaker.
func (b *breaker) onFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
			return true
		}
	case breakerHalfOpen:
		b.trip()
		return true
	}
	return false
}

// onAbort records a call that ended without a verdict on the substrate. A
// half-open trial slot is released so the next call can try the substrate.
func (b *breaker) onAbort() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.inTrial = false
	}
}

func (b *breaker) trip() {
	b.state = breakerOpen
	b.openedAt = b.now()
	b.failures = 0
	b.inTrial = false
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
