package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"credit-ledger/internal/util"
)

// idleAfter is how long a per-account limiter may sit unused before Sweep
// drops it.
const idleAfter = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out a token bucket per account.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[int64]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter allows perSecond sustained requests per account with the
// given burst. perSecond <= 0 disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[int64]*visitor),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether accountID may proceed now.
func (rl *RateLimiter) Allow(accountID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[accountID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[accountID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Sweep drops limiters idle for longer than idleAfter and returns how many
// were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := rl.now().Add(-idleAfter)
	for id, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, id)
			removed++
		}
	}
	return removed
}

// Middleware limits requests per account. It must run after Identity.
func (rl *RateLimiter) Middleware(onError func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(AccountID(r.Context())) {
				onError(w, util.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
