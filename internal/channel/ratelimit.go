package channel

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const slowDown = "You're sending messages too quickly. Please wait a moment."

// RateLimiter throttles inbound messages per chat so one sender cannot keep
// the simulated backend busy for everyone.
type RateLimiter struct {
	mu       sync.Mutex
	burst    int
	limit    rate.Limit
	now      func() time.Time
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 10
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	return &RateLimiter{
		burst:    maxBurst,
		limit:    rate.Limit(ratePerMinute / 60.0),
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow takes a token from chatID's bucket. A nil limiter allows everything.
func (rl *RateLimiter) Allow(chatID string) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	lim, ok := rl.limiters[chatID]
	if !ok {
		lim = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[chatID] = lim
	}
	now := rl.now()
	rl.mu.Unlock()
	return lim.AllowN(now, 1)
}

// Forget drops chatID's bucket.
func (rl *RateLimiter) Forget(chatID string) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.limiters, chatID)
	rl.mu.Unlock()
}
