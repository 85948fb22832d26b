package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps tracked client keys so rotating source addresses
// cannot exhaust memory.
const maxTrackedKeys = 4096

// RateLimiter bounds websocket connection attempts per client address.
// rpm <= 0 disables limiting. Safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(rpm, burst int) *RateLimiter {
	r := &RateLimiter{limiters: make(map[string]*rate.Limiter)}
	if rpm > 0 {
		r.limit = rate.Limit(float64(rpm) / 60.0)
		if burst <= 0 {
			burst = 1
		}
		r.burst = burst
	}
	return r
}

func (r *RateLimiter) Enabled() bool { return r.limit > 0 }

// Allow reports whether the key may connect now.
func (r *RateLimiter) Allow(key string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[key]
	if !ok {
		if len(r.limiters) >= maxTrackedKeys {
			for k := range r.limiters {
				delete(r.limiters, k)
				break
			}
		}
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = l
	}
	return l.Allow()
}
