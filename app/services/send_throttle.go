package services

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// SendThrottle paces provider sends per provider account with a token bucket
type SendThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewSendThrottle creates a throttle. A non-positive rps disables pacing.
func NewSendThrottle(rps float64, burst int) *SendThrottle {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &SendThrottle{
		limiters: make(map[string]*rate.Limiter),
		r:        limit,
		b:        burst,
	}
}

func (t *SendThrottle) limiter(account string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.limiters[account]
	if !ok {
		limiter = rate.NewLimiter(t.r, t.b)
		t.limiters[account] = limiter
	}
	return limiter
}

// Wait blocks until the account may send again or ctx is done
func (t *SendThrottle) Wait(ctx context.Context, account string) error {
	return t.limiter(account).Wait(ctx)
}
