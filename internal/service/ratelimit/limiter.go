package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleTTL = 10 * time.Minute

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter is a set of token buckets keyed by client. Buckets idle for
// longer than idleTTL are dropped on the next Allow.
type Limiter struct {
	mu        sync.Mutex
	m         map[string]*client
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// New builds a limiter that allows burst requests at once and refills at
// perMinute tokens per minute.
func New(burst, perMinute float64) *Limiter {
	b := int(burst)
	if b < 1 {
		b = 1
	}
	return &Limiter{
		m:     make(map[string]*client),
		limit: rate.Limit(perMinute / 60),
		burst: b,
		now:   time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > idleTTL {
		for k, c := range l.m {
			if now.Sub(c.seen) > idleTTL {
				delete(l.m, k)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.m[key]
	if !ok {
		c = &client{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

// Len is the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
