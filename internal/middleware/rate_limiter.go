package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter controls how frequently a caller may perform an action.
// Pairing endpoints use it keyed by identity so invite codes cannot be
// guessed by brute force; auth endpoints key by remote address.
type RateLimiter interface {
	Allow(key string) bool
}

// keyRateLimiter tracks request rates per key with expiration.
type keyRateLimiter struct {
	mu      sync.Mutex
	callers map[string]*caller
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewKeyRateLimiter constructs a per-key limiter allowing up to `requests`
// events per `window` with an additional burst capacity. Idle entries
// expire after ttl.
func NewKeyRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &keyRateLimiter{
		callers: make(map[string]*caller),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *keyRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	now := l.now()

	l.mu.Lock()
	c := l.callerLocked(key, now)
	l.gcLocked(now)
	l.mu.Unlock()

	return c.limiter.Allow()
}

func (l *keyRateLimiter) callerLocked(key string, now time.Time) *caller {
	if c, ok := l.callers[key]; ok {
		c.lastSeen = now
		return c
	}

	c := &caller{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.callers[key] = c
	return c
}

func (l *keyRateLimiter) gcLocked(now time.Time) {
	for key, c := range l.callers {
		if now.Sub(c.lastSeen) > l.ttl {
			delete(l.callers, key)
		}
	}
}
