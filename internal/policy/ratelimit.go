package policy

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter admits requests per client identifier (forwarded IP) using a
// golang.org/x/time/rate token bucket per client. It never holds its lock
// while the caller is streaming — only Allow is ever called, and it
// returns immediately.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*clientLimiter
	idleTTL  time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
		limiters: make(map[string]*clientLimiter),
		idleTTL:  10 * time.Minute,
	}
}

// Allow reports whether the request from clientID is admitted right now. It
// also returns the number of seconds the caller should wait before retrying
// when admission is denied (for the Retry-After header).
func (r *RateLimiter) Allow(clientID string) (bool, int) {
	r.mu.Lock()
	cl, ok := r.limiters[clientID]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r.rps, r.burst)}
		r.limiters[clientID] = cl
	}
	cl.lastSeen = time.Now()
	r.mu.Unlock()

	if cl.limiter.Allow() {
		return true, 0
	}
	retryAfter := 1
	if r.rps > 0 {
		retryAfter = int(math.Ceil(1 / float64(r.rps)))
	}
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}

// Sweep drops limiters idle for longer than idleTTL, so the map does not
// grow without bound across the process lifetime.
func (r *RateLimiter) Sweep() {
	cutoff := time.Now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, cl := range r.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(r.limiters, k)
		}
	}
}
