package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ownerLimiter keeps one token bucket per owner
type ownerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ownerBucket
	limit    rate.Limit
	burst    int
}

type ownerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const idleBucketTTL = 10 * time.Minute

func newOwnerLimiter(rps float64, burst int) *ownerLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ownerLimiter{
		limiters: make(map[string]*ownerBucket),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

func (l *ownerLimiter) Allow(owner string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.limiters[owner]
	if !ok {
		l.prune(now)
		b = &ownerBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[owner] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// prune drops buckets idle long enough to have refilled.
func (l *ownerLimiter) prune(now time.Time) {
	for owner, b := range l.limiters {
		if now.Sub(b.lastSeen) > idleBucketTTL {
			delete(l.limiters, owner)
		}
	}
}
