package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MapLimiter keeps one token bucket per key (a signer DID for relay
// publishing) and evicts buckets that have been idle for idleTTL.
type MapLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byKey   map[string]*entry
	hits    uint64
	idleTTL time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a key-based limiter; returns nil if args are invalid. A nil
// limiter allows everything.
func New(rps float64, burst int, idleTTL time.Duration) *MapLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &MapLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		byKey:   make(map[string]*entry),
		idleTTL: idleTTL,
	}
}

// Allow consumes one token for key at now. When the bucket is empty it
// returns false and how long until a token is available.
func (l *MapLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byKey[key] = e
	}
	e.lastSeen = now

	l.hits++
	if l.hits%512 == 0 {
		l.evictIdle(now)
	}

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len reports the number of tracked keys.
func (l *MapLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

func (l *MapLimiter) evictIdle(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, v := range l.byKey {
		if v.lastSeen.Before(cutoff) {
			delete(l.byKey, k)
		}
	}
}
