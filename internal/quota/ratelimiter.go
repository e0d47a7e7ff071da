// Package quota enforces per-user request rate limits.
package quota

import (
	"math"
	"sync"
	"time"
)

// RateLimiter keeps one token bucket per user. A bucket holds up to rpm
// tokens and refills at rpm per minute.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[int64]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	rpm      int
	lastSeen time.Time
}

// refill credits the tokens earned since the last visit.
func (b *bucket) refill(now time.Time, rpm int) {
	if b.rpm != rpm {
		b.rpm = rpm
		b.tokens = math.Min(b.tokens, float64(rpm))
	}
	perSecond := float64(rpm) / 60
	b.tokens = math.Min(float64(rpm), b.tokens+now.Sub(b.lastSeen).Seconds()*perSecond)
	b.lastSeen = now
}

// wait is how long until one token is available.
func (b *bucket) wait() time.Duration {
	if b.tokens >= 1 {
		return 0
	}
	perSecond := float64(b.rpm) / 60
	return time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
}

// NewRateLimiter creates a new per-user rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[int64]*bucket),
		now:     time.Now,
	}
}

// Allow takes a token for userID. When none is left it returns false and
// the time until the next one. rpm <= 0 means unlimited.
func (rl *RateLimiter) Allow(userID int64, rpm int) (bool, time.Duration) {
	if rpm <= 0 {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[userID]
	if !ok {
		b = &bucket{tokens: float64(rpm), rpm: rpm, lastSeen: now}
		rl.buckets[userID] = b
	}
	b.refill(now, rpm)

	if b.tokens < 1 {
		return false, b.wait()
	}
	b.tokens--
	return true, 0
}

// Cleanup drops buckets idle for longer than maxAge and returns how many
// were removed.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxAge)
	removed := 0
	for userID, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, userID)
			removed++
		}
	}
	return removed
}
