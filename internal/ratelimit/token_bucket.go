// Package ratelimit provides the token bucket used to cap inbound signaling
// messages per connection.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// One token is held as 1e9 nano-tokens so that a refill rate in tokens/sec is
// exactly nano-tokens/ns and no float rounding is involved.
const nanoPerToken int64 = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket starts full and refills at a whole number of tokens per second.
type TokenBucket struct {
	clock Clock

	mu       sync.Mutex
	capacity int64 // nano-tokens
	rate     int64 // tokens/sec == nano-tokens/ns
	avail    int64 // nano-tokens
	last     time.Time
}

func NewTokenBucket(clock Clock, capacityTokens, perSecond int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	capacity := toNano(capacityTokens)
	return &TokenBucket{
		clock:    clock,
		capacity: capacity,
		rate:     max(perSecond, 0),
		avail:    capacity,
		last:     clock.Now(),
	}
}

// Allow takes one token.
func (b *TokenBucket) Allow() bool { return b.AllowN(1) }

// AllowN takes n tokens if they are all available. n <= 0 always succeeds.
func (b *TokenBucket) AllowN(n int64) bool {
	if n <= 0 {
		return true
	}
	cost := toNano(n)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(b.clock.Now())
	if b.avail < cost {
		return false
	}
	b.avail -= cost
	return true
}

func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.last).Nanoseconds()
	b.last = now
	if elapsed <= 0 || b.rate == 0 || b.avail >= b.capacity {
		// A clock that went backwards only moves the reference point.
		return
	}

	missing := b.capacity - b.avail
	if elapsed >= missing/b.rate {
		b.avail = b.capacity
		return
	}
	b.avail += elapsed * b.rate
}

func toNano(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanoPerToken {
		return maxInt64
	}
	return tokens * nanoPerToken
}
