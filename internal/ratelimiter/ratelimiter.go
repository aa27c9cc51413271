// Package ratelimiter throttles WebDAV requests with token buckets.
//
// RateLimiter guards the whole listener; KeyedLimiter keeps one bucket per
// client address so a single noisy client cannot starve the others.
package ratelimiter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"
)

// unlimited stands in for rate.Inf, whose burst handling differs.
const unlimited = 1_000_000_000

// DefaultIdle is how long a client bucket survives without traffic.
const DefaultIdle = 10 * time.Minute

// RateLimiter provides request rate limiting using the token bucket algorithm.
//
// Tokens are added at a constant rate and each request consumes one. The
// burst is the bucket capacity, so short spikes above the sustained rate are
// served immediately.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a new RateLimiter with the specified rate and burst capacity.
//
// Special cases:
//   - requestsPerSecond = 0: no rate limiting
//   - burst = 0: defaults to requestsPerSecond
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = unlimited
	}
	if burst == 0 {
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether one request may proceed now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// AllowN reports whether n requests may proceed now. Either all n tokens
// are consumed or none are.
func (r *RateLimiter) AllowN(n uint) bool {
	return r.limiter.AllowN(time.Now(), int(n))
}

// SetLimit changes the sustained rate. Zero removes the limit.
func (r *RateLimiter) SetLimit(requestsPerSecond uint) {
	if requestsPerSecond == 0 {
		r.limiter.SetLimit(rate.Limit(unlimited))
		r.limiter.SetBurst(unlimited)
		return
	}
	r.limiter.SetLimit(rate.Limit(requestsPerSecond))
}

// SetBurst changes the bucket capacity.
func (r *RateLimiter) SetBurst(burst uint) {
	r.limiter.SetBurst(int(burst))
}

// Tokens returns the current number of available tokens (may be fractional).
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

type bucket struct {
	limiter  *RateLimiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// KeyedLimiter keeps an independent token bucket per key, typically the
// client address. Buckets idle for longer than the idle window are dropped
// by Sweep, which lets the limiter be registered with the gc collector.
//
// Thread safety:
// All methods are safe for concurrent use.
type KeyedLimiter struct {
	rps     uint
	burst   uint
	idle    time.Duration
	buckets *xsync.Map[string, *bucket]
}

// NewKeyed creates a per-key limiter. A zero idle uses DefaultIdle.
func NewKeyed(requestsPerSecond, burst uint, idle time.Duration) *KeyedLimiter {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &KeyedLimiter{
		rps:     requestsPerSecond,
		burst:   burst,
		idle:    idle,
		buckets: xsync.NewMap[string, *bucket](),
	}
}

// Allow consumes a token from the bucket of key.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.AllowAt(key, time.Now())
}

// AllowAt is Allow with an explicit observation time for the idle window.
func (k *KeyedLimiter) AllowAt(key string, now time.Time) bool {
	b, ok := k.buckets.Load(key)
	if !ok {
		b, _ = k.buckets.LoadOrStore(key, &bucket{limiter: New(k.rps, k.burst)})
	}
	b.lastSeen.Store(now.UnixNano())
	return b.limiter.Allow()
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	return k.buckets.Size()
}

// Sweep drops buckets that have not been used within the idle window.
func (k *KeyedLimiter) Sweep(now time.Time) (int, error) {
	cutoff := now.Add(-k.idle).UnixNano()
	removed := 0

	k.buckets.Range(func(key string, _ *bucket) bool {
		k.buckets.Compute(key, func(current *bucket, loaded bool) (*bucket, xsync.ComputeOp) {
			if loaded && current.lastSeen.Load() < cutoff {
				removed++
				return current, xsync.DeleteOp
			}
			return current, xsync.CancelOp
		})
		return true
	})

	return removed, nil
}

// CountExpired reports how many buckets Sweep would drop.
func (k *KeyedLimiter) CountExpired(now time.Time) (int, error) {
	cutoff := now.Add(-k.idle).UnixNano()
	count := 0
	k.buckets.Range(func(_ string, b *bucket) bool {
		if b.lastSeen.Load() < cutoff {
			count++
		}
		return true
	})
	return count, nil
}
