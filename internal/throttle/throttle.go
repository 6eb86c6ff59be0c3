// ABOUTME: Per-key rate limiter with TTL eviction of idle keys.
// ABOUTME: Used to throttle typing notifications per connection+conversation.

package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterEntry pairs a rate limiter with the last time it was used so
// idle entries can be evicted.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Keyed hands out one token-bucket limiter per key and garbage-collects
// limiters that have gone idle. Keys are cheap to create, so callers use
// them freely (one per connection+conversation pair) and let the
// background sweep reclaim them.
type Keyed struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	interval time.Duration
	idleTTL  time.Duration
	done     chan struct{}
	closed   bool
}

// NewKeyed creates a keyed limiter that allows one event per key per
// interval, with a burst of one. A background goroutine periodically
// evicts keys that have been idle longer than ten intervals.
func NewKeyed(interval time.Duration) *Keyed {
	k := &Keyed{
		limiters: make(map[string]*limiterEntry),
		interval: interval,
		idleTTL:  10 * interval,
		done:     make(chan struct{}),
	}
	go k.sweep()
	return k
}

// Allow reports whether an event for the given key may proceed now.
// The first call for a key always succeeds; subsequent calls succeed at
// most once per interval.
func (k *Keyed) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(k.interval), 1)}
		k.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Forget drops all state for the key immediately. Called when the
// connection that owned the key goes away.
func (k *Keyed) Forget(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.limiters, key)
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// sweep runs in a background goroutine, periodically removing idle keys.
func (k *Keyed) sweep() {
	ticker := time.NewTicker(k.idleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.evictIdle()
		case <-k.done:
			return
		}
	}
}

// evictIdle removes every key idle longer than the TTL.
func (k *Keyed) evictIdle() {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	for key, entry := range k.limiters {
		if now.Sub(entry.lastSeen) > k.idleTTL {
			delete(k.limiters, key)
		}
	}
}

// Close stops the background sweep goroutine. Safe to call multiple times.
func (k *Keyed) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.closed {
		close(k.done)
		k.closed = true
	}
}
