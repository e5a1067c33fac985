package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"insight-stream/src/logger"

	"golang.org/x/sync/singleflight"
)

// -----------------------------------------------------------------------------
// Request Deduplication Cache
//
// Cache collapses concurrent identical expensive lookups into one upstream
// call (single-flight) and keeps the result for a short TTL. Failures are
// cached too, with a shorter TTL, so an upstream outage is not amplified by
// every dashboard client retrying at once.
//
// Invariant: for any key, at most one compute call is outstanding at a time;
// every caller that arrives while it runs receives the same result or error.
// -----------------------------------------------------------------------------

// EntryState describes the lifecycle position of a cache key.
type EntryState string

const (
	StateMissing  EntryState = "missing"
	StateInFlight EntryState = "in_flight"
	StateReady    EntryState = "ready"
	StateExpired  EntryState = "expired"
)

// -----------------------------------------------------------------------------

type entry[V any] struct {
	value     V
	err       error
	expiresAt time.Time
}

func (e *entry[V]) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// -----------------------------------------------------------------------------

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Shared    int64 `json:"shared"`
	Evictions int64 `json:"evictions"`
}

// -----------------------------------------------------------------------------

type Cache[V any] struct {
	successTTL time.Duration
	failureTTL time.Duration

	mu      sync.RWMutex
	entries map[string]*entry[V]
	waiters map[string]int // callers currently blocked per in-flight key

	group singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	shared    atomic.Int64
	evictions atomic.Int64

	logger *logger.Logger

	// Background sweep coordination
	shutdown chan struct{}
	done     chan struct{}
}

// -----------------------------------------------------------------------------

// NewCache builds a cache and starts its periodic sweep. failureTTL should be
// shorter than successTTL; config validation enforces that upstream.
func NewCache[V any](successTTL, failureTTL, sweepInterval time.Duration, log *logger.Logger) *Cache[V] {
	c := &Cache[V]{
		successTTL: successTTL,
		failureTTL: failureTTL,
		entries:    make(map[string]*entry[V]),
		waiters:    make(map[string]int),
		logger:     log,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	go c.sweepLoop(sweepInterval)
	return c
}

// -----------------------------------------------------------------------------

// Resolve returns the cached result for key, or runs compute exactly once no
// matter how many callers arrive concurrently. Expired results are never
// reused. The compute runs under the context of the caller that started it.
func (c *Cache[V]) Resolve(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	now := time.Now()

	// Fast path: fresh result (success or cached failure).
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && !e.isExpired(now) {
		c.hits.Add(1)
		return e.value, e.err
	}

	c.misses.Add(1)

	c.mu.Lock()
	c.waiters[key]++
	c.mu.Unlock()

	v, err, sharedFlag := c.group.Do(key, func() (interface{}, error) {
		// A caller that also saw the stale entry may have refreshed it while
		// we queued behind the flight lock.
		c.mu.RLock()
		cur, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && !cur.isExpired(time.Now()) {
			return cur.value, cur.err
		}

		val, computeErr := compute(ctx)

		ttl := c.successTTL
		if computeErr != nil {
			ttl = c.failureTTL
		}

		c.mu.Lock()
		c.entries[key] = &entry[V]{
			value:     val,
			err:       computeErr,
			expiresAt: time.Now().Add(ttl),
		}
		c.mu.Unlock()

		// The error travels inside the entry so every waiter of this flight
		// and every caller within the failure TTL sees the identical error.
		return val, computeErr
	})

	c.mu.Lock()
	if c.waiters[key] <= 1 {
		delete(c.waiters, key)
	} else {
		c.waiters[key]--
	}
	c.mu.Unlock()

	if sharedFlag {
		c.shared.Add(1)
	}

	if v == nil {
		var zero V
		return zero, err
	}
	return v.(V), err
}

// -----------------------------------------------------------------------------

// Invalidate drops the entry for key so the next Resolve recomputes.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.evictions.Add(1)
	}
	c.mu.Unlock()
	c.group.Forget(key)
}

// -----------------------------------------------------------------------------

// State reports the lifecycle position of a key. Used by tests and the
// metrics endpoint; never on the hot path.
func (c *Cache[V]) State(key string) EntryState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.waiters[key] > 0 {
		return StateInFlight
	}
	e, ok := c.entries[key]
	if !ok {
		return StateMissing
	}
	if e.isExpired(time.Now()) {
		return StateExpired
	}
	return StateReady
}

// -----------------------------------------------------------------------------

// Waiters returns the number of callers currently blocked on the key's flight.
func (c *Cache[V]) Waiters(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waiters[key]
}

// -----------------------------------------------------------------------------

// Stats returns a snapshot of the hit/miss counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Shared:    c.shared.Load(),
		Evictions: c.evictions.Load(),
	}
}

// -----------------------------------------------------------------------------

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// -----------------------------------------------------------------------------

// sweepLoop evicts expired entries so keys no longer in demand do not leak.
// Lazy eviction on access handles the hot keys; this catches the rest.
func (c *Cache[V]) sweepLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.entries {
				if e.isExpired(now) {
					delete(c.entries, k)
					c.evictions.Add(1)
				}
			}
			c.mu.Unlock()
		}
	}
}

// -----------------------------------------------------------------------------

// Stop terminates the sweep goroutine. In-flight computations finish on their
// own; their waiters are already holding the shared result channel.
func (c *Cache[V]) Stop() {
	close(c.shutdown)
	<-c.done
}
