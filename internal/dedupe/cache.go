// ABOUTME: Thread-safe TTL cache for suppressing duplicate send requests.
// ABOUTME: Tracks client idempotency keys with bounded size and lazy expiry.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry pairs a key's mark time with its position in the eviction order.
type entry struct {
	markedAt time.Time
	element  *list.Element
}

// Cache remembers idempotency keys for a sliding window so a retried
// POST /api/send cannot run the same turn twice. Entries expire after the
// TTL and the oldest key is evicted once the cache reaches its size cap.
type Cache struct {
	mu      sync.Mutex
	keys    map[string]*entry
	order   *list.List // oldest key at the front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum key count. A background
// goroutine sweeps expired keys once a minute until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		keys:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// SeenAndMark atomically reports whether the key is already live and marks
// it if not. Returns true for a duplicate, false for a fresh key that is now
// recorded. A single mutex section keeps retry races from slipping through.
func (c *Cache) SeenAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.keys[key]; ok && time.Since(e.markedAt) < c.ttl {
		return true
	}
	c.mark(key)
	return false
}

// Seen reports whether the key is live without marking it.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.keys[key]
	return ok && time.Since(e.markedAt) < c.ttl
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

// mark records the key now. Must be called with mu held.
func (c *Cache) mark(key string) {
	now := time.Now()

	if e, ok := c.keys[key]; ok {
		e.markedAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.keys) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.keys, oldest)
		}
	}

	c.keys[key] = &entry{
		markedAt: now,
		element:  c.order.PushBack(key),
	}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops every expired key.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.keys {
		if now.Sub(e.markedAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.keys, key)
		}
	}
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
