// ABOUTME: In-memory cache with TTL-based expiration
// ABOUTME: Thread-safe generic cache with background cleanup and claim-once semantics

package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	data      V
	expiresAt time.Time
}

// Cache stores values of type V for a fixed default TTL.
type Cache[V any] struct {
	mu    sync.Mutex
	store map[string]entry[V]
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

// New creates a cache with the given default TTL and starts a cleanup
// goroutine that runs until Close is called.
func New[V any](ttl time.Duration) *Cache[V] {
	c := &Cache[V]{
		store: make(map[string]entry[V]),
		ttl:   ttl,
		now:   time.Now,
		done:  make(chan struct{}),
	}
	go c.startCleanup(time.Minute)
	return c
}

// Claim stores value under key only if no live entry exists.
// Returns true if this call claimed the key.
func (c *Cache[V]) Claim(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.store[key]; ok && !now.After(e.expiresAt) {
		return false
	}
	c.store[key] = entry[V]{data: value, expiresAt: now.Add(c.ttl)}
	return true
}

func (c *Cache[V]) Clear(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache[V]) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.store {
		if now.After(e.expiresAt) {
			delete(c.store, key)
		}
	}
}
