package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryQueryCache is the default in-process cache: bounded capacity with
// oldest-inserted eviction (insertion order, not access order) and a fixed
// TTL per entry. Updating an existing key refreshes its value and expiry
// but keeps its original queue position.
type MemoryQueryCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*entry
	order    []string
	now      func() time.Time
}

func NewMemoryQueryCache(capacity int, ttl time.Duration) *MemoryQueryCache {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryQueryCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*entry, capacity),
		order:    make([]string, 0, capacity),
		now:      time.Now,
	}
}

func (c *MemoryQueryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expiresAt) {
		c.removeLocked(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryQueryCache) Put(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = c.now().Add(c.ttl)
		return nil
	}

	for len(c.entries) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &entry{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	c.order = append(c.order, key)
	return nil
}

func (c *MemoryQueryCache) InvalidatePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.order[:0]
	for _, key := range c.order {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		} else {
			kept = append(kept, key)
		}
	}
	c.order = kept
	return nil
}

func (c *MemoryQueryCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry, c.capacity)
	c.order = c.order[:0]
	return nil
}

// Len reports live entries, counting expired-but-unswept ones.
func (c *MemoryQueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryQueryCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
