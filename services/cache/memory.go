package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is a bounded in-process cache with per-entry TTL. When full,
// the least recently used entry is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List
	items      map[string]*list.Element
	now        func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a cache holding at most maxEntries values
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryCache{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get retrieves a value, returning ErrMiss when absent or expired
func (c *MemoryCache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, ErrMiss
	}
	e := el.Value.(*memoryEntry)
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		return nil, ErrMiss
	}
	c.ll.MoveToFront(el)
	return e.value, nil
}

// Set stores a value. A zero expiration keeps it until evicted.
func (c *MemoryCache) Set(key string, value []byte, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if expiration > 0 {
		expiresAt = c.now().Add(expiration)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*memoryEntry)
		e.value, e.expiresAt = value, expiresAt
		c.ll.MoveToFront(el)
		return nil
	}

	c.items[key] = c.ll.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
	for c.ll.Len() > c.maxEntries {
		c.removeElement(c.ll.Back())
	}
	return nil
}

// Delete removes a value
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *MemoryCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*memoryEntry).key)
}
