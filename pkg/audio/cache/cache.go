// ABOUTME: Decode cache keyed by payload identity
// ABOUTME: Bounded insertion-order store that evicts the oldest fifth when full
package cache

import (
	"sync"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio"
)

// DefaultMaxEntries bounds the cache when no size is configured
const DefaultMaxEntries = 50

// evictFraction of entries removed when an insert would overflow
const evictFraction = 0.2

type entry struct {
	key        string
	buf        *audio.Buffer
	insertedAt time.Time
}

// Stats reports cache effectiveness
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache memoizes decoded buffers. Cached buffers are shared and must be
// treated as read-only.
type Cache struct {
	mu      sync.Mutex
	max     int
	entries map[string]*entry
	order   []string // insertion order, oldest first

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most maxEntries buffers
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		max:     maxEntries,
		entries: make(map[string]*entry),
	}
}

// Get returns the buffer cached under key
func (c *Cache) Get(key string) (*audio.Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.buf, true
}

// Put stores buf under key. Re-inserting an existing key replaces the value
// and keeps its original position.
func (c *Cache) Put(key string, buf *audio.Buffer) {
	if buf == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.buf = buf
		return
	}

	if len(c.entries)+1 > c.max {
		c.evictLocked()
	}

	c.entries[key] = &entry{key: key, buf: buf, insertedAt: time.Now()}
	c.order = append(c.order, key)
}

// evictLocked removes the oldest 20% of entries, at least one
func (c *Cache) evictLocked() {
	n := int(float64(len(c.order)) * evictFraction)
	if n < 1 {
		n = 1
	}
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, key := range c.order[:n] {
		delete(c.entries, key)
	}
	c.order = append([]string(nil), c.order[n:]...)
	c.evictions += uint64(n)
}

// Len returns the number of cached buffers
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = nil
}

// Stats returns a snapshot of the counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
