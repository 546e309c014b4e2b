package trend

import (
	"sync"
	"time"

	"github.com/onnwee/lap-trend/backend/timeutil"
)

// RecordTTL is how long a resolved record (found or not) stays cached.
const RecordTTL = 15 * time.Minute

// Resolution is the outcome of a record lookup. Found is false for
// "not found", including lookups that failed upstream.
type Resolution struct {
	Value float64
	Found bool
}

// RecordCacheEntry is a cached Resolution with its expiry.
type RecordCacheEntry struct {
	Resolution
	ExpiresAt time.Time
}

// RecordCache is an in-memory TTL cache of record resolutions. Entries always
// expire; nothing is persisted.
type RecordCache struct {
	mu    sync.RWMutex
	clock timeutil.Clock
	ttl   time.Duration
	items map[RecordKey]RecordCacheEntry
}

// NewRecordCache creates a cache. A nil clock uses the wall clock and a
// non-positive ttl uses RecordTTL.
func NewRecordCache(clock timeutil.Clock, ttl time.Duration) *RecordCache {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if ttl <= 0 {
		ttl = RecordTTL
	}
	return &RecordCache{clock: clock, ttl: ttl}
}

// Get returns the cached resolution if present and unexpired. An expired
// entry is evicted.
func (c *RecordCache) Get(key RecordKey) (Resolution, bool) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return Resolution{}, false
	}
	if c.clock.Now().Before(entry.ExpiresAt) {
		return entry.Resolution, true
	}
	c.mu.Lock()
	// a concurrent Set may have refreshed it
	if cur, still := c.items[key]; still && !c.clock.Now().Before(cur.ExpiresAt) {
		delete(c.items, key)
	}
	c.mu.Unlock()
	return Resolution{}, false
}

// Set stores res with a fresh TTL.
func (c *RecordCache) Set(key RecordKey, res Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[RecordKey]RecordCacheEntry)
	}
	c.items[key] = RecordCacheEntry{Resolution: res, ExpiresAt: c.clock.Now().Add(c.ttl)}
}

// Len reports the number of unexpired entries.
func (c *RecordCache) Len() int {
	now := c.clock.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.items {
		if now.Before(e.ExpiresAt) {
			n++
		}
	}
	return n
}

// Flush drops every entry, expired ones included, and returns how many were
// removed.
func (c *RecordCache) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.items)
	c.items = nil
	return n
}
