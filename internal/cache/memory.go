package cache

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMemoryCapacity bounds the number of in-memory entries.
	DefaultMemoryCapacity = 1000
	// DefaultSweepInterval is how often expired entries are removed.
	DefaultSweepInterval = 60 * time.Second
)

type memoryEntry struct {
	payload    string
	expiresAt  time.Time
	insertedAt time.Time
}

func (e *memoryEntry) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryCache is the in-process cache tier: a bounded TTL map of
// serialized payloads keyed by namespaced strings. It's safe for
// concurrent access.
type MemoryCache struct {
	mu       sync.RWMutex
	entries  map[string]*memoryEntry
	capacity int
	hits     uint64
	misses   uint64
	logger   *slog.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryCache creates a memory cache and starts its sweep goroutine.
func NewMemoryCache(capacity int, sweepInterval time.Duration, logger *slog.Logger) *MemoryCache {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &MemoryCache{
		entries:  make(map[string]*memoryEntry),
		capacity: capacity,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	go c.sweepLoop(sweepInterval)

	return c
}

// Get returns the payload for key if present and unexpired. An entry
// found expired is dropped on the spot rather than waiting for the
// sweep.
func (c *MemoryCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && entry.isExpired(time.Now()) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return "", false
	}

	c.hits++
	return entry.payload, true
}

// Set stores payload under key for ttl. When the cache is full the
// oldest-inserted entry is evicted first.
func (c *MemoryCache) Set(key, payload string, ttl time.Duration) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[key] = &memoryEntry{
		payload:    payload,
		expiresAt:  now.Add(ttl),
		insertedAt: now,
	}
}

// Delete removes one entry.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every entry whose key starts with prefix and
// returns the number removed.
func (c *MemoryCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*memoryEntry)
	c.mu.Unlock()
}

// Size returns the current number of entries, expired included.
func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HitRate returns hits, misses and the hit ratio so far.
func (c *MemoryCache) HitRate() (hits, misses uint64, ratio float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	if total == 0 {
		return c.hits, c.misses, 0
	}
	return c.hits, c.misses, float64(c.hits) / float64(total)
}

// Stop shuts down the sweep goroutine.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *MemoryCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.insertedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *MemoryCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expired := 0
	for key, entry := range c.entries {
		if entry.isExpired(now) {
			delete(c.entries, key)
			expired++
		}
	}

	if expired > 0 {
		c.logger.Debug("swept expired memory cache entries",
			"expired_count", expired,
			"remaining_count", len(c.entries),
		)
	}
}
