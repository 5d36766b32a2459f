package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// entryOverhead is the fixed per-entry bookkeeping charge added to the
// estimated byte size of each cached entry.
const entryOverhead = 64

// MemoryConfig configures the in-process LRU store.
type MemoryConfig struct {
	// MaxEntries bounds the entry count.
	// Default: 10000
	MaxEntries int

	// MaxBytes bounds the estimated memory footprint.
	// Default: 64MB
	MaxBytes int64

	// DefaultTTL applies when Set is called with a zero TTL.
	// Default: 5m
	DefaultTTL time.Duration
}

// DefaultMemoryConfig returns the default in-process store configuration.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		MaxEntries: 10000,
		MaxBytes:   64 << 20,
		DefaultTTL: 5 * time.Minute,
	}
}

// MemoryStats reports in-process store activity since the last Clear.
type MemoryStats struct {
	Entries     int     `json:"entries"`
	Bytes       int64   `json:"bytes"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
}

// memoryEntry is one cached value plus its bookkeeping.
type memoryEntry struct {
	key         string
	value       []byte
	expiresAt   time.Time
	size        int64
	accessCount int64
}

// MemoryCache is a strict-LRU in-process store bounded independently by
// entry count and estimated bytes. Recency is tracked by logical access
// order, not wall clock: every Get and Set moves the entry to the front,
// and eviction always removes the least recently accessed entry until both
// bounds are satisfied.
//
// TTL expiry is lazy: an expired entry is detected and evicted on the Get
// that finds it, counting as a miss. All methods are safe for concurrent
// use.
type MemoryCache struct {
	cfg *MemoryConfig

	mu      sync.Mutex
	order   *list.List // front = most recently accessed
	entries map[string]*list.Element
	bytes   int64
	closed  bool

	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	// now is injected for tests; defaults to time.Now
	now func() time.Time
}

// NewMemoryCache creates an in-process LRU store.
func NewMemoryCache(cfg *MemoryConfig) *MemoryCache {
	if cfg == nil {
		cfg = DefaultMemoryConfig()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 << 20
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	return &MemoryCache{
		cfg:     cfg,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get retrieves a value. Expired entries are evicted and count as misses.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, ErrKeyNotFound
	}

	e := elem.Value.(*memoryEntry)
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(elem)
		c.expirations++
		c.misses++
		return nil, ErrKeyNotFound
	}

	c.order.MoveToFront(elem)
	e.accessCount++
	c.hits++

	// Copy so callers cannot mutate the cached bytes.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a value, replacing any existing entry, then evicts least
// recently accessed entries until both bounds are satisfied.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	e := &memoryEntry{
		key:       key,
		value:     stored,
		expiresAt: c.now().Add(ttl),
		size:      int64(len(key)+len(stored)) + entryOverhead,
	}
	c.entries[key] = c.order.PushFront(e)
	c.bytes += e.size

	for (c.order.Len() > c.cfg.MaxEntries || c.bytes > c.cfg.MaxBytes) && c.order.Len() > 1 {
		c.removeLocked(c.order.Back())
		c.evictions++
	}
	// A single entry larger than MaxBytes is allowed to stay; evicting the
	// value just written would make Set a silent no-op.
	return nil
}

// Delete removes a value. Deleting a missing key returns ErrKeyNotFound.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}
	elem, ok := c.entries[key]
	if !ok {
		return ErrKeyNotFound
	}
	c.removeLocked(elem)
	return nil
}

// DeleteMultiple removes a batch of keys, ignoring missing ones.
func (c *MemoryCache) DeleteMultiple(ctx context.Context, keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrCacheClosed
	}
	for _, key := range keys {
		if elem, ok := c.entries[key]; ok {
			c.removeLocked(elem)
		}
	}
	return nil
}

// removeLocked unlinks an element and releases its bytes. Callers hold mu.
func (c *MemoryCache) removeLocked(elem *list.Element) {
	e := elem.Value.(*memoryEntry)
	c.order.Remove(elem)
	delete(c.entries, e.key)
	c.bytes -= e.size
}

// Len returns the number of stored entries, including any not yet swept
// expired ones.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats reports activity since the last Clear.
func (c *MemoryCache) Stats() MemoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := MemoryStats{
		Entries:     c.order.Len(),
		Bytes:       c.bytes,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// Clear removes all entries and resets statistics.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.bytes = 0
	c.hits = 0
	c.misses = 0
	c.evictions = 0
	c.expirations = 0
}

// Ping reports whether the store is usable.
func (c *MemoryCache) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	return nil
}

// Close marks the store closed and releases its entries.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.order.Init()
	c.entries = make(map[string]*list.Element)
	c.bytes = 0
	return nil
}
