package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// InvalidationPublisher broadcasts dependency invalidations to other
// processes sharing the cache namespace. The bus package provides a NATS
// implementation.
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, dependency string) error
}

// TieredConfig configures a TieredCache.
type TieredConfig struct {
	// Memory configures the L1 in-process store.
	Memory *MemoryConfig

	// TTL configures the lifetime manager shared by all tiers.
	TTL *TTLManagerConfig

	// DefaultTTL applies to entries set without an explicit strategy.
	// Default: 5m
	DefaultTTL time.Duration
}

// DefaultTieredConfig returns the default tiered cache configuration.
func DefaultTieredConfig() *TieredConfig {
	return &TieredConfig{
		Memory:     DefaultMemoryConfig(),
		TTL:        DefaultTTLManagerConfig(),
		DefaultTTL: 5 * time.Minute,
	}
}

// TieredStats aggregates per-tier statistics.
type TieredStats struct {
	Memory         MemoryStats  `json:"memory"`
	TTL            TTLStats     `json:"ttl"`
	Writer         *WriterStats `json:"writer,omitempty"`
	SharedHits     int64        `json:"shared_hits"`
	PersistentHits int64        `json:"persistent_hits"`
}

// TieredCache layers an in-process L1 store over an optional shared tier
// (Redis) and an optional persistent tier (Postgres). Reads check tiers
// fastest-first and promote hits upward; writes go to L1 and the shared
// tier synchronously and to the persistent tier through a write-behind
// Writer.
//
// Entry lifetimes are governed by the TTLManager: a strategy-managed entry
// whose TTL has lapsed is treated as missing in every tier, even if a tier
// still holds bytes for it.
type TieredCache struct {
	cfg        *TieredConfig
	l1         *MemoryCache
	shared     Store
	persistent Store
	writer     *Writer
	ttl        *TTLManager
	publisher  InvalidationPublisher

	mu             sync.Mutex
	sharedHits     int64
	persistentHits int64
}

// NewTieredCache creates a tiered cache with only the in-process tier.
// Attach further tiers with WithShared and WithPersistent before use.
func NewTieredCache(cfg *TieredConfig) *TieredCache {
	if cfg == nil {
		cfg = DefaultTieredConfig()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	return &TieredCache{
		cfg: cfg,
		l1:  NewMemoryCache(cfg.Memory),
		ttl: NewTTLManager(cfg.TTL),
	}
}

// WithShared attaches the shared (L2) tier.
func (t *TieredCache) WithShared(s Store) *TieredCache {
	t.shared = s
	return t
}

// WithPersistent attaches the persistent tier, written to through a
// write-behind Writer with the given configuration.
func (t *TieredCache) WithPersistent(s Store, wcfg *WriterConfig) *TieredCache {
	t.persistent = s
	t.writer = NewWriter(s, wcfg)
	return t
}

// WithPublisher attaches an invalidation broadcast publisher.
func (t *TieredCache) WithPublisher(p InvalidationPublisher) *TieredCache {
	t.publisher = p
	return t
}

// TTLManager exposes the lifetime manager for direct strategy management.
func (t *TieredCache) TTLManager() *TTLManager {
	return t.ttl
}

// Get retrieves a value, checking tiers fastest-first and promoting hits
// upward. Strategy-expired entries are purged from every tier and count as
// misses.
func (t *TieredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if t.ttl.IsExpired(key) {
		t.ttl.Unregister(key)
		_ = t.purge(ctx, key)
		return nil, ErrKeyNotFound
	}

	if value, err := t.l1.Get(ctx, key); err == nil {
		t.ttl.RecordAccess(key, true)
		return value, nil
	}

	if t.shared != nil {
		if value, err := t.shared.Get(ctx, key); err == nil {
			t.mu.Lock()
			t.sharedHits++
			t.mu.Unlock()
			t.promote(ctx, key, value)
			t.ttl.RecordAccess(key, true)
			return value, nil
		}
	}

	if t.persistent != nil {
		if value, err := t.persistent.Get(ctx, key); err == nil {
			t.mu.Lock()
			t.persistentHits++
			t.mu.Unlock()
			t.promote(ctx, key, value)
			if t.shared != nil {
				_ = t.shared.Set(ctx, key, value, t.remainingOrDefault(key))
			}
			t.ttl.RecordAccess(key, true)
			return value, nil
		}
	}

	t.ttl.RecordAccess(key, false)
	return nil, ErrKeyNotFound
}

// promote writes a lower-tier hit into L1 for the entry's remaining
// lifetime.
func (t *TieredCache) promote(ctx context.Context, key string, value []byte) {
	_ = t.l1.Set(ctx, key, value, t.remainingOrDefault(key))
}

// remainingOrDefault returns the entry's remaining managed TTL, or the
// default for unmanaged keys.
func (t *TieredCache) remainingOrDefault(key string) time.Duration {
	if remaining := t.ttl.TTLRemaining(key); remaining > 0 {
		return remaining
	}
	return t.cfg.DefaultTTL
}

// Set stores a value with a fixed TTL. A zero TTL uses the default.
func (t *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.cfg.DefaultTTL
	}
	return t.SetWithStrategy(ctx, key, value, EntryConfig{
		Strategy: StrategyFixed,
		BaseTTL:  ttl,
	})
}

// SetWithStrategy stores a value under a managed lifetime strategy. The
// write lands in L1 and the shared tier synchronously and in the
// persistent tier via the write-behind queue.
func (t *TieredCache) SetWithStrategy(ctx context.Context, key string, value []byte, cfg EntryConfig) error {
	if cfg.BaseTTL <= 0 {
		cfg.BaseTTL = t.cfg.DefaultTTL
	}

	t.ttl.Register(key, cfg, int64(len(key)+len(value)), nil)

	if err := t.l1.Set(ctx, key, value, cfg.BaseTTL); err != nil {
		return err
	}
	if t.shared != nil {
		if err := t.shared.Set(ctx, key, value, cfg.BaseTTL); err != nil {
			return err
		}
	}
	if t.writer != nil {
		t.writer.Enqueue(key, value, cfg.BaseTTL)
	}
	return nil
}

// Delete removes a key from every tier and stops tracking its lifetime.
func (t *TieredCache) Delete(ctx context.Context, key string) error {
	t.ttl.Unregister(key)
	return t.purge(ctx, key)
}

// purge removes a key's bytes from every tier.
func (t *TieredCache) purge(ctx context.Context, key string) error {
	err := t.l1.Delete(ctx, key)
	if t.shared != nil {
		if serr := t.shared.Delete(ctx, key); serr != nil && !errors.Is(serr, ErrKeyNotFound) {
			err = serr
		}
	}
	if t.persistent != nil {
		if perr := t.persistent.Delete(ctx, key); perr != nil && !errors.Is(perr, ErrKeyNotFound) {
			err = perr
		}
	}
	if errors.Is(err, ErrKeyNotFound) {
		return ErrKeyNotFound
	}
	return err
}

// InvalidateDependency removes every entry registered with the named
// dependency from all tiers, broadcasts the invalidation when a publisher
// is attached, and returns the removed keys.
func (t *TieredCache) InvalidateDependency(ctx context.Context, dependency string) ([]string, error) {
	keys := t.applyInvalidation(ctx, dependency)
	if t.publisher != nil {
		if err := t.publisher.PublishInvalidation(ctx, dependency); err != nil {
			return keys, err
		}
	}
	return keys, nil
}

// ApplyInvalidation removes the named dependency's entries from the local
// tiers without re-broadcasting. Bus subscribers call this on received
// invalidations to avoid publish loops.
func (t *TieredCache) ApplyInvalidation(ctx context.Context, dependency string) []string {
	return t.applyInvalidation(ctx, dependency)
}

func (t *TieredCache) applyInvalidation(ctx context.Context, dependency string) []string {
	keys := t.ttl.InvalidateDependency(dependency)
	if len(keys) == 0 {
		return nil
	}
	_ = t.l1.DeleteMultiple(ctx, keys)
	if t.shared != nil {
		_ = t.shared.DeleteMultiple(ctx, keys)
	}
	if t.persistent != nil {
		_ = t.persistent.DeleteMultiple(ctx, keys)
	}
	return keys
}

// Stats aggregates statistics across tiers.
func (t *TieredCache) Stats() TieredStats {
	t.mu.Lock()
	sharedHits := t.sharedHits
	persistentHits := t.persistentHits
	t.mu.Unlock()

	stats := TieredStats{
		Memory:         t.l1.Stats(),
		TTL:            t.ttl.Stats(),
		SharedHits:     sharedHits,
		PersistentHits: persistentHits,
	}
	if t.writer != nil {
		ws := t.writer.Stats()
		stats.Writer = &ws
	}
	return stats
}

// ResourceHealth reports per-tier health for diagnostic reports.
func (t *TieredCache) ResourceHealth() map[string]any {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	health := map[string]any{
		"memory_entries": t.l1.Len(),
	}
	if t.shared != nil {
		health["shared"] = pingStatus(t.shared.Ping(ctx))
	}
	if t.persistent != nil {
		health["persistent"] = pingStatus(t.persistent.Ping(ctx))
	}
	if t.writer != nil {
		health["write_behind_depth"] = t.writer.QueueDepth()
	}
	return health
}

func pingStatus(err error) string {
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

// Ping checks every attached tier.
func (t *TieredCache) Ping(ctx context.Context) error {
	if err := t.l1.Ping(ctx); err != nil {
		return err
	}
	if t.shared != nil {
		if err := t.shared.Ping(ctx); err != nil {
			return err
		}
	}
	if t.persistent != nil {
		if err := t.persistent.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the writer, the TTL sweeper and every attached tier.
func (t *TieredCache) Close() error {
	if t.writer != nil {
		t.writer.Close()
	}
	t.ttl.Close()

	err := t.l1.Close()
	if t.shared != nil {
		if serr := t.shared.Close(); serr != nil {
			err = serr
		}
	}
	if t.persistent != nil {
		if perr := t.persistent.Close(); perr != nil {
			err = perr
		}
	}
	return err
}
