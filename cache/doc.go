// Package cache provides the caching half of talon: deterministic cache key
// construction, TTL strategy management with dependency-based invalidation,
// a bounded in-process LRU store, and optional Redis and Postgres tiers
// composed into a tiered cache with write-behind persistence.
//
// # Components
//
//   - KeyBuilder: deterministic, collision-resistant key construction from
//     structured components, with hashing of sensitive fields, time-window
//     bucketing and length capping.
//   - TTLManager: per-entry lifetime tracking under fixed, sliding,
//     adaptive, dependency and conditional strategies, with a background
//     sweeper and a dependency graph for bulk invalidation.
//   - MemoryCache: strict LRU store bounded by entry count and bytes,
//     with lazy expiry on read.
//   - RedisCache / PostgresTier / Writer / TieredCache: optional shared and
//     persistent tiers layered under the in-process store.
//
// # Basic Usage
//
//	keys := cache.NewKeyBuilder().
//	    Add("method", "getBalance").
//	    AddSensitive("account", acct).
//	    WithTimeWindow(time.Minute)
//
//	store := cache.NewMemoryCache(cache.DefaultMemoryConfig())
//	defer store.Close()
//
//	key := keys.Build()
//	if data, err := store.Get(ctx, key); err == nil {
//	    return data, nil
//	}
//	data := fetch()
//	_ = store.Set(ctx, key, data, 5*time.Minute)
//
// The in-process store and the TTL manager are independent structures keyed
// by the same strings; TieredCache keeps them consistent for callers that
// want strategy-driven TTLs rather than plain durations.
package cache
