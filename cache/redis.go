package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the shared Store tier backed by Redis. Keys are namespaced
// with the configured prefix so multiple applications can share a
// deployment; TTL enforcement is delegated to Redis itself.
type RedisCache struct {
	client *redis.Client
	config *RedisConfig
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(config *RedisConfig) (*RedisCache, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Address(),
		Password:        config.Password,
		DB:              config.DB,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: config.MinRetryBackoff,
		MaxRetryBackoff: config.MaxRetryBackoff,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		PoolSize:        config.PoolSize,
		MinIdleConns:    config.MinIdleConns,
		ConnMaxIdleTime: config.MaxIdleTime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		config: config,
	}, nil
}

// namespaced prefixes a key with the configured namespace.
func (r *RedisCache) namespaced(key string) string {
	if r.config.Namespace == "" {
		return key
	}
	return r.config.Namespace + ":" + key
}

// Get retrieves a value from the cache
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.namespaced(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, NewCacheError("failed to get key", true).WithError(err)
	}
	return val, nil
}

// Set stores a value in the cache with optional TTL
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}

	if err := r.client.Set(ctx, r.namespaced(key), value, ttl).Err(); err != nil {
		return NewCacheError("failed to set key", true).WithError(err)
	}
	return nil
}

// Delete removes a value from the cache
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	result := r.client.Del(ctx, r.namespaced(key))
	if err := result.Err(); err != nil {
		return NewCacheError("failed to delete key", true).WithError(err)
	}
	if result.Val() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// DeleteMultiple removes a batch of keys, ignoring missing ones.
func (r *RedisCache) DeleteMultiple(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	namespaced := make([]string, len(keys))
	for i, key := range keys {
		namespaced[i] = r.namespaced(key)
	}
	if err := r.client.Del(ctx, namespaced...).Err(); err != nil {
		return NewCacheError("failed to delete multiple keys", true).WithError(err)
	}
	return nil
}

// DeleteByPrefix removes every key in the namespace starting with prefix,
// using incremental SCAN so large deployments are not blocked. Returns the
// number of keys removed.
func (r *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	// SCAN patterns treat these as wildcards; escape them in the literal
	// prefix before appending the trailing wildcard so a prefix containing
	// one cannot over-match.
	escaped := strings.NewReplacer(
		`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`,
	).Replace(r.namespaced(prefix))
	pattern := escaped + "*"

	var removed int64
	iter := r.client.Scan(ctx, 0, pattern, 256).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 256 {
			n, err := r.client.Del(ctx, batch...).Result()
			removed += n
			if err != nil {
				return removed, NewCacheError("failed to delete by prefix", true).WithError(err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, NewCacheError("scan failed", true).WithError(err)
	}
	if len(batch) > 0 {
		n, err := r.client.Del(ctx, batch...).Result()
		removed += n
		if err != nil {
			return removed, NewCacheError("failed to delete by prefix", true).WithError(err)
		}
	}
	return removed, nil
}

// TTL returns the remaining time to live of a key. Keys without an
// expiration return zero.
func (r *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, r.namespaced(key)).Result()
	if err != nil {
		return 0, NewCacheError("failed to get TTL", true).WithError(err)
	}
	if ttl == -2 {
		return 0, ErrKeyNotFound
	}
	if ttl == -1 {
		return 0, nil
	}
	return ttl, nil
}

// Ping checks if the cache is healthy
func (r *RedisCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewCacheError("ping failed", false).WithError(err)
	}
	return nil
}

// PoolStats returns Redis connection pool stats
func (r *RedisCache) PoolStats() *redis.PoolStats {
	if r.client != nil {
		return r.client.PoolStats()
	}
	return nil
}

// Close closes the cache connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
