package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache(cfg *MemoryConfig) (*MemoryCache, *ttlClock) {
	clock := newTTLClock()
	c := NewMemoryCache(cfg)
	c.now = clock.Now
	return c, clock
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		c, _ := newTestMemoryCache(nil)
		require.NoError(t, c.Set(ctx, "k", []byte("value"), time.Minute))

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), got)
	})

	t.Run("missing key", func(t *testing.T) {
		c, _ := newTestMemoryCache(nil)
		_, err := c.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("lazy expiry counts as miss and evicts", func(t *testing.T) {
		c, clock := newTestMemoryCache(nil)
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

		clock.Advance(61 * time.Second)
		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, 0, c.Len(), "expired entry evicted on read")

		stats := c.Stats()
		assert.Equal(t, int64(1), stats.Misses)
		assert.Equal(t, int64(1), stats.Expirations)
	})

	t.Run("entry count bound evicts least recently accessed", func(t *testing.T) {
		c, _ := newTestMemoryCache(&MemoryConfig{MaxEntries: 3, MaxBytes: 1 << 20})
		for i := 0; i < 3; i++ {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute))
		}

		// Touch k0 so k1 becomes the LRU.
		_, err := c.Get(ctx, "k0")
		require.NoError(t, err)

		require.NoError(t, c.Set(ctx, "k3", []byte("v"), time.Minute))
		assert.Equal(t, 3, c.Len())

		_, err = c.Get(ctx, "k1")
		assert.ErrorIs(t, err, ErrKeyNotFound, "LRU entry evicted")
		_, err = c.Get(ctx, "k0")
		assert.NoError(t, err, "recently accessed entry kept")
	})

	t.Run("byte bound evicts until satisfied", func(t *testing.T) {
		// Each entry charges len(key)+len(value)+overhead = 2+100+64 = 166.
		c, _ := newTestMemoryCache(&MemoryConfig{MaxEntries: 1000, MaxBytes: 400})
		value := make([]byte, 100)

		require.NoError(t, c.Set(ctx, "k0", value, time.Minute))
		require.NoError(t, c.Set(ctx, "k1", value, time.Minute))
		require.NoError(t, c.Set(ctx, "k2", value, time.Minute))

		assert.Equal(t, 2, c.Len(), "third insert pushed bytes over the bound")
		_, err := c.Get(ctx, "k0")
		assert.ErrorIs(t, err, ErrKeyNotFound)

		stats := c.Stats()
		assert.LessOrEqual(t, stats.Bytes, int64(400))
		assert.Equal(t, int64(1), stats.Evictions)
	})

	t.Run("replacing a key keeps one entry", func(t *testing.T) {
		c, _ := newTestMemoryCache(nil)
		require.NoError(t, c.Set(ctx, "k", []byte("one"), time.Minute))
		require.NoError(t, c.Set(ctx, "k", []byte("two"), time.Minute))

		assert.Equal(t, 1, c.Len())
		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})

	t.Run("delete", func(t *testing.T) {
		c, _ := newTestMemoryCache(nil)
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
		require.NoError(t, c.Delete(ctx, "k"))
		assert.ErrorIs(t, c.Delete(ctx, "k"), ErrKeyNotFound)
	})

	t.Run("delete multiple ignores missing", func(t *testing.T) {
		c, _ := newTestMemoryCache(nil)
		require.NoError(t, c.Set(ctx, "a", []byte("v"), time.Minute))
		require.NoError(t, c.Set(ctx, "b", []byte("v"), time.Minute))
		require.NoError(t, c.DeleteMultiple(ctx, []string{"a", "b", "missing"}))
		assert.Equal(t, 0, c.Len())
	})

	t.Run("hit rate", func(t *testing.T) {
		c, _ := newTestMemoryCache(nil)
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

		_, _ = c.Get(ctx, "k")
		_, _ = c.Get(ctx, "k")
		_, _ = c.Get(ctx, "missing")

		stats := c.Stats()
		assert.Equal(t, int64(2), stats.Hits)
		assert.Equal(t, int64(1), stats.Misses)
		assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
	})

	t.Run("clear resets stats", func(t *testing.T) {
		c, _ := newTestMemoryCache(nil)
		require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
		_, _ = c.Get(ctx, "k")

		c.Clear()
		stats := c.Stats()
		assert.Equal(t, 0, stats.Entries)
		assert.Zero(t, stats.Hits)
		assert.Zero(t, stats.Bytes)
	})

	t.Run("returned bytes are a copy", func(t *testing.T) {
		c, _ := newTestMemoryCache(nil)
		require.NoError(t, c.Set(ctx, "k", []byte("abc"), time.Minute))

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		got[0] = 'X'

		again, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again)
	})

	t.Run("closed cache rejects operations", func(t *testing.T) {
		c, _ := newTestMemoryCache(nil)
		require.NoError(t, c.Close())

		assert.ErrorIs(t, c.Ping(ctx), ErrCacheClosed)
		_, err := c.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrCacheClosed)
		assert.ErrorIs(t, c.Set(ctx, "k", []byte("v"), time.Minute), ErrCacheClosed)
		assert.NoError(t, c.Close(), "double close is safe")
	})

	t.Run("concurrent access", func(t *testing.T) {
		c := NewMemoryCache(&MemoryConfig{MaxEntries: 100, MaxBytes: 1 << 20})
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					key := fmt.Sprintf("k%d-%d", n, j%20)
					_ = c.Set(context.Background(), key, []byte("v"), time.Minute)
					_, _ = c.Get(context.Background(), key)
					c.Stats()
				}
			}(i)
		}
		wg.Wait()
		assert.LessOrEqual(t, c.Len(), 100)
	})
}
