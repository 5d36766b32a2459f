// Package load holds hot-path benchmarks that run without backing
// services: the in-process cache tier, key construction and the executor
// pipeline overhead.
package load

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/perchlabs/talon/cache"
	"github.com/perchlabs/talon/sdk"
)

func randBytes(n int) []byte {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return b
}

func BenchmarkMemoryCacheSet(b *testing.B) {
	ctx := context.Background()

	sizes := []struct {
		name string
		size int
	}{
		{"Small_100B", 100},
		{"Medium_1KB", 1024},
		{"Large_10KB", 10240},
		{"XLarge_100KB", 102400},
	}

	for _, bm := range sizes {
		b.Run(bm.name, func(b *testing.B) {
			mc := cache.NewMemoryCache(&cache.MemoryConfig{
				MaxEntries: 100000,
				MaxBytes:   1 << 30,
			})
			defer mc.Close()
			value := randBytes(bm.size)

			b.ReportAllocs()
			b.SetBytes(int64(len(value)))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				key := fmt.Sprintf("bench-key-%d", i%10000)
				if err := mc.Set(ctx, key, value, time.Hour); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkMemoryCacheGet(b *testing.B) {
	ctx := context.Background()
	mc := cache.NewMemoryCache(&cache.MemoryConfig{
		MaxEntries: 100000,
		MaxBytes:   1 << 30,
	})
	defer mc.Close()

	const numKeys = 10000
	value := randBytes(1024)
	for i := 0; i < numKeys; i++ {
		mc.Set(ctx, fmt.Sprintf("bench-get-%d", i), value, time.Hour)
	}

	b.ReportAllocs()
	b.SetBytes(int64(len(value)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := mc.Get(ctx, fmt.Sprintf("bench-get-%d", i%numKeys)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTieredCacheMixed(b *testing.B) {
	ctx := context.Background()

	tc := cache.NewTieredCache(&cache.TieredConfig{
		Memory: &cache.MemoryConfig{MaxEntries: 100000, MaxBytes: 1 << 30},
	})
	defer tc.Close()

	const numKeys = 1000
	value := randBytes(1024)
	for i := 0; i < numKeys; i++ {
		tc.Set(ctx, fmt.Sprintf("mixed-%d", i), value, time.Hour)
	}

	b.ReportAllocs()
	b.ResetTimer()

	// 70% reads, 30% writes
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			key := fmt.Sprintf("mixed-%d", r.Intn(numKeys))
			if r.Float32() < 0.7 {
				tc.Get(ctx, key)
			} else {
				tc.Set(ctx, key, value, time.Hour)
			}
		}
	})
}

func BenchmarkKeyBuilder(b *testing.B) {
	b.Run("plain components", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			cache.NewKeyBuilder().
				WithPrefix("talon").
				Add("method", "getBalance").
				Add("currency", "USD").
				Build()
		}
	})

	b.Run("sensitive component", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			cache.NewKeyBuilder().
				WithPrefix("talon").
				Add("method", "getBalance").
				AddSensitive("account", "acct-93ab-1f7e").
				Build()
		}
	})

	b.Run("structured component", func(b *testing.B) {
		params := map[string]any{
			"page":   3,
			"limit":  50,
			"filter": []string{"active", "verified"},
		}
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			cache.NewKeyBuilder().
				WithPrefix("talon").
				Add("method", "listAccounts").
				Add("params", params).
				WithTimeWindow(time.Minute).
				Build()
		}
	})
}

func BenchmarkExecutorSuccess(b *testing.B) {
	exec, err := sdk.NewExecutor(nil)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	op := func(ctx context.Context, args []any) (any, error) {
		return "ok", nil
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := exec.Execute(ctx, "bench.noop", op, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkExecutorSuccessParallel(b *testing.B) {
	exec, err := sdk.NewExecutor(nil)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	op := func(ctx context.Context, args []any) (any, error) {
		return "ok", nil
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := exec.Execute(ctx, "bench.noop", op, nil); err != nil {
				b.Fatal(err)
			}
		}
	})
}
