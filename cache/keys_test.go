package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyBuilder(t *testing.T) {
	t.Run("deterministic for reordered maps", func(t *testing.T) {
		a := NewKeyBuilder().
			Add("method", "getBalance").
			Add("params", map[string]any{"account": "acct-1", "currency": "USD", "min": 10}).
			Build()
		b := NewKeyBuilder().
			Add("method", "getBalance").
			Add("params", map[string]any{"min": 10, "currency": "USD", "account": "acct-1"}).
			Build()

		assert.Equal(t, a, b)
	})

	t.Run("nested maps are canonical", func(t *testing.T) {
		a := NewKeyBuilder().Add("q", map[string]any{
			"outer": map[string]any{"b": 2, "a": 1},
		}).Build()
		b := NewKeyBuilder().Add("q", map[string]any{
			"outer": map[string]any{"a": 1, "b": 2},
		}).Build()
		assert.Equal(t, a, b)
	})

	t.Run("different values differ", func(t *testing.T) {
		a := NewKeyBuilder().Add("method", "getBalance").Add("account", "acct-1").Build()
		b := NewKeyBuilder().Add("method", "getBalance").Add("account", "acct-2").Build()
		assert.NotEqual(t, a, b)
	})

	t.Run("component order matters", func(t *testing.T) {
		a := NewKeyBuilder().Add("x", 1).Add("y", 2).Build()
		b := NewKeyBuilder().Add("y", 2).Add("x", 1).Build()
		assert.NotEqual(t, a, b)
	})

	t.Run("prefix", func(t *testing.T) {
		key := NewKeyBuilder().WithPrefix("talon").Add("m", "sync").Build()
		assert.True(t, strings.HasPrefix(key, "talon:"), key)
	})

	t.Run("sensitive components are hashed", func(t *testing.T) {
		secret := "super-secret-account-id"
		key := NewKeyBuilder().AddSensitive("account", secret).Build()

		assert.NotContains(t, key, secret)
		assert.Contains(t, key, "account=")

		// Hashing is deterministic.
		again := NewKeyBuilder().AddSensitive("account", secret).Build()
		assert.Equal(t, key, again)

		other := NewKeyBuilder().AddSensitive("account", "different").Build()
		assert.NotEqual(t, key, other)
	})

	t.Run("time window buckets keys", func(t *testing.T) {
		base := time.Date(2025, 6, 1, 12, 0, 10, 0, time.UTC)

		builder := NewKeyBuilder().Add("m", "price").WithTimeWindow(time.Minute)
		builder.now = func() time.Time { return base }
		first := builder.Build()

		builder.now = func() time.Time { return base.Add(30 * time.Second) }
		sameWindow := builder.Build()

		builder.now = func() time.Time { return base.Add(2 * time.Minute) }
		nextWindow := builder.Build()

		assert.Equal(t, first, sameWindow)
		assert.NotEqual(t, first, nextWindow)
	})

	t.Run("long keys are compressed", func(t *testing.T) {
		long := strings.Repeat("v", 1000)
		key := NewKeyBuilder().WithMaxLength(100).Add("blob", long).Build()

		assert.Equal(t, 100, len(key))
		assert.Contains(t, key, "#")

		// Distinct long inputs keep distinct keys through the hash suffix.
		other := NewKeyBuilder().WithMaxLength(100).Add("blob", long+"x").Build()
		assert.NotEqual(t, key, other)
	})

	t.Run("struct and scalar components", func(t *testing.T) {
		type query struct {
			Account string `json:"account"`
			Limit   int    `json:"limit"`
		}
		a := NewKeyBuilder().Add("q", query{Account: "a", Limit: 5}).Build()
		b := NewKeyBuilder().Add("q", query{Account: "a", Limit: 5}).Build()
		assert.Equal(t, a, b)

		withInt := NewKeyBuilder().Add("n", 42).Build()
		assert.Contains(t, withInt, "n=42")
	})

	t.Run("large integers keep precision", func(t *testing.T) {
		a := NewKeyBuilder().Add("n", int64(9007199254740993)).Build()
		b := NewKeyBuilder().Add("n", int64(9007199254740994)).Build()
		assert.NotEqual(t, a, b)
	})
}
