package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Defaults for key construction.
const (
	// DefaultMaxKeyLength caps generated keys; longer keys are compressed
	// to a prefix plus a hash suffix.
	DefaultMaxKeyLength = 250

	// sensitiveHashLength is the number of hex characters kept from the
	// SHA-256 of a sensitive component.
	sensitiveHashLength = 16
)

// keyComponent is one named, ordered part of a cache key.
type keyComponent struct {
	name      string
	value     any
	sensitive bool
}

// KeyBuilder constructs deterministic, collision-resistant cache keys from
// ordered named components. Component values are canonicalized (object keys
// sorted recursively) before encoding, so structurally equal inputs produce
// identical keys regardless of map iteration or property insertion order.
//
// Components marked sensitive are one-way hashed before inclusion, so raw
// values such as account identifiers never appear in key strings.
//
// Example:
//
//	key := cache.NewKeyBuilder().
//	    WithPrefix("talon").
//	    Add("method", "getBalance").
//	    AddSensitive("account", accountID).
//	    WithTimeWindow(time.Minute).
//	    Build()
type KeyBuilder struct {
	prefix     string
	components []keyComponent
	timeWindow time.Duration
	maxLength  int

	// now is injected for tests; defaults to time.Now
	now func() time.Time
}

// NewKeyBuilder creates an empty key builder with the default length cap.
func NewKeyBuilder() *KeyBuilder {
	return &KeyBuilder{
		maxLength: DefaultMaxKeyLength,
		now:       time.Now,
	}
}

// WithPrefix sets a namespace prefix for the generated key.
func (b *KeyBuilder) WithPrefix(prefix string) *KeyBuilder {
	b.prefix = prefix
	return b
}

// WithMaxLength overrides the key length cap. Values too small to hold the
// hash suffix are ignored.
func (b *KeyBuilder) WithMaxLength(n int) *KeyBuilder {
	if n > sensitiveHashLength+1 {
		b.maxLength = n
	}
	return b
}

// WithTimeWindow buckets the key by time: all keys built within the same
// window share a bucket component, so time-sensitive queries expire
// together at window boundaries. Zero disables bucketing.
func (b *KeyBuilder) WithTimeWindow(window time.Duration) *KeyBuilder {
	b.timeWindow = window
	return b
}

// Add appends a named component.
func (b *KeyBuilder) Add(name string, value any) *KeyBuilder {
	b.components = append(b.components, keyComponent{name: name, value: value})
	return b
}

// AddSensitive appends a component whose value is hashed before inclusion.
func (b *KeyBuilder) AddSensitive(name string, value any) *KeyBuilder {
	b.components = append(b.components, keyComponent{name: name, value: value, sensitive: true})
	return b
}

// Build assembles the key. Component order is the order of Add calls;
// building twice with the same components yields the same key within the
// same time window.
func (b *KeyBuilder) Build() string {
	var parts []string
	if b.prefix != "" {
		parts = append(parts, b.prefix)
	}

	for _, c := range b.components {
		encoded := canonicalJSON(c.value)
		if c.sensitive {
			encoded = hashSensitive(encoded)
		}
		parts = append(parts, c.name+"="+encoded)
	}

	if b.timeWindow > 0 {
		bucket := b.now().UnixNano() / int64(b.timeWindow)
		parts = append(parts, fmt.Sprintf("t=%d", bucket))
	}

	key := strings.Join(parts, ":")
	if len(key) > b.maxLength {
		key = compressKey(key, b.maxLength)
	}
	return key
}

// canonicalJSON serializes a value deterministically. The value is round
// tripped through generic JSON so map keys come out sorted at every level;
// numbers are decoded with json.Number to avoid float64 precision loss on
// large integers. Values that cannot be marshalled fall back to their fmt
// representation, which keeps key construction total.
func canonicalJSON(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return string(raw)
	}

	// encoding/json sorts map keys, so re-encoding the generic form is
	// canonical for arbitrarily nested objects.
	canonical, err := json.Marshal(generic)
	if err != nil {
		return string(raw)
	}
	return string(canonical)
}

// hashSensitive one-way hashes an encoded component value.
func hashSensitive(encoded string) string {
	sum := sha256.Sum256([]byte(encoded))
	return hex.EncodeToString(sum[:])[:sensitiveHashLength]
}

// compressKey shortens an over-long key to a prefix plus an xxhash suffix
// of the full key, preserving readability while keeping keys distinct.
func compressKey(key string, maxLength int) string {
	suffix := fmt.Sprintf("%016x", xxhash.Sum64String(key))
	return key[:maxLength-len(suffix)-1] + "#" + suffix
}
