// Package cache provides a process-wide in-memory key-value store with
// per-entry TTL expiry, plus a memoizing wrapper for idempotent provider
// calls. It is the only shared mutable state in the system and is safe for
// concurrent use from multiple in-flight orchestration runs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Cache is a mutex-guarded map with lazy expiry: entries past their deadline
// are treated as absent and evicted at read time. An active sweep is
// available via CleanupExpired for callers that want scheduled cleanup.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithNow overrides the clock. Tests use this to avoid sleeping.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache. defaultTTL applies to Set calls with a zero TTL.
func New(defaultTTL time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key. The second return is false when the key is
// absent or its entry has expired; expired entries are evicted on read.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// overwritten the entry since the read.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, overwriting any existing entry. A zero ttl
// uses the cache default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Len returns the number of entries, including any not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// CleanupExpired removes all expired entries and returns the count removed.
func (c *Cache) CleanupExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Key derives a stable cache key from an operation identity and its
// arguments. Arguments are serialized as JSON and hashed so keys stay
// bounded regardless of argument size.
func Key(op string, args ...any) string {
	h := sha256.New()
	h.Write([]byte(op))
	for _, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			// Unserializable arguments fall back to their Go representation.
			b = []byte(fmt.Sprintf("%#v", arg))
		}
		h.Write([]byte{0})
		h.Write(b)
	}
	return op + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// Memoize returns the cached result for key when present, and otherwise
// invokes fn and caches its result for ttl. Errors are never cached so the
// next call retries immediately.
func Memoize[T any](c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	t, err := fn()
	if err != nil {
		return t, err
	}
	c.Set(key, t, ttl)
	return t, nil
}
