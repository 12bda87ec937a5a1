// Package cache implements the process-wide API-token lookup cache spec
// §5 calls for: "API-token → (tenant,hash) with 2-minute TTL, 100-entry
// LRU." Grounded on vidinfra-flexprice/internal/cache/inmemory.go's
// patrickmn/go-cache wrapper, narrowed to the one cache this core
// actually needs (webhookclient's per-tenant Svix application lookup,
// §12.2) and extended with an entry cap go-cache itself has no concept
// of.
package cache

import (
	"sync"
	"time"

	goCache "github.com/patrickmn/go-cache"
)

// TokenEntry is what the cache maps an API token to: the owning tenant
// and a hash of the associated secret, so callers never hold the raw
// secret in memory longer than one lookup.
type TokenEntry struct {
	TenantID   string
	SecretHash string
}

// TokenCache is a fixed-capacity, TTL-expiring token→tenant lookup cache.
// go-cache gives the TTL; capacity is enforced here with an access-order
// list, since go-cache has no notion of a maximum entry count.
type TokenCache struct {
	mu       sync.Mutex
	store    *goCache.Cache
	capacity int
	order    []string // most-recently-used at the end
}

const (
	defaultTTL             = 2 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
	defaultCapacity        = 100
)

// New builds a TokenCache with the given TTL/capacity, falling back to
// spec §5's 2-minute/100-entry defaults when zero.
func New(ttl time.Duration, capacity int) *TokenCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &TokenCache{
		store:    goCache.New(ttl, defaultCleanupInterval),
		capacity: capacity,
	}
}

// Get returns the cached entry for token, and whether it was present
// (and not yet expired).
func (c *TokenCache) Get(token string) (TokenEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store.Get(token)
	if !ok {
		return TokenEntry{}, false
	}
	c.touch(token)
	return v.(TokenEntry), true
}

// Set inserts or refreshes token's entry, evicting the least-recently-used
// entry first if this insert would exceed capacity.
func (c *TokenCache) Set(token string, entry TokenEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store.Get(token); !exists && c.store.ItemCount() >= c.capacity {
		c.evictOldest()
	}
	c.store.SetDefault(token, entry)
	c.touch(token)
}

// Delete removes token's cached entry immediately, e.g. on credential
// rotation.
func (c *TokenCache) Delete(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(token)
	c.removeFromOrder(token)
}

// touch moves token to the most-recently-used end of the order list.
// Caller must hold c.mu.
func (c *TokenCache) touch(token string) {
	c.removeFromOrder(token)
	c.order = append(c.order, token)
}

func (c *TokenCache) removeFromOrder(token string) {
	for i, k := range c.order {
		if k == token {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// evictOldest drops the least-recently-used entry. Caller must hold c.mu.
func (c *TokenCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	c.store.Delete(oldest)
}
