package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCache_SetGet(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("tok_1", TokenEntry{TenantID: "tenant_1", SecretHash: "hash1"})

	entry, ok := c.Get("tok_1")
	require.True(t, ok)
	assert.Equal(t, "tenant_1", entry.TenantID)
}

func TestTokenCache_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := New(time.Minute, 2)
	c.Set("tok_1", TokenEntry{TenantID: "t1"})
	c.Set("tok_2", TokenEntry{TenantID: "t2"})
	// touch tok_1 so tok_2 becomes the LRU entry
	_, _ = c.Get("tok_1")
	c.Set("tok_3", TokenEntry{TenantID: "t3"})

	_, ok := c.Get("tok_2")
	assert.False(t, ok, "tok_2 should have been evicted as least-recently-used")

	_, ok = c.Get("tok_1")
	assert.True(t, ok)
	_, ok = c.Get("tok_3")
	assert.True(t, ok)
}

func TestTokenCache_Delete(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("tok_1", TokenEntry{TenantID: "t1"})
	c.Delete("tok_1")

	_, ok := c.Get("tok_1")
	assert.False(t, ok)
}
