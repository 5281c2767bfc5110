package reqcache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyRead(t *testing.T) {
	c := NewLRU(Options{Capacity: 2})
	require.True(t, c.Set("/contactos?a", []byte("a")))
	require.True(t, c.Set("/contactos?b", []byte("b")))

	_, ok := c.Get("/contactos?a")
	require.True(t, ok)
	require.True(t, c.Set("/contactos?c", []byte("c")))

	_, ok = c.Get("/contactos?b")
	assert.False(t, ok)
	got, ok := c.Get("/contactos?a")
	require.True(t, ok)
	assert.Equal(t, []byte("a"), got)
}

func TestLRUInvalidateAndGuard(t *testing.T) {
	c := NewLRU(Options{Capacity: 10, MaxPayloadBytes: 8})
	assert.False(t, c.Set("/contactos?", []byte(strings.Repeat("x", 8))))

	c.Set("/contactos/validation?", []byte("v"))
	c.Set("/contactos/errors?", []byte("e"))
	c.Set("/health?", []byte("h"))

	assert.Equal(t, 1, c.Invalidate("validation"))
	assert.Equal(t, 2, c.Stats().TotalEntries)
	assert.Equal(t, 2, c.Invalidate(""))
	assert.Zero(t, c.Stats().TotalEntries)
}

func TestNewStorePicksPolicy(t *testing.T) {
	assert.IsType(t, &LRU{}, NewStore(" LRU ", Options{}))
	assert.IsType(t, &Cache{}, NewStore("fifo", Options{}))
	assert.IsType(t, &Cache{}, NewStore("", Options{}))
}
