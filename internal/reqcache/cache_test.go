package reqcache

import (
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache(t *testing.T, opts Options) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts.Now = clock.Now
	return New(opts), clock
}

func TestTTLBoundaryPerFamily(t *testing.T) {
	cases := []struct {
		key string
		ttl time.Duration
	}{
		{key: "/contactos/validation?", ttl: DefaultValidationTTL},
		{key: "/contactos/invalid-data?", ttl: DefaultValidationTTL},
		{key: "/contactos/errors?", ttl: DefaultValidationTTL},
		{key: "/contactos?", ttl: DefaultTTL},
		{key: "/contactos/paginated?page=0&size=50", ttl: DefaultTTL},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			cache, clock := newTestCache(t, Options{})
			require.True(t, cache.Set(tc.key, []byte(`{"success":true}`)))

			clock.Advance(tc.ttl - time.Millisecond)
			_, ok := cache.Get(tc.key)
			assert.True(t, ok, "entry should still be fresh just before its ttl")

			clock.Advance(2 * time.Millisecond)
			_, ok = cache.Get(tc.key)
			assert.False(t, ok, "entry should be expired just after its ttl")
			assert.Empty(t, cache.Entries(), "expired entry should be removed on access")
		})
	}
}

func TestInvalidateScope(t *testing.T) {
	cache, _ := newTestCache(t, Options{})
	keys := []string{"/contactos?", "/contactos/5?", "/contactos/validation?", "/health?", "/stats/global?"}
	for _, key := range keys {
		require.True(t, cache.Set(key, []byte(key)))
	}

	removed := cache.Invalidate("contactos")
	assert.Equal(t, 3, removed)
	for _, key := range keys[:3] {
		_, ok := cache.Get(key)
		assert.False(t, ok, "%s should be invalidated", key)
	}
	for _, key := range keys[3:] {
		payload, ok := cache.Get(key)
		assert.True(t, ok, "%s should survive", key)
		assert.Equal(t, key, string(payload))
	}

	assert.Equal(t, 2, cache.Invalidate(""))
	assert.Empty(t, cache.Entries())
}

func TestFIFOEvictionIgnoresReads(t *testing.T) {
	cache, _ := newTestCache(t, Options{Capacity: 3})
	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("k%d", i), []byte("v"))
	}
	_, ok := cache.Get("k0")
	require.True(t, ok)

	cache.Set("k3", []byte("v"))

	_, ok = cache.Get("k0")
	assert.False(t, ok, "oldest inserted key is evicted even after a read")
	for _, key := range []string{"k1", "k2", "k3"} {
		_, ok := cache.Get(key)
		assert.True(t, ok, key)
	}
}

func TestOverwriteKeepsInsertionSlot(t *testing.T) {
	cache, clock := newTestCache(t, Options{Capacity: 2})
	cache.Set("a", []byte("1"))
	cache.Set("b", []byte("1"))
	clock.Advance(time.Second)
	cache.Set("a", []byte("2"))
	cache.Set("c", []byte("1"))

	_, ok := cache.Get("a")
	assert.False(t, ok)
	entries := cache.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Key)
	assert.Equal(t, "c", entries[1].Key)
}

func TestSizeGuard(t *testing.T) {
	cache, _ := newTestCache(t, Options{MaxPayloadBytes: 10})
	assert.False(t, cache.Set("big", make([]byte, 10)))
	assert.True(t, cache.Set("small", make([]byte, 9)))
	_, ok := cache.Get("big")
	assert.False(t, ok)
}

func TestKeyIsCanonical(t *testing.T) {
	a := url.Values{}
	a.Set("size", "50")
	a.Set("page", "0")
	a.Set("search", "ana")
	b := url.Values{}
	b.Set("search", "ana")
	b.Set("page", "0")
	b.Set("size", "50")

	assert.Equal(t, Key("/contactos/paginated", a), Key("/contactos/paginated", b))
	assert.Equal(t, "/contactos/paginated?page=0&search=ana&size=50", Key("/contactos/paginated", a))
	assert.Equal(t, "/contactos?", Key("/contactos", nil))
}

func TestStats(t *testing.T) {
	cache, clock := newTestCache(t, Options{})
	cache.Set("/contactos/validation?", []byte("x"))
	cache.Set("/contactos?", []byte("x"))
	clock.Advance(DefaultValidationTTL)

	stats := cache.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.ValidEntries)
	assert.Equal(t, 1, stats.ExpiredEntries)
	assert.InDelta(t, 0.5, stats.HitRate, 0.0001)
}

func TestLRUSharesContract(t *testing.T) {
	var store Store = NewLRU(Options{Capacity: 2, MaxPayloadBytes: 100})
	require.True(t, store.Set("/contactos?", []byte("a")))
	require.True(t, store.Set("/health?", []byte("b")))
	_, ok := store.Get("/contactos?")
	require.True(t, ok)

	require.True(t, store.Set("/stats?", []byte("c")))
	_, ok = store.Get("/health?")
	assert.False(t, ok, "least recently read entry is evicted")
	_, ok = store.Get("/contactos?")
	assert.True(t, ok)

	assert.False(t, store.Set("/big?", make([]byte, 100)))
	assert.Equal(t, 1, store.Invalidate("contactos"))
	assert.Equal(t, 1, store.Invalidate(""))
}

func TestNewStorePolicy(t *testing.T) {
	assert.IsType(t, &LRU{}, NewStore("LRU", Options{}))
	assert.IsType(t, &Cache{}, NewStore("fifo", Options{}))
	assert.IsType(t, &Cache{}, NewStore("", Options{}))
}
