package reqcache

import (
	"strings"

	"github.com/jellydator/ttlcache/v3"
)

// LRU is the access-aware alternative to Cache. It keeps the same family TTLs
// and size guard but evicts the least recently read entry when full.
type LRU struct {
	opts  Options
	items *ttlcache.Cache[string, []byte]
}

func NewLRU(opts Options) *LRU {
	opts = opts.withDefaults()
	items := ttlcache.New[string, []byte](
		ttlcache.WithCapacity[string, []byte](uint64(opts.Capacity)),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	return &LRU{opts: opts, items: items}
}

func (c *LRU) Get(key string) ([]byte, bool) {
	item := c.items.Get(key)
	if item == nil {
		// expired items stay in ttlcache until deleted
		c.items.Delete(key)
		return nil, false
	}
	return item.Value(), true
}

func (c *LRU) Set(key string, payload []byte) bool {
	if len(payload) >= c.opts.MaxPayloadBytes {
		return false
	}
	c.items.Set(key, append([]byte(nil), payload...), c.opts.TTLFor(key))
	return true
}

func (c *LRU) Invalidate(pattern string) int {
	if pattern == "" {
		n := c.items.Len()
		c.items.DeleteAll()
		return n
	}
	removed := 0
	for _, key := range c.items.Keys() {
		if strings.Contains(key, pattern) {
			c.items.Delete(key)
			removed++
		}
	}
	return removed
}

func (c *LRU) Stats() Stats {
	metrics := c.items.Metrics()
	stats := Stats{Hits: metrics.Hits, Misses: metrics.Misses}
	for _, item := range c.items.Items() {
		stats.TotalEntries++
		if item.IsExpired() {
			stats.ExpiredEntries++
		} else {
			stats.ValidEntries++
		}
	}
	stats.HitRate = freshRatio(stats.ValidEntries, stats.TotalEntries)
	return stats
}

// NewStore builds the cache named by policy ("fifo" or "lru").
func NewStore(policy string, opts Options) Store {
	if strings.EqualFold(strings.TrimSpace(policy), "lru") {
		return NewLRU(opts)
	}
	return New(opts)
}
