package reqcache

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	DefaultCapacity        = 1000
	DefaultTTL             = 5 * time.Minute
	DefaultValidationTTL   = 30 * time.Second
	DefaultMaxPayloadBytes = 500000
)

// DefaultShortTTLFamilies are the key fragments whose entries use the
// validation TTL. Validation outcomes change with every contact write.
var DefaultShortTTLFamilies = []string{"invalid-data", "validation", "errors"}

// Store is the contract the API client caches through.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, payload []byte) bool
	Invalidate(pattern string) int
	Stats() Stats
}

type Logger interface {
	Printf(format string, args ...any)
}

type Options struct {
	Capacity         int
	TTL              time.Duration
	ValidationTTL    time.Duration
	MaxPayloadBytes  int
	ShortTTLFamilies []string
	Now              func() time.Time
	Logger           Logger
}

type Entry struct {
	Key      string
	Payload  []byte
	StoredAt time.Time
}

type Stats struct {
	TotalEntries   int     `json:"totalEntries"`
	ValidEntries   int     `json:"validEntries"`
	ExpiredEntries int     `json:"expiredEntries"`
	HitRate        float64 `json:"cacheHitRate"`
	Hits           uint64  `json:"hits"`
	Misses         uint64  `json:"misses"`
}

// Cache is a bounded response cache. When full it evicts the entry that was
// inserted first; reads do not affect eviction order.
type Cache struct {
	opts Options

	mu      sync.Mutex
	entries map[string]Entry
	order   []string
	hits    uint64
	misses  uint64
}

func (o Options) withDefaults() Options {
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.ValidationTTL <= 0 {
		o.ValidationTTL = DefaultValidationTTL
	}
	if o.MaxPayloadBytes <= 0 {
		o.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if len(o.ShortTTLFamilies) == 0 {
		o.ShortTTLFamilies = DefaultShortTTLFamilies
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// TTLFor picks the time-to-live of key by its family.
func (o Options) TTLFor(key string) time.Duration {
	o = o.withDefaults()
	for _, family := range o.ShortTTLFamilies {
		if strings.Contains(key, family) {
			return o.ValidationTTL
		}
	}
	return o.TTL
}

func New(opts Options) *Cache {
	return &Cache{
		opts:    opts.withDefaults(),
		entries: map[string]Entry{},
		order:   []string{},
	}
}

// Key joins endpoint and params. url.Values encodes keys in sorted order, so
// the same logical parameters always produce the same key.
func Key(endpoint string, params url.Values) string {
	return endpoint + "?" + params.Encode()
}

func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.opts.Now().Sub(entry.StoredAt) >= c.opts.TTLFor(key) {
		c.removeLocked(key)
		c.misses++
		c.logf("cache entry expired: %s", key)
		return nil, false
	}
	c.hits++
	c.logf("cache hit for %s", key)
	return entry.Payload, true
}

// Set stores payload under key and reports whether it was cached. Payloads at
// or above the size threshold are refused.
func (c *Cache) Set(key string, payload []byte) bool {
	if len(payload) >= c.opts.MaxPayloadBytes {
		c.logf("cache skipped %s: %d bytes", key, len(payload))
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		for len(c.order) >= c.opts.Capacity {
			oldest := c.order[0]
			c.removeLocked(oldest)
			c.logf("cache evicted %s", oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = Entry{
		Key:      key,
		Payload:  append([]byte(nil), payload...),
		StoredAt: c.opts.Now(),
	}
	return true
}

// Invalidate removes every key containing pattern. An empty pattern clears
// the cache. It returns the number of removed entries.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pattern == "" {
		n := len(c.entries)
		c.entries = map[string]Entry{}
		c.order = []string{}
		c.logf("cache cleared: %d entries", n)
		return n
	}
	kept := c.order[:0]
	removed := 0
	for _, key := range c.order {
		if strings.Contains(key, pattern) {
			delete(c.entries, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
	c.logf("cache invalidated %d entries for pattern %q", removed, pattern)
	return removed
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.opts.Now()
	stats := Stats{TotalEntries: len(c.entries), Hits: c.hits, Misses: c.misses}
	for key, entry := range c.entries {
		if now.Sub(entry.StoredAt) < c.opts.TTLFor(key) {
			stats.ValidEntries++
		} else {
			stats.ExpiredEntries++
		}
	}
	stats.HitRate = freshRatio(stats.ValidEntries, stats.TotalEntries)
	return stats
}

// Entries returns a copy of the current entries in insertion order.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.entries[key])
	}
	return out
}

func (c *Cache) removeLocked(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cache) logf(format string, args ...any) {
	if c.opts.Logger == nil {
		return
	}
	c.opts.Logger.Printf(format, args...)
}

func freshRatio(valid, total int) float64 {
	if total < 1 {
		total = 1
	}
	return float64(valid) / float64(total)
}
