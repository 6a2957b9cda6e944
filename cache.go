package exporters

import (
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// Default retention of a cached point, which is also the default send
	// interval of the reporter.
	DefaultMaxAge = 59 * time.Second
	// Default max number of rows retained per name prefix.
	DefaultMaxRows = 10000
)

type cacheEntry struct {
	sample  MetricSample
	touched time.Time
}

// A bucket keeps put order and expiry of names in ttlcache, and their
// samples aside so that reads leave the order alone.
type bucket struct {
	order  *ttlcache.Cache[string, struct{}]
	latest map[string]cacheEntry
}

// Point cache holds the latest sample of each flattened metric name. Names
// are grouped by prefix (everything before the last dot, i.e. the sanitized
// metric name for suffixed samples). Each group holds at most maxRows
// entries, the least recently put are evicted first. Entries older than
// maxAge are unreadable and dropped lazily upon put.
//
// Safe for concurrent use.
type PointCache struct {
	maxRows int
	maxAge  time.Duration

	mu        sync.RWMutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// Create a cache, non-positive maxRows or maxAge disables the bound.
func NewPointCache(maxRows int, maxAge time.Duration) *PointCache {
	return &PointCache{
		maxRows:   maxRows,
		maxAge:    maxAge,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (c *PointCache) newBucket() *bucket {
	var opts []ttlcache.Option[string, struct{}]
	if c.maxAge > 0 {
		opts = append(opts, ttlcache.WithTTL[string, struct{}](c.maxAge))
	}
	return &bucket{
		order:  ttlcache.New[string, struct{}](opts...),
		latest: make(map[string]cacheEntry),
	}
}

// Insert or overwrite sample of name, refreshing its last touched time.
func (c *PointCache) Put(name string, sample MetricSample) {
	now := time.Now()
	prefix := namePrefix(name)

	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[prefix]
	if !ok {
		b = c.newBucket()
		c.buckets[prefix] = b
	} else if c.maxAge > 0 {
		b.order.DeleteExpired()
	}
	if c.maxRows > 0 && !b.order.Has(name) && b.order.Len() >= c.maxRows {
		b.evictOldest()
	}
	b.order.Set(name, struct{}{}, ttlcache.DefaultTTL)
	b.latest[name] = cacheEntry{sample: sample, touched: now}
	c.sweep(now)
}

// Drop the least recently put name.
func (b *bucket) evictOldest() {
	var oldest string
	b.order.RangeBackwards(func(item *ttlcache.Item[string, struct{}]) bool {
		oldest = item.Key()
		return false
	})
	b.order.Delete(oldest)
	delete(b.latest, oldest)
}

// Get latest sample put under name, false if never put or evicted. Reads do
// not count as touches.
func (c *PointCache) Get(name string) (MetricSample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b := c.buckets[namePrefix(name)]
	if b == nil || !b.order.Has(name) {
		return MetricSample{}, false
	}
	entry, ok := b.latest[name]
	if !ok || c.expired(entry, time.Now()) {
		return MetricSample{}, false
	}
	return entry.sample, true
}

// Number of unexpired entries held.
func (c *PointCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, b := range c.buckets {
		n += b.order.Len()
	}
	return n
}

func (c *PointCache) expired(entry cacheEntry, now time.Time) bool {
	return c.maxAge > 0 && now.Sub(entry.touched) > c.maxAge
}

// Drop expired entries and empty buckets of names no longer reported, at
// most once per retention window. Must be called with c.mu held.
func (c *PointCache) sweep(now time.Time) {
	if c.maxAge <= 0 || now.Sub(c.lastSweep) < c.maxAge {
		return
	}
	c.lastSweep = now
	for prefix, b := range c.buckets {
		b.order.DeleteExpired()
		for name := range b.latest {
			if !b.order.Has(name) {
				delete(b.latest, name)
			}
		}
		if len(b.latest) == 0 {
			delete(c.buckets, prefix)
		}
	}
}

func namePrefix(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}
