package analytics

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache defaults.
const (
	DefaultTTL             = 5 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// Entry is one cached analytics result.
type Entry struct {
	Data      any
	Timestamp time.Time
	TTL       time.Duration
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.Timestamp) > e.TTL
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithMaxEntries bounds the cache; the oldest entry is evicted when full.
// Zero means unbounded.
func WithMaxEntries(n int) CacheOption {
	return func(c *Cache) { c.maxEntries = n }
}

// WithCleanupInterval sets how often the janitor sweeps expired entries.
func WithCleanupInterval(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithCacheMetrics enables Prometheus metrics.
func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// Cache is a concurrency-safe TTL map for analytics results.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	ttl        time.Duration
	maxEntries int
	interval   time.Duration
	now        func() time.Time
	metrics    *Metrics

	// gen counts Invalidate calls; invalidated holds the gen at which each
	// pattern was last invalidated.
	gen         uint64
	invalidated map[string]uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCache creates a cache whose entries live for ttl unless Set overrides
// it. A non-positive ttl selects DefaultTTL.
func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries:     make(map[string]*Entry),
		invalidated: make(map[string]uint64),
		ttl:         ttl,
		interval:    DefaultCleanupInterval,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds a cache key: analytics:<org>:<metric>[:<part>...].
func Key(org, metric string, parts ...string) string {
	return strings.Join(append([]string{"analytics", org, metric}, parts...), ":")
}

// OrgPattern matches every key of org.
func OrgPattern(org string) string {
	return "analytics:" + org + ":"
}

// metricOf extracts the metric segment of a key for metric labels.
func metricOf(key string) string {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) < 3 {
		return "unknown"
	}
	return parts[2]
}

// Get returns the cached data for key. Expired entries are removed and
// reported as a miss.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.metrics.miss(key)
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		c.metrics.evicted("expired", 1)
		c.metrics.size(len(c.entries))
		c.metrics.miss(key)
		return nil, false
	}
	c.metrics.hit(key)
	return e.Data, true
}

// Set stores data under key. A non-positive ttl uses the cache default.
func (c *Cache) Set(key string, data any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, data, ttl)
}

// Generation returns the current invalidation generation. Take it before
// loading a value and hand it to SetIfUnchanged.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfUnchanged stores data like Set unless an Invalidate whose pattern
// matches key ran after gen was taken. It reports whether data was stored.
func (c *Cache) SetIfUnchanged(key string, data any, ttl time.Duration, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pattern, at := range c.invalidated {
		if at > gen && strings.Contains(key, pattern) {
			return false
		}
	}
	c.set(key, data, ttl)
	return true
}

// set stores one entry. Caller must hold the lock.
func (c *Cache) set(key string, data any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &Entry{Data: data, Timestamp: c.now(), TTL: ttl}
	c.metrics.size(len(c.entries))
}

// evictOldest removes the entry with the oldest timestamp.
// Caller must hold the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.Timestamp.Before(oldest) {
			oldestKey, oldest, first = k, e.Timestamp, false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.metrics.evicted("capacity", 1)
	}
}

// Invalidate removes every key containing pattern and returns how many
// were removed. An empty pattern clears the cache.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	n := 0
	if pattern == "" {
		n = len(c.entries)
		c.entries = make(map[string]*Entry)
		c.invalidated = map[string]uint64{"": c.gen}
	} else {
		c.invalidated[pattern] = c.gen
		for k := range c.entries {
			if strings.Contains(k, pattern) {
				delete(c.entries, k)
				n++
			}
		}
	}
	c.metrics.evicted("invalidated", n)
	c.metrics.size(len(c.entries))
	return n
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	c.metrics.evicted("expired", n)
	c.metrics.size(len(c.entries))
	return n
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Start runs Cleanup every cleanup interval until ctx is done or Stop is
// called. Calling Start on a running cache is a no-op.
func (c *Cache) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}(c.done)
}

// Stop halts the janitor and waits for it to exit. Safe to call more than
// once and without Start.
func (c *Cache) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.done == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}
