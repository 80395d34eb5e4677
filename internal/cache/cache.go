// Package cache provides the in-memory response cache for region summaries
// and choropleth payloads. It wraps hashicorp/golang-lru/v2/expirable.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petakeu_cache_hits_total",
		Help: "Total number of response cache hits.",
	}, []string{"cache"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "petakeu_cache_misses_total",
		Help: "Total number of response cache misses.",
	}, []string{"cache"})
)

// Cache is a size-bounded LRU whose entries expire ttl after insertion.
// Every Purge starts a new generation.
type Cache[V any] struct {
	name   string
	lru    *expirable.LRU[string, V]
	hits   prometheus.Counter
	misses prometheus.Counter

	mu         sync.Mutex
	generation uint64
}

// New creates a cache. name labels the hit/miss counters. A non-positive
// size or ttl falls back to 256 entries and 5 minutes.
func New[V any](name string, size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache[V]{
		name:   name,
		lru:    expirable.NewLRU[string, V](size, nil, ttl),
		hits:   cacheHitsTotal.WithLabelValues(name),
		misses: cacheMissesTotal.WithLabelValues(name),
	}
}

// Get returns the cached value for key
func (c *Cache[V]) Get(key string) (V, bool) {
	val, ok := c.lru.Get(key)
	if ok {
		c.hits.Inc()
		return val, true
	}
	c.misses.Inc()
	return val, false
}

// Set adds or replaces the value for key
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Delete removes a single key
func (c *Cache[V]) Delete(key string) {
	c.lru.Remove(key)
}

// Purge drops every entry
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.lru.Purge()
}

// Generation returns the current generation. Read it before loading the data
// a value is computed from and pass it to SetIfGeneration.
func (c *Cache[V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfGeneration stores value only if no Purge happened since gen was read
func (c *Cache[V]) SetIfGeneration(key string, value V, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	c.lru.Add(key, value)
	return true
}

// Len returns the number of live entries
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Name returns the metric label of the cache
func (c *Cache[V]) Name() string {
	return c.name
}

// Key joins key parts with '|'
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}
