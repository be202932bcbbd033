package zict

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

/*
Cache is a read-through cache over a (possibly expensive) backing
Mapping d: a miss in the cache tier falls through to d, stores the
result in the cache tier, and returns it.

================================================================================
ARCHITECTURAL OVERVIEW
================================================================================

This is the teacher's own Cache type, generalized: the teacher fused
"cache" and "backing store" into one map with a TTL. Here they are split
into two composable Mappings — cache (fast, possibly bounded by an LRU
the caller layers on top) and d (the backing mapping, possibly expensive:
network-attached, compressed, whatever). Cache itself adds no eviction
policy of its own; that is exactly what makes it composable with LRU,
Buffer, or WeakValueMapping as the `cache` argument.

================================================================================
CONCURRENCY
================================================================================

Read misses on the same key, arriving concurrently, are collapsed by
golang.org/x/sync/singleflight.Group so d.Get is only ever called once per
outstanding miss — the teacher has no such de-duplication since it never
has an expensive backing store to protect from a thundering herd.
*/
type Cache[K comparable, V any] struct {
	mu sync.Mutex

	d     Mapping[K, V]
	cache Mapping[K, V]

	updateOnSet    bool
	propagateClose bool

	group  singleflight.Group
	stats  CacheStats
	closed bool
}

// NewCache constructs a read-through cache: reads consult cache first,
// falling through to d on a miss and populating cache with the result.
func NewCache[K comparable, V any](d, cache Mapping[K, V], opts ...CacheOption[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{d: d, cache: cache}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get consults cache; on a miss it consults d, stores the result in
// cache, and returns it. Concurrent misses for the same key share one
// call to d.Get via singleflight.
func (c *Cache[K, V]) Get(k K) (V, error) {
	var zero V
	if c.isClosed() {
		return zero, ErrAlreadyClosed
	}

	if v, err := c.cache.Get(k); err == nil {
		c.recordHit()
		return v, nil
	} else if !isNotFound(err) {
		return zero, wrapBackendFailure(err)
	}

	groupKey := fmt.Sprint(k)
	v, err, shared := c.group.Do(groupKey, func() (interface{}, error) {
		// A load that finished after this caller's cache miss has already
		// filled the cache tier; serve that instead of loading again.
		if cached, err := c.cache.Get(k); err == nil {
			return cached, nil
		}
		v, err := c.d.Get(k)
		if err != nil {
			return nil, err
		}
		if putErr := c.cache.Put(k, v); putErr != nil {
			return nil, putErr
		}
		return v, nil
	})
	c.recordMiss(shared)
	if err != nil {
		return zero, wrapBackendFailure(err)
	}
	return v.(V), nil
}

// Put writes to d. If updateOnSet is configured, it also updates cache;
// otherwise it invalidates k in cache so a subsequent Get reloads
// through d rather than serving a stale cached value.
func (c *Cache[K, V]) Put(k K, v V) error {
	if c.isClosed() {
		return ErrAlreadyClosed
	}
	if err := c.d.Put(k, v); err != nil {
		return wrapBackendFailure(err)
	}
	if c.updateOnSet {
		if err := c.cache.Put(k, v); err != nil {
			return wrapBackendFailure(err)
		}
		return nil
	}
	c.invalidate(k)
	return nil
}

// Delete invalidates k in both tiers.
func (c *Cache[K, V]) Delete(k K) error {
	if c.isClosed() {
		return ErrAlreadyClosed
	}
	err := c.d.Delete(k)
	c.invalidate(k)
	if err != nil {
		return wrapBackendFailure(err)
	}
	return nil
}

func (c *Cache[K, V]) invalidate(k K) {
	delErr := c.cache.Delete(k)
	if delErr == nil {
		c.mu.Lock()
		c.stats.Invalidated++
		c.mu.Unlock()
	}
}

// Contains reports whether k is bound, checking cache first then d.
func (c *Cache[K, V]) Contains(k K) bool {
	if c.isClosed() {
		return false
	}
	return c.cache.Contains(k) || c.d.Contains(k)
}

// Len returns d's length: d is the authoritative store, cache is only a
// subset of it by construction.
func (c *Cache[K, V]) Len() int { return c.d.Len() }

func (c *Cache[K, V]) IterKeys() View[K]           { return c.d.IterKeys() }
func (c *Cache[K, V]) IterItems() View[Pair[K, V]] { return c.d.IterItems() }
func (c *Cache[K, V]) IterValues() View[V]         { return c.d.IterValues() }

// Close marks the cache closed. By default this never propagates (per
// spec.md §3 Lifecycle); WithPropagateClose opts in to also closing both
// cache and d, for callers that want Cache to own its children.
func (c *Cache[K, V]) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	if c.propagateClose {
		_ = c.cache.Close()
		_ = c.d.Close()
	}
	return nil
}

// Stats returns a snapshot of hit/miss/invalidation counters.
func (c *Cache[K, V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache[K, V]) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Cache[K, V]) recordHit() {
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
}

func (c *Cache[K, V]) recordMiss(coalesced bool) {
	c.mu.Lock()
	c.stats.Misses++
	if coalesced {
		c.stats.Coalesced++
	}
	c.mu.Unlock()
}
