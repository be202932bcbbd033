package zict

import "time"

/*
Functional Options Pattern, one Option type per component, same shape as
the teacher's options.go: each constructor takes a variadic list of
Option functions instead of a parameter for every combination of
callbacks, so adding a new hook never breaks an existing call site.

    lru, err := NewLRU[string, []byte](100,
        backend,
        WithWeight(func(k string, v []byte) int { return len(v) }),
        WithOnEvict(flushToDisk),
    )
*/

// ---- LRU ----

// LRUOption configures an LRU at construction time.
type LRUOption[K comparable, V any] func(*LRU[K, V])

// WithWeight sets the weight function; default weighs every entry 1.
func WithWeight[K comparable, V any](fn func(K, V) int) LRUOption[K, V] {
	return func(l *LRU[K, V]) { l.weight = fn }
}

// WithOnEvict registers a callback fired, outside the LRU's lock, once
// per evicted key in registration order. A returned error is routed
// through OnEvictError.
func WithOnEvict[K comparable, V any](fn func(K, V) error) LRUOption[K, V] {
	return func(l *LRU[K, V]) { l.onEvict = append(l.onEvict, fn) }
}

// WithOnCacheEvict registers a callback fired once an evicted key has
// actually been removed from d, after the WithOnEvict callbacks. Unlike
// WithOnEvict, a cache-evict callback cannot veto the eviction; it is
// purely observational.
func WithOnCacheEvict[K comparable, V any](fn func(K, V)) LRUOption[K, V] {
	return func(l *LRU[K, V]) { l.onCacheEvict = append(l.onCacheEvict, fn) }
}

// WithOnEvictError sets the handler invoked when an on-evict callback
// fails; returning true suppresses the error and proceeds with eviction,
// false leaves the key resident and surfaces a CallbackFailure.
func WithOnEvictError[K comparable, V any](fn func(K, V, error) bool) LRUOption[K, V] {
	return func(l *LRU[K, V]) { l.onEvictError = fn }
}

// ---- Buffer ----

// BufferOption configures a Buffer (and, embedded, an AsyncBuffer) at
// construction time.
type BufferOption[K comparable, V any] func(*bufferConfig[K, V])

type bufferConfig[K comparable, V any] struct {
	weight        func(K, V) int
	fastToSlow    []func(K, V)
	slowToFast    []func(K, V)
	onDemoteError func(K, V, error) bool
}

// WithBufferWeight sets the weight function of the internal fast-tier LRU.
func WithBufferWeight[K comparable, V any](fn func(K, V) int) BufferOption[K, V] {
	return func(c *bufferConfig[K, V]) { c.weight = fn }
}

// WithFastToSlowCallback registers a callback fired after a key demotes
// from fast to slow.
func WithFastToSlowCallback[K comparable, V any](fn func(K, V)) BufferOption[K, V] {
	return func(c *bufferConfig[K, V]) { c.fastToSlow = append(c.fastToSlow, fn) }
}

// WithSlowToFastCallback registers a callback fired after a key promotes
// from slow to fast.
func WithSlowToFastCallback[K comparable, V any](fn func(K, V)) BufferOption[K, V] {
	return func(c *bufferConfig[K, V]) { c.slowToFast = append(c.slowToFast, fn) }
}

// WithOnDemoteError sets the handler invoked when a demotion write to
// the slow tier fails (synchronous Buffer) or when a background
// demotion future fails (AsyncBuffer); semantics match LRU's
// WithOnEvictError.
func WithOnDemoteError[K comparable, V any](fn func(K, V, error) bool) BufferOption[K, V] {
	return func(c *bufferConfig[K, V]) { c.onDemoteError = fn }
}

// ---- AsyncBuffer ----

// AsyncBufferOption configures an AsyncBuffer at construction time,
// composing BufferOption with the choice of Executor.
type AsyncBufferOption[K comparable, V any] func(*asyncBufferConfig[K, V])

type asyncBufferConfig[K comparable, V any] struct {
	bufferOpts []BufferOption[K, V]
	executor   Executor
}

// WithAsyncBufferOption folds a BufferOption into an AsyncBuffer's
// configuration (fast/slow callbacks, weight, on-demote-error).
func WithAsyncBufferOption[K comparable, V any](opt BufferOption[K, V]) AsyncBufferOption[K, V] {
	return func(c *asyncBufferConfig[K, V]) { c.bufferOpts = append(c.bufferOpts, opt) }
}

// WithExecutor sets the task submitter demotions run on; default is an
// unbounded goroutine executor built on golang.org/x/sync/errgroup
// (NewGoroutineExecutor(0)).
func WithExecutor[K comparable, V any](e Executor) AsyncBufferOption[K, V] {
	return func(c *asyncBufferConfig[K, V]) { c.executor = e }
}

// ---- Cache ----

// CacheOption configures a Cache at construction time.
type CacheOption[K comparable, V any] func(*Cache[K, V])

// WithUpdateOnSet makes Put also update the cache tier instead of
// invalidating the key in it.
func WithUpdateOnSet[K comparable, V any](enabled bool) CacheOption[K, V] {
	return func(c *Cache[K, V]) { c.updateOnSet = enabled }
}

// WithPropagateClose makes Close on the Cache also close its cache tier
// and backing mapping; by default (per spec) Close never propagates.
func WithPropagateClose[K comparable, V any](enabled bool) CacheOption[K, V] {
	return func(c *Cache[K, V]) { c.propagateClose = enabled }
}

// ---- MemMapping ----

// MemMappingOption configures a MemMapping at construction time.
type MemMappingOption[K comparable, V any] func(*MemMapping[K, V])

// WithJanitor starts a background sweep, every interval, that deletes any
// key for which expired returns true; mirrors the teacher's
// startJanitor/ticker/stop-channel shape, generalized from the teacher's
// hardcoded Item.Expired to a caller-supplied predicate.
func WithJanitor[K comparable, V any](interval time.Duration, expired func(K, V) bool) MemMappingOption[K, V] {
	return func(m *MemMapping[K, V]) {
		m.janitorInterval = interval
		m.expired = expired
	}
}
