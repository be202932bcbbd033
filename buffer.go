package zict

import "sync"

/*
Buffer is a two-tier fast/slow Mapping driven by an internal LRU(n, fast)
whose on-evict callback writes the evictee to slow and lets the LRU
remove it from fast. Reads promote slow hits back into fast.

================================================================================
INVARIANT: NO KEY IN BOTH TIERS
================================================================================

A key is never simultaneously present in fast and slow. The one race the
spec calls out by name — a reader promoting a stale value from slow while
a writer stores a fresh one — is resolved by holding Buffer's own lock
across the entire promote sequence (read slow, write fast, delete slow)
and across Put, so the two can never interleave: whichever commits last
under bmu is what a subsequent Get observes, and that is always the
writer's value when Put runs after a promotion started from a now-stale
read. This is a deliberate exception to the "release lock before child
I/O" rule spec.md §5 states in general — spec.md §4.3 calls for exactly
this ordering for Buffer specifically ("the promotion's write-to-fast
happens first under the buffer lock").
*/
type Buffer[K comparable, V any] struct {
	bmu sync.Mutex

	fast Mapping[K, V]
	slow Mapping[K, V]
	lru  *LRU[K, V]

	slowToFast []func(K, V)

	statsMu sync.Mutex
	stats   BufferStats
	closed  bool
}

// NewBuffer constructs a Buffer whose fast tier is bounded by weight n.
func NewBuffer[K comparable, V any](fast, slow Mapping[K, V], n int, opts ...BufferOption[K, V]) (*Buffer[K, V], error) {
	cfg := &bufferConfig[K, V]{}
	for _, opt := range opts {
		opt(cfg)
	}

	b := &Buffer[K, V]{fast: fast, slow: slow, slowToFast: cfg.slowToFast}

	lruOpts := []LRUOption[K, V]{
		WithOnEvict[K, V](func(k K, v V) error {
			if err := b.slow.Put(k, v); err != nil {
				return err
			}
			b.statsMu.Lock()
			b.stats.Demotions++
			b.statsMu.Unlock()
			for _, cb := range cfg.fastToSlow {
				cb(k, v)
			}
			return nil
		}),
	}
	if cfg.weight != nil {
		lruOpts = append(lruOpts, WithWeight(cfg.weight))
	}
	if cfg.onDemoteError != nil {
		lruOpts = append(lruOpts, WithOnEvictError(cfg.onDemoteError))
	}

	lru, err := NewLRU[K, V](n, fast, lruOpts...)
	if err != nil {
		return nil, err
	}
	b.lru = lru
	return b, nil
}

// Get looks in fast first (a hit there also bumps recency, via the
// internal LRU). A miss falls through to slow; a slow hit is promoted
// into fast (which may itself demote other keys to slow) and removed
// from slow before returning.
func (b *Buffer[K, V]) Get(k K) (V, error) {
	var zero V
	if b.isClosed() {
		return zero, ErrAlreadyClosed
	}

	b.bmu.Lock()
	v, err := b.lru.Get(k)
	if err == nil {
		b.bmu.Unlock()
		b.recordFastHit()
		return v, nil
	}
	if !isNotFound(err) {
		b.bmu.Unlock()
		return zero, err
	}

	v, slowErr := b.slow.Get(k)
	if slowErr != nil {
		b.bmu.Unlock()
		if isNotFound(slowErr) {
			b.recordMiss()
			return zero, ErrNotFound
		}
		return zero, wrapBackendFailure(slowErr)
	}

	if putErr := b.lru.Put(k, v); putErr != nil {
		b.bmu.Unlock()
		return zero, putErr
	}
	if delErr := b.slow.Delete(k); delErr != nil && !isNotFound(delErr) {
		b.bmu.Unlock()
		return zero, wrapBackendFailure(delErr)
	}
	b.bmu.Unlock()

	b.recordPromotion()
	for _, cb := range b.slowToFast {
		cb(k, v)
	}
	return v, nil
}

// Put always writes to fast (through the internal LRU), never directly
// to slow; any older copy of k in slow is removed first.
func (b *Buffer[K, V]) Put(k K, v V) error {
	if b.isClosed() {
		return ErrAlreadyClosed
	}
	b.bmu.Lock()
	defer b.bmu.Unlock()
	if err := b.slow.Delete(k); err != nil && !isNotFound(err) {
		return wrapBackendFailure(err)
	}
	return b.lru.Put(k, v)
}

// Delete removes k from both tiers; absence in both surfaces NotFound.
func (b *Buffer[K, V]) Delete(k K) error {
	if b.isClosed() {
		return ErrAlreadyClosed
	}
	b.bmu.Lock()
	defer b.bmu.Unlock()

	fastErr := b.lru.Delete(k)
	if fastErr == nil {
		return nil
	}
	if !isNotFound(fastErr) {
		return fastErr
	}
	return b.slow.Delete(k)
}

// Contains reports whether k is resident in either tier.
func (b *Buffer[K, V]) Contains(k K) bool {
	if b.isClosed() {
		return false
	}
	return b.lru.Contains(k) || b.slow.Contains(k)
}

// Len sums the length of both tiers (they are disjoint by invariant).
func (b *Buffer[K, V]) Len() int { return b.lru.Len() + b.slow.Len() }

func (b *Buffer[K, V]) IterKeys() View[K] {
	return concatView(b.lru.IterKeys(), b.slow.IterKeys())
}

func (b *Buffer[K, V]) IterItems() View[Pair[K, V]] {
	return concatView(b.lru.IterItems(), b.slow.IterItems())
}

func (b *Buffer[K, V]) IterValues() View[V] {
	return concatView(b.lru.IterValues(), b.slow.IterValues())
}

// Close marks the Buffer closed; fast and slow are referenced, not
// owned, and are never closed by this call.
func (b *Buffer[K, V]) Close() error {
	b.statsMu.Lock()
	b.closed = true
	b.statsMu.Unlock()
	return b.lru.Close()
}

// Stats returns a snapshot of tiering activity.
func (b *Buffer[K, V]) Stats() BufferStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.stats
}

// N and Offset forward to the internal LRU. The LRU's weight function is
// not exposed through Buffer.
func (b *Buffer[K, V]) N() int      { return b.lru.N() }
func (b *Buffer[K, V]) Offset() int { return b.lru.Offset() }

func (b *Buffer[K, V]) isClosed() bool {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.closed
}

func (b *Buffer[K, V]) recordFastHit() {
	b.statsMu.Lock()
	b.stats.FastHits++
	b.statsMu.Unlock()
}

func (b *Buffer[K, V]) recordMiss() {
	b.statsMu.Lock()
	b.stats.Misses++
	b.statsMu.Unlock()
}

func (b *Buffer[K, V]) recordPromotion() {
	b.statsMu.Lock()
	b.stats.Promotions++
	b.stats.SlowHits++
	b.statsMu.Unlock()
}

// concatView chains two views without materializing their union; used
// for Buffer/Sieve's iter_* (§6: views must reflect subsequent
// mutations, so this recomputes on every call rather than caching).
func concatView[T any](a, b View[T]) View[T] {
	return sliceView[T]{
		len:      func() int { return a.Len() + b.Len() },
		contains: func(t T) bool { return a.Contains(t) || b.Contains(t) },
		items: func() []T {
			var out []T
			a.All()(func(t T) bool { out = append(out, t); return true })
			b.All()(func(t T) bool { out = append(out, t); return true })
			return out
		},
	}
}
