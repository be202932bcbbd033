package zict

import (
	"errors"
	"sync"
)

/*
LRU is a weight-bounded recency policy over one child Mapping.

================================================================================
ARCHITECTURAL OVERVIEW
================================================================================

LRU does not store values itself — the child Mapping d is the single
source of truth for (key -> value). LRU layers two pieces of bookkeeping
on top of d:

1. order *InsertionSortedSet[K]
   Recency queue: most-recently-touched key at the tail. Put places the
   written key at the tail; among reads, only Get (and GetAllOrNothing,
   on success) moves a key to the tail.

2. weightByKey map[K]int / totalWeight int
   Tracks the weight of every resident key so evictUntilBelowTarget can
   tell, in O(1), whether totalWeight+offset exceeds n.

heavy tracks keys whose own weight exceeds n: those are always evicted
before the recency-queue head, and are evicted even if most-recently-used
(best-effort — if heavy is the only resident key it stays, rather than
leaving the mapping empty).

================================================================================
CONCURRENCY MODEL
================================================================================

Like the teacher's Cache.mu, a single mutex guards bookkeeping only. It is
released before any call into d and before any callback, then re-acquired
to commit. evictingNow marks keys a concurrent eviction has chosen so that
a racing Put on the same key blocks (via the lock's condition variable)
until that eviction finalizes, instead of corrupting weight accounting.
*/
type LRU[K comparable, V any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	d Mapping[K, V]

	n      int
	offset int

	weightByKey map[K]int
	totalWeight int
	order       *InsertionSortedSet[K]
	heavy       map[K]struct{}

	closedToEviction int
	evictingNow      map[K]struct{}

	weight       func(K, V) int
	onEvict      []func(K, V) error
	onCacheEvict []func(K, V)
	onEvictError func(K, V, error) bool

	stats  LRUStats
	closed bool
}

// NewLRU constructs an LRU bounded by weight budget n over child mapping
// d. A negative n is a ConfigurationError: a budget below zero can never
// be satisfied even by an empty mapping.
func NewLRU[K comparable, V any](n int, d Mapping[K, V], opts ...LRUOption[K, V]) (*LRU[K, V], error) {
	if n < 0 {
		return nil, newConfigurationError("n must be >= 0")
	}
	l := &LRU[K, V]{
		d:           d,
		n:           n,
		weightByKey: make(map[K]int),
		order:       NewInsertionSortedSet[K](),
		heavy:       make(map[K]struct{}),
		evictingNow: make(map[K]struct{}),
		weight:      func(K, V) int { return 1 },
	}
	l.cond = sync.NewCond(&l.mu)
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Get consults d; on success it moves k to the tail of the recency queue
// — the single-key read that updates recency — and returns the value. A
// miss or backend error is surfaced unchanged (wrapped as BackendFailure
// for anything that isn't already a NotFound).
func (l *LRU[K, V]) Get(k K) (V, error) {
	var zero V
	if l.isClosed() {
		return zero, ErrAlreadyClosed
	}

	v, err := l.d.Get(k)
	if err != nil {
		l.mu.Lock()
		l.stats.Misses++
		l.mu.Unlock()
		return zero, wrapBackendFailure(err)
	}

	l.mu.Lock()
	l.order.MoveToBack(k)
	l.stats.Hits++
	l.mu.Unlock()
	return v, nil
}

// Put computes the entry's weight, writes through to d, commits
// bookkeeping, and triggers eviction unless a delayed-eviction scope is
// open. If d rejects the write, no bookkeeping has been touched yet, so
// the LRU is left exactly as it was before the call.
func (l *LRU[K, V]) Put(k K, v V) error {
	if l.isClosed() {
		return ErrAlreadyClosed
	}
	l.waitWhileEvicting(k)

	w := l.weight(k, v)
	if w < 0 {
		return newConfigurationError("weight function returned a negative weight")
	}

	if err := l.d.Put(k, v); err != nil {
		return wrapBackendFailure(err)
	}

	l.mu.Lock()
	if oldW, existed := l.weightByKey[k]; existed {
		l.totalWeight -= oldW
	}
	l.weightByKey[k] = w
	l.totalWeight += w
	l.order.MoveToBack(k)
	if w > l.n {
		l.heavy[k] = struct{}{}
	} else {
		delete(l.heavy, k)
	}

	var err error
	if l.closedToEviction == 0 {
		err = l.evictUntilBelowTargetLocked()
	}
	l.mu.Unlock()
	return err
}

// Delete removes k from d and from LRU bookkeeping. A missing key
// surfaces NotFound (from d), unchanged.
func (l *LRU[K, V]) Delete(k K) error {
	if l.isClosed() {
		return ErrAlreadyClosed
	}
	l.waitWhileEvicting(k)

	if err := l.d.Delete(k); err != nil {
		return wrapBackendFailure(err)
	}

	l.mu.Lock()
	l.discardKeyLocked(k)
	l.mu.Unlock()
	return nil
}

// Contains reports whether k is currently bound, deferring to d.
func (l *LRU[K, V]) Contains(k K) bool {
	if l.isClosed() {
		return false
	}
	return l.d.Contains(k)
}

// Len returns the number of distinct keys currently bound.
func (l *LRU[K, V]) Len() int { return l.d.Len() }

func (l *LRU[K, V]) IterKeys() View[K]           { return l.d.IterKeys() }
func (l *LRU[K, V]) IterItems() View[Pair[K, V]] { return l.d.IterItems() }
func (l *LRU[K, V]) IterValues() View[V]         { return l.d.IterValues() }

// Close marks the LRU closed; subsequent operations fail with
// AlreadyClosed. Close never propagates to d (children are referenced,
// not owned) and is idempotent.
func (l *LRU[K, V]) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (l *LRU[K, V]) Stats() LRUStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// SetN updates the weight budget at runtime and triggers eviction
// (subject to a currently-open delayed-eviction scope).
func (l *LRU[K, V]) SetN(newN int) error {
	l.mu.Lock()
	l.n = newN
	l.recomputeHeavyLocked()
	var err error
	if l.closedToEviction == 0 {
		err = l.evictUntilBelowTargetLocked()
	}
	l.mu.Unlock()
	return err
}

// SetOffset updates the external weight overhead at runtime (may be
// negative) and triggers eviction accordingly.
func (l *LRU[K, V]) SetOffset(newOffset int) error {
	l.mu.Lock()
	l.offset = newOffset
	var err error
	if l.closedToEviction == 0 {
		err = l.evictUntilBelowTargetLocked()
	}
	l.mu.Unlock()
	return err
}

// N returns the current weight budget.
func (l *LRU[K, V]) N() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Offset returns the current weight overhead.
func (l *LRU[K, V]) Offset() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset
}

func (l *LRU[K, V]) recomputeHeavyLocked() {
	for k, w := range l.weightByKey {
		if w > l.n {
			l.heavy[k] = struct{}{}
		} else {
			delete(l.heavy, k)
		}
	}
}

// BeginDelayedEviction opens a delayed-eviction window: Put/SetN/SetOffset
// stop triggering eviction until a matching EndDelayedEviction brings the
// nesting count back to zero, at which point evictUntilBelowTarget runs
// once as a batch. Nested windows are supported (closedToEviction is a
// counter, per spec).
func (l *LRU[K, V]) BeginDelayedEviction() {
	l.mu.Lock()
	l.closedToEviction++
	l.mu.Unlock()
}

// EndDelayedEviction closes one nesting level of a delayed-eviction
// window opened by BeginDelayedEviction, running the deferred eviction
// batch once the count returns to zero.
func (l *LRU[K, V]) EndDelayedEviction() error {
	l.mu.Lock()
	if l.closedToEviction > 0 {
		l.closedToEviction--
	}
	var err error
	if l.closedToEviction == 0 {
		err = l.evictUntilBelowTargetLocked()
	}
	l.mu.Unlock()
	return err
}

// WithDelayedEviction runs fn inside a delayed-eviction scope: no
// on-evict callback fires while fn runs, even if fn's Puts push
// totalWeight well past n; the batch of evictions that would have fired
// individually all fire together when fn returns.
func (l *LRU[K, V]) WithDelayedEviction(fn func() error) error {
	l.BeginDelayedEviction()
	fnErr := fn()
	endErr := l.EndDelayedEviction()
	if fnErr != nil {
		return fnErr
	}
	return endErr
}

// GetAllOrNothing returns all of ks bound to their values, or
// NotFoundAnyError naming the missing subset. On failure, no key's
// recency is touched at all. On success, every requested key's recency
// is bumped exactly once, in the order ks was given — not the order
// delivery happened to complete in.
func (l *LRU[K, V]) GetAllOrNothing(ks []K) (map[K]V, error) {
	if l.isClosed() {
		return nil, ErrAlreadyClosed
	}

	results := make(map[K]V, len(ks))
	var missing map[K]struct{}
	for _, k := range ks {
		v, err := l.d.Get(k)
		if err != nil {
			if isNotFound(err) {
				if missing == nil {
					missing = make(map[K]struct{})
				}
				missing[k] = struct{}{}
				continue
			}
			return nil, wrapBackendFailure(err)
		}
		results[k] = v
	}
	if missing != nil {
		return nil, &NotFoundAnyError[K]{Missing: missing}
	}

	l.mu.Lock()
	for _, k := range ks {
		l.order.MoveToBack(k)
	}
	l.stats.Hits += uint64(len(ks))
	l.mu.Unlock()
	return results, nil
}

func (l *LRU[K, V]) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// waitWhileEvicting blocks until k is no longer in evictingNow, so a
// concurrent Put never races the in-flight deletion/callback sequence
// evicting that same key (spec §5: "a concurrent put(k, v) where
// k ∈ evicting_now waits for the in-flight eviction to finalize").
func (l *LRU[K, V]) waitWhileEvicting(k K) {
	l.mu.Lock()
	for {
		if _, evicting := l.evictingNow[k]; !evicting {
			break
		}
		l.cond.Wait()
	}
	l.mu.Unlock()
}

// discardKeyLocked removes k from all LRU bookkeeping. Caller holds mu.
func (l *LRU[K, V]) discardKeyLocked(k K) {
	l.order.Discard(k)
	delete(l.heavy, k)
	if w, ok := l.weightByKey[k]; ok {
		l.totalWeight -= w
		delete(l.weightByKey, k)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
