package zict

import (
	"runtime"
	"sync"
	"weak"
)

/*
WeakValueMapping is a Mapping whose values are retained only by weak
reference (spec.md §4.6): a key vanishes once its value has no other
strong holders, independent of any eviction policy. It is meant as the
`cache` argument to Cache for workloads where memory pressure, not a
size budget, should regulate residency.

Go has no generic non-owning reference to a value type, only to a
pointer, so WeakValueMapping's value type is *T rather than V directly:
callers that want this tier hold values through a pointer they also
keep alive elsewhere (e.g. in an object graph the cache merely indexes).
This is grounded in stdlib's own weak.Pointer[T], added in the same Go
1.24 the teacher's go.mod already pins — spec.md §9 accepts "a
target-language facility for non-owning references that observe
destruction" as the native analogue of the source's weakref dictionary,
and explicitly permits len() to be best-effort.

Collection is observed via runtime.AddCleanup rather than a periodic
reachability sweep: the cleanup fires once the runtime has proven the
value unreachable, at which point the map entry is removed if (and only
if) it still holds the exact weak.Pointer the cleanup was registered
for — a later Put for the same key must never be evicted by a stale
cleanup from an older value.
*/
type WeakValueMapping[K comparable, T any] struct {
	mu     sync.Mutex
	values map[K]weak.Pointer[T]
	stats  LRUStats
	closed bool
}

// NewWeakValueMapping constructs an empty WeakValueMapping.
func NewWeakValueMapping[K comparable, T any]() *WeakValueMapping[K, T] {
	return &WeakValueMapping[K, T]{values: make(map[K]weak.Pointer[T])}
}

type weakCleanupArgs[K comparable, T any] struct {
	k  K
	wp weak.Pointer[T]
}

// Put binds k to v, retained weakly: v must stay reachable elsewhere
// for the binding to survive, and a nil v is a ConfigurationError (a
// weak reference to nothing is never useful).
func (w *WeakValueMapping[K, T]) Put(k K, v *T) error {
	if w.isClosed() {
		return ErrAlreadyClosed
	}
	if v == nil {
		return newConfigurationError("WeakValueMapping: value must not be nil")
	}

	wp := weak.Make(v)
	w.mu.Lock()
	w.values[k] = wp
	w.mu.Unlock()

	runtime.AddCleanup(v, w.collect, weakCleanupArgs[K, T]{k: k, wp: wp})
	return nil
}

// collect runs once v becomes unreachable. It removes k only if the map
// still points at this exact weak reference, so a Put that replaced k's
// value before collection fired is left untouched.
func (w *WeakValueMapping[K, T]) collect(args weakCleanupArgs[K, T]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.values[args.k]; ok && cur == args.wp {
		delete(w.values, args.k)
		w.stats.Evictions++
	}
}

// Get returns k's value if it is both bound and still alive. A binding
// whose value has already been collected reads as NotFound, same as an
// absent key.
func (w *WeakValueMapping[K, T]) Get(k K) (*T, error) {
	if w.isClosed() {
		return nil, ErrAlreadyClosed
	}
	w.mu.Lock()
	wp, ok := w.values[k]
	w.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	v := wp.Value()
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

// Delete removes k's binding regardless of whether its value is still
// alive. Deleting an absent (or already-collected) key is NotFound.
func (w *WeakValueMapping[K, T]) Delete(k K) error {
	if w.isClosed() {
		return ErrAlreadyClosed
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	wp, ok := w.values[k]
	if !ok {
		return ErrNotFound
	}
	delete(w.values, k)
	if wp.Value() == nil {
		return ErrNotFound
	}
	return nil
}

// Contains reports whether k is bound to a value that is still alive.
func (w *WeakValueMapping[K, T]) Contains(k K) bool {
	if w.isClosed() {
		return false
	}
	w.mu.Lock()
	wp, ok := w.values[k]
	w.mu.Unlock()
	return ok && wp.Value() != nil
}

// Len is best-effort (spec.md §4.6): it counts bindings whose value is
// observed alive at the moment of the call, but nothing prevents
// collection from racing the count itself.
func (w *WeakValueMapping[K, T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, wp := range w.values {
		if wp.Value() != nil {
			n++
		}
	}
	return n
}

func (w *WeakValueMapping[K, T]) snapshot() []Pair[K, *T] {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Pair[K, *T], 0, len(w.values))
	for k, wp := range w.values {
		if v := wp.Value(); v != nil {
			out = append(out, Pair[K, *T]{Key: k, Value: v})
		}
	}
	return out
}

func (w *WeakValueMapping[K, T]) IterKeys() View[K] {
	return sliceView[K]{
		len:      w.Len,
		contains: func(k K) bool { return w.Contains(k) },
		items: func() []K {
			pairs := w.snapshot()
			out := make([]K, len(pairs))
			for i, p := range pairs {
				out[i] = p.Key
			}
			return out
		},
	}
}

func (w *WeakValueMapping[K, T]) IterItems() View[Pair[K, *T]] {
	return sliceView[Pair[K, *T]]{
		len: w.Len,
		contains: func(p Pair[K, *T]) bool {
			v, err := w.Get(p.Key)
			return err == nil && v == p.Value
		},
		items: w.snapshot,
	}
}

func (w *WeakValueMapping[K, T]) IterValues() View[*T] {
	return sliceView[*T]{
		len: w.Len,
		contains: func(v *T) bool {
			for _, p := range w.snapshot() {
				if p.Value == v {
					return true
				}
			}
			return false
		},
		items: func() []*T {
			pairs := w.snapshot()
			out := make([]*T, len(pairs))
			for i, p := range pairs {
				out[i] = p.Value
			}
			return out
		},
	}
}

// Close marks the WeakValueMapping closed. Outstanding weak references
// are left to the garbage collector; there is nothing to release here.
func (w *WeakValueMapping[K, T]) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

// Stats returns a snapshot of collection activity, reusing LRUStats
// since a weak map's lifecycle is eviction by garbage collection rather
// than a distinct notion of "expiry".
func (w *WeakValueMapping[K, T]) Stats() LRUStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *WeakValueMapping[K, T]) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
