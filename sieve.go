package zict

import "sync"

/*
Sieve multiplexes one logical Mapping across several backends, chosen
per key by a pure selector function — e.g. sharding by hash(key) % N, or
routing "hot"/"cold" keys to different backing stores.

Every operation on key k is dispatched to mappings[selector(k)]. A key
must be stored in exactly the one backend its selector names; if the
selector's result changes for an already-resident key, behavior is
undefined (spec.md §4.5/§9 — this module does not attempt to detect or
relocate a stale route, by design).
*/
type Sieve[K comparable, V any] struct {
	mu       sync.Mutex
	mappings map[string]Mapping[K, V]
	selector func(K) string
	closed   bool
}

// NewSieve constructs a Sieve over the given labeled child mappings,
// dispatching each key via selector. selector must be pure and total
// over every key ever stored.
func NewSieve[K comparable, V any](mappings map[string]Mapping[K, V], selector func(K) string) (*Sieve[K, V], error) {
	if len(mappings) == 0 {
		return nil, newConfigurationError("sieve requires at least one backend")
	}
	return &Sieve[K, V]{mappings: mappings, selector: selector}, nil
}

func (s *Sieve[K, V]) route(k K) (Mapping[K, V], error) {
	label := s.selector(k)
	m, ok := s.mappings[label]
	if !ok {
		return nil, newConfigurationError("selector produced unknown label: " + label)
	}
	return m, nil
}

func (s *Sieve[K, V]) Get(k K) (V, error) {
	var zero V
	if s.isClosed() {
		return zero, ErrAlreadyClosed
	}
	m, err := s.route(k)
	if err != nil {
		return zero, err
	}
	v, err := m.Get(k)
	if err != nil {
		return zero, wrapBackendFailure(err)
	}
	return v, nil
}

func (s *Sieve[K, V]) Put(k K, v V) error {
	if s.isClosed() {
		return ErrAlreadyClosed
	}
	m, err := s.route(k)
	if err != nil {
		return err
	}
	if err := m.Put(k, v); err != nil {
		return wrapBackendFailure(err)
	}
	return nil
}

func (s *Sieve[K, V]) Delete(k K) error {
	if s.isClosed() {
		return ErrAlreadyClosed
	}
	m, err := s.route(k)
	if err != nil {
		return err
	}
	if err := m.Delete(k); err != nil {
		return wrapBackendFailure(err)
	}
	return nil
}

func (s *Sieve[K, V]) Contains(k K) bool {
	if s.isClosed() {
		return false
	}
	m, err := s.route(k)
	if err != nil {
		return false
	}
	return m.Contains(k)
}

// Len sums the length of every backend.
func (s *Sieve[K, V]) Len() int {
	total := 0
	for _, m := range s.mappings {
		total += m.Len()
	}
	return total
}

func (s *Sieve[K, V]) IterKeys() View[K] {
	views := make([]View[K], 0, len(s.mappings))
	for _, m := range s.mappings {
		views = append(views, m.IterKeys())
	}
	return concatAllViews(views)
}

func (s *Sieve[K, V]) IterItems() View[Pair[K, V]] {
	views := make([]View[Pair[K, V]], 0, len(s.mappings))
	for _, m := range s.mappings {
		views = append(views, m.IterItems())
	}
	return concatAllViews(views)
}

func (s *Sieve[K, V]) IterValues() View[V] {
	views := make([]View[V], 0, len(s.mappings))
	for _, m := range s.mappings {
		views = append(views, m.IterValues())
	}
	return concatAllViews(views)
}

// concatAllViews chains N views into one live view, re-evaluated on
// every call (§6: views reflect subsequent mutations, so nothing here
// is cached).
func concatAllViews[T any](views []View[T]) View[T] {
	return sliceView[T]{
		len: func() int {
			total := 0
			for _, v := range views {
				total += v.Len()
			}
			return total
		},
		contains: func(t T) bool {
			for _, v := range views {
				if v.Contains(t) {
					return true
				}
			}
			return false
		},
		items: func() []T {
			var out []T
			for _, v := range views {
				v.All()(func(t T) bool {
					out = append(out, t)
					return true
				})
			}
			return out
		},
	}
}

func (s *Sieve[K, V]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close marks the Sieve closed; children are referenced, not owned, and
// are never closed by this call.
func (s *Sieve[K, V]) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
