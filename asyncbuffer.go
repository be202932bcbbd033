package zict

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

/*
AsyncBuffer is Buffer's background-demotion variant: the internal LRU's
on-evict callback no longer writes to slow synchronously — it submits
that write to an Executor and tracks the resulting Future per key, so
Put/eviction never blocks on the slow tier's I/O. Get blocks only on the
specific key's own pending demotion, if any; unrelated keys are never
held up.

================================================================================
FAILURE HANDLING
================================================================================

A background goroutine per demotion (finalizeDemotion) awaits its own
Future and, on failure, routes the error through OnDemoteError exactly
once: suppressed, the key is dropped (it is already gone from fast and
the slow write failed, so it is in neither tier); not suppressed, the
key is restored to fast with recency
reinstated at the tail, i.e. as if it had just been written, per
spec.md §4.4.

pending has its own mutex, separate from bmu: the on-evict callback that
populates it runs synchronously inside lru.Put, which Get/Put call while
already holding bmu. Guarding pending with bmu too would make that
callback re-lock a mutex its own calling goroutine already holds.
*/
type AsyncBuffer[K comparable, V any] struct {
	bmu sync.Mutex

	fast Mapping[K, V]
	slow Mapping[K, V]
	lru  *LRU[K, V]

	executor  Executor
	pendingMu sync.Mutex
	pending   map[K]Future

	slowToFast []func(K, V)

	statsMu sync.Mutex
	stats   BufferStats
	closed  bool
}

// NewAsyncBuffer constructs an AsyncBuffer whose fast tier is bounded by
// weight n and whose demotions run on executor (default:
// NewGoroutineExecutor(0), unbounded).
func NewAsyncBuffer[K comparable, V any](fast, slow Mapping[K, V], n int, opts ...AsyncBufferOption[K, V]) (*AsyncBuffer[K, V], error) {
	cfg := &asyncBufferConfig[K, V]{}
	for _, opt := range opts {
		opt(cfg)
	}
	bufCfg := &bufferConfig[K, V]{}
	for _, opt := range cfg.bufferOpts {
		opt(bufCfg)
	}
	executor := cfg.executor
	if executor == nil {
		executor = NewGoroutineExecutor(0)
	}

	b := &AsyncBuffer[K, V]{
		fast:       fast,
		slow:       slow,
		executor:   executor,
		pending:    make(map[K]Future),
		slowToFast: bufCfg.slowToFast,
	}

	lruOpts := []LRUOption[K, V]{
		WithOnEvict[K, V](func(k K, v V) error {
			fut := b.executor.Submit(context.Background(), func(ctx context.Context) error {
				return b.slow.Put(k, v)
			})
			b.pendingMu.Lock()
			b.pending[k] = fut
			b.pendingMu.Unlock()
			b.statsMu.Lock()
			b.stats.Demotions++
			b.statsMu.Unlock()
			go b.finalizeDemotion(k, v, fut, bufCfg.onDemoteError, bufCfg.fastToSlow)
			return nil
		}),
	}
	if bufCfg.weight != nil {
		lruOpts = append(lruOpts, WithWeight(bufCfg.weight))
	}

	lru, err := NewLRU[K, V](n, fast, lruOpts...)
	if err != nil {
		return nil, err
	}
	b.lru = lru
	return b, nil
}

func (b *AsyncBuffer[K, V]) finalizeDemotion(k K, v V, fut Future, onDemoteError func(K, V, error) bool, fastToSlow []func(K, V)) {
	err := fut.Wait(context.Background())

	b.pendingMu.Lock()
	if cur, ok := b.pending[k]; ok && cur == fut {
		delete(b.pending, k)
	}
	b.pendingMu.Unlock()

	if err != nil {
		if isCancellation(err) {
			err = errors.Wrap(err, "demotion cancelled")
		}
		handled := onDemoteError != nil && onDemoteError(k, v, err)
		if !handled {
			_ = b.lru.Put(k, v)
		}
		return
	}
	for _, cb := range fastToSlow {
		cb(k, v)
	}
}

// Get blocks until k's pending demotion (if any) completes, then
// proceeds exactly like Buffer.Get: fast hit, else slow hit with
// promotion, else NotFound.
func (b *AsyncBuffer[K, V]) Get(ctx context.Context, k K) (V, error) {
	var zero V
	if b.isClosed() {
		return zero, ErrAlreadyClosed
	}
	b.awaitPending(ctx, k)

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

// AsyncGet fetches several keys without ever promoting, all-or-nothing
// like LRU.GetAllOrNothing: if any key is in neither tier, it returns a
// NotFoundAnyError naming those keys. Unlike GetAllOrNothing, it reads
// fast directly and touches no key's recency, even on success, with
// demotions resolved in place. On a miss it awaits that
// key's pending demotion (or reads slow directly once no demotion is
// pending) rather than promoting it into fast — promotion is left to the
// caller's own subsequent Get calls, so a batch fetch never re-demotes
// the very keys it just assembled.
func (b *AsyncBuffer[K, V]) AsyncGet(ctx context.Context, ks []K) (map[K]V, error) {
	if b.isClosed() {
		return nil, ErrAlreadyClosed
	}

	out := make(map[K]V, len(ks))
	missing := make(map[K]struct{})
	for _, k := range ks {
		v, err := b.peek(k)
		if err == nil {
			out[k] = v
			continue
		}
		if !isNotFound(err) {
			return nil, err
		}
		missing[k] = struct{}{}
	}
	if len(missing) == 0 {
		return out, nil
	}

	for k := range missing {
		b.awaitPending(ctx, k)
	}

	stillMissing := make(map[K]struct{})
	for k := range missing {
		v, err := b.peek(k)
		if err == nil {
			out[k] = v
			continue
		}
		if !isNotFound(err) {
			return nil, err
		}
		stillMissing[k] = struct{}{}
	}
	if len(stillMissing) > 0 {
		return nil, &NotFoundAnyError[K]{Missing: stillMissing}
	}
	return out, nil
}

// peek reads k from fast then slow without touching recency or
// promoting — the read AsyncGet needs, distinct from the ordinary
// promote-on-read Get.
func (b *AsyncBuffer[K, V]) peek(k K) (V, error) {
	var zero V
	if v, err := b.fast.Get(k); err == nil {
		return v, nil
	} else if !isNotFound(err) {
		return zero, wrapBackendFailure(err)
	}
	return b.slow.Get(k)
}

func (b *AsyncBuffer[K, V]) awaitPending(ctx context.Context, k K) {
	b.pendingMu.Lock()
	fut, ok := b.pending[k]
	b.pendingMu.Unlock()
	if ok {
		_ = fut.Wait(ctx)
	}
}

// Put waits out any pending demotion for k (so the stale value that
// demotion is carrying to slow cannot land after this fresh write),
// removes any stale copy of k from slow, then writes through to fast.
func (b *AsyncBuffer[K, V]) Put(ctx context.Context, k K, v V) error {
	if b.isClosed() {
		return ErrAlreadyClosed
	}
	b.awaitPending(ctx, k)
	b.bmu.Lock()
	defer b.bmu.Unlock()
	if err := b.slow.Delete(k); err != nil && !isNotFound(err) {
		return wrapBackendFailure(err)
	}
	return b.lru.Put(k, v)
}

// Delete waits out any pending demotion for k, then removes it from
// both tiers.
func (b *AsyncBuffer[K, V]) Delete(ctx context.Context, k K) error {
	if b.isClosed() {
		return ErrAlreadyClosed
	}
	b.awaitPending(ctx, k)
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

func (b *AsyncBuffer[K, V]) Contains(k K) bool {
	if b.isClosed() {
		return false
	}
	return b.lru.Contains(k) || b.slow.Contains(k)
}

func (b *AsyncBuffer[K, V]) Len() int { return b.lru.Len() + b.slow.Len() }

func (b *AsyncBuffer[K, V]) IterKeys() View[K] {
	return concatView(b.lru.IterKeys(), b.slow.IterKeys())
}

func (b *AsyncBuffer[K, V]) IterItems() View[Pair[K, V]] {
	return concatView(b.lru.IterItems(), b.slow.IterItems())
}

func (b *AsyncBuffer[K, V]) IterValues() View[V] {
	return concatView(b.lru.IterValues(), b.slow.IterValues())
}

// Close marks the AsyncBuffer closed without waiting for in-flight
// demotions; callers that need a quiesced shutdown should drain pending
// demotions (e.g. via AsyncGet or Get on the keys they care about)
// before calling Close.
func (b *AsyncBuffer[K, V]) Close() error {
	b.statsMu.Lock()
	b.closed = true
	b.statsMu.Unlock()
	return b.lru.Close()
}

func (b *AsyncBuffer[K, V]) Stats() BufferStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.stats
}

func (b *AsyncBuffer[K, V]) N() int      { return b.lru.N() }
func (b *AsyncBuffer[K, V]) Offset() int { return b.lru.Offset() }

func (b *AsyncBuffer[K, V]) isClosed() bool {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.closed
}

func (b *AsyncBuffer[K, V]) recordFastHit() {
	b.statsMu.Lock()
	b.stats.FastHits++
	b.statsMu.Unlock()
}

func (b *AsyncBuffer[K, V]) recordMiss() {
	b.statsMu.Lock()
	b.stats.Misses++
	b.statsMu.Unlock()
}

func (b *AsyncBuffer[K, V]) recordPromotion() {
	b.statsMu.Lock()
	b.stats.Promotions++
	b.stats.SlowHits++
	b.statsMu.Unlock()
}
