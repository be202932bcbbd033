package zict

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsOldestWhenOverWeight(t *testing.T) {
	d := NewMemMapping[string, int]()
	var evicted []string
	lru, err := NewLRU[string, int](2, d, WithOnEvict[string, int](func(k string, v int) error {
		evicted = append(evicted, k)
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, lru.Put("a", 1))
	require.NoError(t, lru.Put("b", 2))
	require.NoError(t, lru.Put("c", 3))

	assert.Equal(t, []string{"a"}, evicted)
	assert.False(t, lru.Contains("a"))
	assert.True(t, lru.Contains("b"))
	assert.True(t, lru.Contains("c"))
}

func TestLRUGetBumpsRecency(t *testing.T) {
	d := NewMemMapping[string, int]()
	var evicted []string
	lru, err := NewLRU[string, int](2, d, WithOnEvict[string, int](func(k string, v int) error {
		evicted = append(evicted, k)
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, lru.Put("a", 1))
	require.NoError(t, lru.Put("b", 2))
	_, err = lru.Get("a") // a is now more recent than b
	require.NoError(t, err)
	require.NoError(t, lru.Put("c", 3))

	assert.Equal(t, []string{"b"}, evicted)
}

func TestLRUHeavyKeyEvictedBeforeRecencyHead(t *testing.T) {
	d := NewMemMapping[string, int]()
	var evicted []string
	lru, err := NewLRU[string, int](3, d,
		WithWeight[string, int](func(k string, v int) int { return v }),
		WithOnEvict[string, int](func(k string, v int) error {
			evicted = append(evicted, k)
			return nil
		}),
	)
	require.NoError(t, err)

	require.NoError(t, lru.Put("light", 1))
	require.NoError(t, lru.Put("heavy", 5)) // weight 5 > n=3, always a heavy key
	// touch "light" so it would otherwise be the most-recently-used key
	_, err = lru.Get("light")
	require.NoError(t, err)
	require.NoError(t, lru.Put("other", 1))

	assert.Equal(t, []string{"heavy"}, evicted, "a heavy key is evicted before the recency head even when most recently touched")
}

func TestLRUHeavyKeySoleResidentStaysResident(t *testing.T) {
	d := NewMemMapping[string, int]()
	var evicted []string
	lru, err := NewLRU[string, int](3, d,
		WithWeight[string, int](func(k string, v int) int { return v }),
		WithOnEvict[string, int](func(k string, v int) error {
			evicted = append(evicted, k)
			return nil
		}),
	)
	require.NoError(t, err)

	require.NoError(t, lru.Put("big", 5)) // weight 5 > n=3, but the only resident key

	assert.Empty(t, evicted, "a heavy key with no other resident keys is kept best-effort")
	assert.True(t, lru.Contains("big"))

	// Once a second key joins it, "big" is no longer the sole resident
	// and is evicted first on the next pass.
	require.NoError(t, lru.Put("other", 1))
	assert.Equal(t, []string{"big"}, evicted)
	assert.False(t, lru.Contains("big"))
	assert.True(t, lru.Contains("other"))
}

func TestLRUStatsCountsHeavyEvictionsSeparately(t *testing.T) {
	d := NewMemMapping[string, int]()
	lru, err := NewLRU[string, int](2, d, WithWeight[string, int](func(k string, v int) int { return v }))
	require.NoError(t, err)

	require.NoError(t, lru.Put("big", 5))  // weight 5 > n=2, but sole resident: stays
	require.NoError(t, lru.Put("a", 1))    // evicts "big" as a heavy key
	require.NoError(t, lru.Put("b", 1))
	require.NoError(t, lru.Put("c", 1))    // evicts "a", not heavy

	stats := lru.Stats()
	assert.Equal(t, uint64(2), stats.Evictions)
	assert.Equal(t, uint64(1), stats.HeavyEvictions, "only the heavy-key eviction should count toward HeavyEvictions")
}

func TestLRUGetAllOrNothingSuccess(t *testing.T) {
	d := NewMemMapping[string, int]()
	lru, err := NewLRU[string, int](10, d)
	require.NoError(t, err)
	require.NoError(t, lru.Put("a", 1))
	require.NoError(t, lru.Put("b", 2))

	got, err := lru.GetAllOrNothing([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, got)
}

func TestLRUGetAllOrNothingFailureTouchesNoRecency(t *testing.T) {
	d := NewMemMapping[string, int]()
	var evicted []string
	lru, err := NewLRU[string, int](2, d, WithOnEvict[string, int](func(k string, v int) error {
		evicted = append(evicted, k)
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, lru.Put("a", 1))
	require.NoError(t, lru.Put("b", 2))

	_, err = lru.GetAllOrNothing([]string{"a", "missing"})
	var notFoundAny *NotFoundAnyError[string]
	require.True(t, errors.As(err, &notFoundAny))
	assert.Contains(t, notFoundAny.Missing, "missing")

	// "a" must not have been bumped to the tail by the failed batch, so
	// it is still the oldest and is the one evicted next.
	require.NoError(t, lru.Put("c", 3))
	assert.Equal(t, []string{"a"}, evicted)
}

func TestLRUCallbackFailureUnsuppressedKeepsKeyResident(t *testing.T) {
	d := NewMemMapping[string, int]()
	failOnce := true
	lru, err := NewLRU[string, int](1, d,
		WithOnEvict[string, int](func(k string, v int) error {
			if failOnce {
				failOnce = false
				return errors.New("write-back failed")
			}
			return nil
		}),
		WithOnEvictError[string, int](func(k string, v int, err error) bool {
			return false // do not suppress: the key must stay resident
		}),
	)
	require.NoError(t, err)

	require.NoError(t, lru.Put("a", 1))
	err = lru.Put("b", 2)

	var cbErr *CallbackFailure
	require.True(t, errors.As(err, &cbErr))
	assert.True(t, lru.Contains("a"), "unsuppressed callback failure leaves the victim resident")
}

func TestLRUCallbackFailureSuppressedEvictsAnyway(t *testing.T) {
	d := NewMemMapping[string, int]()
	lru, err := NewLRU[string, int](1, d,
		WithOnEvict[string, int](func(k string, v int) error {
			return errors.New("write-back failed")
		}),
		WithOnEvictError[string, int](func(k string, v int, err error) bool {
			return true // suppress: proceed with eviction anyway
		}),
	)
	require.NoError(t, err)

	require.NoError(t, lru.Put("a", 1))
	require.NoError(t, lru.Put("b", 2))
	assert.False(t, lru.Contains("a"))
}

func TestLRUDelayedEvictionBatchesCallbacks(t *testing.T) {
	d := NewMemMapping[string, int]()
	var evicted []string
	lru, err := NewLRU[string, int](1, d, WithOnEvict[string, int](func(k string, v int) error {
		evicted = append(evicted, k)
		return nil
	}))
	require.NoError(t, err)

	err = lru.WithDelayedEviction(func() error {
		if err := lru.Put("a", 1); err != nil {
			return err
		}
		if err := lru.Put("b", 1); err != nil {
			return err
		}
		assert.Empty(t, evicted, "no eviction should fire while the delayed-eviction scope is open")
		return lru.Put("c", 1)
	})
	require.NoError(t, err)
	assert.Len(t, evicted, 2, "both excess keys evict together once the scope closes")
}

func TestLRUNegativeNIsConfigurationError(t *testing.T) {
	_, err := NewLRU[string, int](-1, NewMemMapping[string, int]())
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLRUOnCacheEvictFiresOnCleanEviction(t *testing.T) {
	d := NewMemMapping[string, int]()
	var cacheEvicted []string
	lru, err := NewLRU[string, int](1, d, WithOnCacheEvict[string, int](func(k string, v int) {
		cacheEvicted = append(cacheEvicted, k)
	}))
	require.NoError(t, err)

	require.NoError(t, lru.Put("a", 1))
	require.NoError(t, lru.Put("b", 2))
	assert.Equal(t, []string{"a"}, cacheEvicted)
}
