package zict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemMappingBasicOperations(t *testing.T) {
	m := NewMemMapping[string, int]()

	require.NoError(t, m.Put("a", 1))
	v, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	assert.True(t, m.Contains("a"))
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Delete("a"))
	_, err = m.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemMappingDeleteMissingIsNotFound(t *testing.T) {
	m := NewMemMapping[string, int]()
	assert.ErrorIs(t, m.Delete("missing"), ErrNotFound)
}

func TestMemMappingClosedRejectsOperations(t *testing.T) {
	m := NewMemMapping[string, int]()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close()) // idempotent, must not panic

	assert.ErrorIs(t, m.Put("a", 1), ErrAlreadyClosed)
	_, err := m.Get("a")
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestMemMappingJanitorSweepsExpired(t *testing.T) {
	expired := func(k string, v time.Time) bool {
		return time.Since(v) > 5*time.Millisecond
	}
	m := NewMemMapping[string, time.Time](WithJanitor[string, time.Time](2*time.Millisecond, expired))
	defer m.Close()

	require.NoError(t, m.Put("a", time.Now()))
	assert.Eventually(t, func() bool {
		return !m.Contains("a")
	}, time.Second, 2*time.Millisecond, "janitor should sweep the expired key")
}

func TestMemMappingIterItemsReflectsMutation(t *testing.T) {
	m := NewMemMapping[string, int]()
	require.NoError(t, m.Put("a", 1))

	view := m.IterItems()
	assert.Equal(t, 1, view.Len())

	require.NoError(t, m.Put("b", 2))
	assert.Equal(t, 2, view.Len(), "views are live, not frozen at construction")
}
