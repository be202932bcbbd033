package zict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncBufferDemotesInBackground(t *testing.T) {
	fast := NewMemMapping[string, int]()
	slow := NewMemMapping[string, int]()
	buf, err := NewAsyncBuffer[string, int](fast, slow, 1)
	require.NoError(t, err)

	require.NoError(t, buf.Put(context.Background(), "a", 1))
	require.NoError(t, buf.Put(context.Background(), "b", 2))

	// Demotion is asynchronous, so poll until the settled state shows up.
	assert.Eventually(t, func() bool {
		return slow.Contains("a") && !fast.Contains("a")
	}, time.Second, time.Millisecond, "a should demote to slow in the background")
}

func TestAsyncBufferGetAwaitsPendingDemotion(t *testing.T) {
	fast := NewMemMapping[string, int]()
	slow := NewMemMapping[string, int]()
	buf, err := NewAsyncBuffer[string, int](fast, slow, 1)
	require.NoError(t, err)

	require.NoError(t, buf.Put(context.Background(), "a", 1))
	require.NoError(t, buf.Put(context.Background(), "b", 2)) // triggers a's background demotion

	v, err := buf.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestAsyncBufferAsyncGetDoesNotPromote(t *testing.T) {
	fast := NewMemMapping[string, int]()
	slow := NewMemMapping[string, int]()
	buf, err := NewAsyncBuffer[string, int](fast, slow, 1)
	require.NoError(t, err)

	require.NoError(t, buf.Put(context.Background(), "a", 1))
	require.NoError(t, buf.Put(context.Background(), "b", 2))

	assert.Eventually(t, func() bool { return slow.Contains("a") }, time.Second, time.Millisecond)

	got, err := buf.AsyncGet(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, got)
	assert.False(t, fast.Contains("a"), "AsyncGet must not promote a slow hit into fast")
}

func TestAsyncBufferAsyncGetAllOrNothing(t *testing.T) {
	fast := NewMemMapping[string, int]()
	slow := NewMemMapping[string, int]()
	buf, err := NewAsyncBuffer[string, int](fast, slow, 10)
	require.NoError(t, err)
	require.NoError(t, buf.Put(context.Background(), "a", 1))

	_, err = buf.AsyncGet(context.Background(), []string{"a", "missing"})
	var notFoundAny *NotFoundAnyError[string]
	assert.ErrorAs(t, err, &notFoundAny)
}
