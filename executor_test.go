package zict

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutineExecutorSubmitWait(t *testing.T) {
	e := NewGoroutineExecutor(0)
	fut := e.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.NoError(t, fut.Wait(context.Background()))
}

func TestGoroutineExecutorPropagatesTaskError(t *testing.T) {
	e := NewGoroutineExecutor(0)
	boom := errors.New("boom")
	fut := e.Submit(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, fut.Wait(context.Background()), boom)
}

func TestGoroutineExecutorWaitRespectsCallerContext(t *testing.T) {
	e := NewGoroutineExecutor(1)
	block := make(chan struct{})
	fut := e.Submit(context.Background(), func(ctx context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fut.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	close(block)
}

func TestIsCancellation(t *testing.T) {
	require.True(t, isCancellation(context.Canceled))
	require.True(t, isCancellation(context.DeadlineExceeded))
	require.False(t, isCancellation(errors.New("backend failure")))
}
