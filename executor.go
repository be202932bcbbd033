package zict

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

/*
Executor is "a task submitter that returns a future and a way to await
that future" (spec.md §9's own framing of what AsyncBuffer needs),
independent of whether the underlying runtime is a thread/goroutine pool
with blocking futures or a cooperative scheduler. AsyncBuffer's default
Executor is an unbounded goroutine executor (NewGoroutineExecutor(0))
built on golang.org/x/sync/errgroup, which can also be bounded,
grounded in the same library the pack already depends on (aistore, keda,
noisefs all require golang.org/x/sync) and in the errgroup.Go/Wait
fan-out pattern used in other_examples' dgraph backup-restore worker.
*/
type Executor interface {
	// Submit runs fn on the executor and returns a Future that resolves
	// to fn's error once fn returns. fn should honor ctx's cancellation.
	Submit(ctx context.Context, fn func(context.Context) error) Future
}

// Future is a handle to a task submitted to an Executor.
type Future interface {
	// Wait blocks until the task completes and returns its error, or
	// the error from the caller's own ctx being cancelled, whichever
	// happens first.
	Wait(ctx context.Context) error
}

// goroutineExecutor bounds concurrency with errgroup.Group.SetLimit and
// hands back a per-task Future backed by a completion channel, since a
// single errgroup.Wait() call (the library's own primitive) waits for
// every submitted task together rather than one at a time — AsyncBuffer
// needs to await a single key's pending demotion without blocking on
// every other in-flight one.
type goroutineExecutor struct {
	group *errgroup.Group
}

// NewGoroutineExecutor returns an Executor backed by an errgroup.Group
// limited to maxConcurrency simultaneous tasks (0 means unbounded).
func NewGoroutineExecutor(maxConcurrency int) Executor {
	g := &errgroup.Group{}
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}
	return &goroutineExecutor{group: g}
}

func (e *goroutineExecutor) Submit(ctx context.Context, fn func(context.Context) error) Future {
	done := make(chan struct{})
	var taskErr error
	e.group.Go(func() error {
		defer close(done)
		taskErr = fn(ctx)
		return taskErr
	})
	return &chanFuture{done: done, err: &taskErr}
}

type chanFuture struct {
	done chan struct{}
	err  *error
}

func (f *chanFuture) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return *f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isCancellation reports whether err represents a cancelled task, so
// OnEvictError handlers can distinguish cancellation from an ordinary
// backend failure per spec.md §5.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
