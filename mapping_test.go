package zict

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundAnyErrorMessage(t *testing.T) {
	err := &NotFoundAnyError[string]{Missing: map[string]struct{}{"a": {}, "b": {}}}
	assert.Contains(t, err.Error(), "2 key(s) not found")
}

func TestNotFoundAnyErrorIsMatchesAnyInstance(t *testing.T) {
	a := &NotFoundAnyError[string]{Missing: map[string]struct{}{"a": {}}}
	b := &NotFoundAnyError[string]{Missing: map[string]struct{}{"b": {}, "c": {}}}
	assert.True(t, errors.Is(a, b), "Is compares by type, not by which keys are missing")
}

func TestWrapBackendFailurePreservesNotFound(t *testing.T) {
	assert.ErrorIs(t, wrapBackendFailure(ErrNotFound), ErrNotFound)
	assert.ErrorIs(t, wrapBackendFailure(ErrAlreadyClosed), ErrAlreadyClosed)
}

func TestWrapBackendFailureWrapsOtherErrors(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := wrapBackendFailure(cause)

	var backendErr *BackendFailure
	assert.ErrorAs(t, wrapped, &backendErr)
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapCallbackFailureNilIsNil(t *testing.T) {
	assert.NoError(t, wrapCallbackFailure(nil))
}

func TestSliceViewAllRespectsEarlyStop(t *testing.T) {
	v := sliceView[int]{
		len:      func() int { return 3 },
		contains: func(int) bool { return true },
		items:    func() []int { return []int{1, 2, 3} },
	}

	var seen []int
	v.All()(func(x int) bool {
		seen = append(seen, x)
		return x != 2
	})
	assert.Equal(t, []int{1, 2}, seen)
}
