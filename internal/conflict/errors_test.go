package conflict

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Predicates(t *testing.T) {
	cause := errors.New("disk gone")
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"engine", NewEngineUnavailable("", cause), IsEngineUnavailable},
		{"callback", NewResolutionCallbackError("doc1", "callback returned an error", cause), IsResolutionCallbackError},
		{"transaction", NewTransactionConflict("doc1", cause), IsTransactionConflict},
		{"lifecycle", NewListenerLifecycleError("removed twice"), IsListenerLifecycleError},
	}
	predicates := []func(error) bool{IsEngineUnavailable, IsResolutionCallbackError, IsTransactionConflict, IsListenerLifecycleError}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.is(tt.err))
			assert.True(t, tt.is(fmt.Errorf("wrapped: %w", tt.err)), "predicates see through wrapping")

			matches := 0
			for _, p := range predicates {
				if p(tt.err) {
					matches++
				}
			}
			assert.Equal(t, 1, matches, "exactly one code matches")
		})
	}

	assert.False(t, IsEngineUnavailable(cause))
	assert.False(t, IsEngineUnavailable(nil))
}

func TestError_Unwrap(t *testing.T) {
	err := NewTransactionConflict("doc1", ErrLeavesChanged)
	assert.ErrorIs(t, err, ErrLeavesChanged)
}

func TestError_Message(t *testing.T) {
	err := NewTransactionConflict("doc1", errors.New("boom"))
	assert.Equal(t, "TRANSACTION_CONFLICT: resolution transaction rejected (doc=doc1): boom", err.Error())

	err = NewListenerLifecycleError("listener already removed")
	assert.Equal(t, "LISTENER_LIFECYCLE_ERROR: listener already removed", err.Error())
}
