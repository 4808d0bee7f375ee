package shared_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrecovery/internal/shared"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		context  string
		expected string
	}{
		{name: "simple error", err: errors.New("original"), context: "wrapper", expected: "wrapper: original"},
		{name: "empty context", err: errors.New("original"), context: "", expected: "original"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := shared.Wrap(tt.err, tt.context)
			require.NotNil(t, result)
			assert.Equal(t, tt.expected, result.Error())
			assert.ErrorIs(t, result, tt.err)
		})
	}

	assert.Nil(t, shared.Wrap(nil, "context"))
	assert.Nil(t, shared.Wrapf(nil, "context %d", 1))
}

func TestWrapf(t *testing.T) {
	err := shared.Wrapf(errors.New("declined"), "charge payment %s", "in_123")
	assert.EqualError(t, err, "charge payment in_123: declined")
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want shared.Kind
	}{
		{"nil", nil, shared.KindUnknown},
		{"unknown", errors.New("boom"), shared.KindUnknown},
		{"not found", shared.ErrNotFound, shared.KindNotFound},
		{"wrapped validation", shared.Wrap(shared.ErrValidation, "report"), shared.KindValidation},
		{"conflict helper", shared.Conflictf("payment %s is recovered", "p1"), shared.KindConflict},
		{"dependency", shared.MarkKind(errors.New("502"), shared.KindDependencyFailure), shared.KindDependencyFailure},
		{"context canceled", context.Canceled, shared.KindCanceled},
		{"deadline", context.DeadlineExceeded, shared.KindTimeout},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), shared.KindTimeout},
		{"joined priority", errors.Join(shared.ErrInternal, shared.ErrNotFound), shared.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shared.KindOf(tt.err))
			assert.True(t, shared.HasKind(tt.err, tt.want))
		})
	}
}

func TestMarkKind(t *testing.T) {
	original := errors.New("connection reset")

	marked := shared.MarkKind(original, shared.KindDependencyFailure)
	assert.ErrorIs(t, marked, original)
	assert.True(t, shared.IsDependencyFailure(marked))
	assert.Equal(t, "dependency failure: connection reset", marked.Error())

	assert.Same(t, marked, shared.MarkKind(marked, shared.KindDependencyFailure), "marking twice must not rewrap")
	assert.Equal(t, original, shared.MarkKind(original, shared.KindUnknown))
	assert.Equal(t, original, shared.MarkKind(original, shared.KindCanceled))
	assert.Equal(t, shared.ErrNotFound, shared.MarkKind(nil, shared.KindNotFound))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "NotFound", shared.KindNotFound.String())
	assert.Equal(t, "DependencyFailure", shared.KindDependencyFailure.String())
	assert.Equal(t, "Unknown", shared.Kind(99).String())
}

func TestPredicates(t *testing.T) {
	assert.True(t, shared.IsNotFound(shared.NotFoundf("payment %s", "p1")))
	assert.True(t, shared.IsValidation(shared.Validationf("attempt index %d", -1)))
	assert.True(t, shared.IsConflict(shared.ErrConflict))
	assert.Equal(t, shared.KindDependencyFailure, shared.KindOf(shared.DependencyFailuref("gateway %s", "down")))
	assert.True(t, shared.IsCanceled(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.False(t, shared.IsTimeout(nil))
	assert.False(t, shared.IsCanceled(nil))
}
