package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mpetrunic/ChainGuardian/lib/db"
	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want *Error
	}{
		{"NotReady", db.ErrNotReady, ErrEngineNotReady},
		{"InvalidKey", db.ErrInvalidKey, ErrInvalidOperation},
		{"IO", &db.IOError{Op: "put", Err: errors.New("disk full")}, ErrIOFailure},
		{"Deadline", context.DeadlineExceeded, ErrTimeout},
		{"WrappedDeadline", fmt.Errorf("send: %w", context.DeadlineExceeded), ErrTimeout},
		{"Canceled", context.Canceled, ErrCanceled},
		{"Other", errors.New("surprise"), ErrInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := FromError(tc.err)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, tc.err, "the cause stays reachable")
		})
	}

	assert.NoError(t, FromError(nil))

	remote := NewError(RetCTimeout, "from the other side")
	assert.Same(t, remote, FromError(remote))
}

func TestErrorIsComparesCodes(t *testing.T) {
	err := NewError(RetCEngineNotReady, "stopped")
	assert.ErrorIs(t, err, ErrEngineNotReady)
	assert.NotErrorIs(t, err, ErrIOFailure)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrEngineNotReady)
	assert.Contains(t, err.Error(), "EngineNotReady")
	assert.Equal(t, "Unknown(99)", RetCode(99).String())
}
