package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := NewError(ErrNotFound, "resource missing")
	assert.Equal(t, "[NOT_FOUND] resource missing", err.Error())

	cause := errors.New("boom")
	err = NewError(ErrRemote, "invoke failed").WithCause(cause)
	assert.Equal(t, "[REMOTE_ERROR] invoke failed: boom", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_Retryable(t *testing.T) {
	err := NewError(ErrTimeout, "deadline exceeded").WithRetryable(true)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(NewError(ErrDuplicateID, "dup")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestGetErrorCode(t *testing.T) {
	require.Equal(t, ErrNoResourceAvailable, GetErrorCode(NewError(ErrNoResourceAvailable, "none")))
	require.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.True(t, IsCode(NewError(ErrDecomposition, "bad plan"), ErrDecomposition))
	assert.False(t, IsCode(nil, ErrDecomposition))
}
