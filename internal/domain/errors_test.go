package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	plain := NewDomainError(ErrCodeValidation, "bad input")
	assert.Equal(t, "[VALIDATION_ERROR] bad input", plain.Error())

	caused := NewDomainErrorWithCause(ErrCodeBackend, "request failed", errors.New("timeout"))
	assert.Equal(t, "[BACKEND_ERROR] request failed: timeout", caused.Error())
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDomainErrorWithCause(ErrCodeBackend, "request failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Nil(t, NewDomainError(ErrCodeInternal, "x").Unwrap())
}

func TestDomainError_ErrorsAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("processing batch 3: %w", ErrEmbeddingFailed)

	var de *DomainError
	require.True(t, errors.As(wrapped, &de))
	assert.Equal(t, ErrCodeBackend, de.Code)
	assert.ErrorIs(t, wrapped, ErrEmbeddingFailed)
}

func TestSentinelCodes(t *testing.T) {
	assert.Equal(t, ErrCodeValidation, ErrEmptyQuery.Code)
	assert.Equal(t, ErrCodeNotFound, ErrBaseNotFound.Code)
	assert.Equal(t, ErrCodeNotFound, ErrJobNotFound.Code)
	assert.Equal(t, ErrCodeCancelled, ErrIngestionCancelled.Code)
	assert.Equal(t, ErrCodeBackend, ErrPurgeFailed.Code)
	assert.Equal(t, ErrCodeConflict, ErrArchiveInProgress.Code)
}
