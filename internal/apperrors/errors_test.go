package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRetryable_WrapsChain(t *testing.T) {
	err := NewRetryable(ErrOracle, "ocr call to %s", "http://ocr")

	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
	assert.True(t, errors.Is(err, ErrOracle))
	assert.Equal(t, "retryable: ocr call to http://ocr: oracle call failed", err.Error())
}

func TestNewFatal_WrapsChain(t *testing.T) {
	err := NewFatal(ErrPatternNotFound, "identity number")

	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))
	assert.True(t, errors.Is(err, ErrPatternNotFound))
	assert.Equal(t, "fatal: identity number: pattern not found", err.Error())
}

func TestIsTransient(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "retryable", err: NewRetryable(ErrTimeout, "fetch"), expected: true},
		{name: "fatal", err: NewFatal(ErrUnknownDocumentType, "classify"), expected: false},
		{name: "fatal wrapping retryable", err: NewFatal(NewRetryable(ErrOracle, "inner"), "outer"), expected: false},
		{name: "wrapped fatal", err: fmt.Errorf("process: %w", NewFatal(ErrVerificationRejected, "bank")), expected: false},
		{name: "unclassified", err: errors.New("boom"), expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsTransient(tc.err))
		})
	}
}

func TestSentinelCheckers(t *testing.T) {
	assert.True(t, IsNotFoundError(fmt.Errorf("%w: job", ErrNotFound)))
	assert.True(t, IsConflictError(fmt.Errorf("%w: stale status", ErrConflict)))
	assert.True(t, IsInvalidTransitionError(fmt.Errorf("%w: completed -> queued", ErrInvalidTransition)))
	assert.True(t, IsDuplicateError(ErrDuplicate))
	assert.True(t, IsDatabaseError(ErrDatabase))
	assert.True(t, IsValidationError(ErrValidation))
	assert.True(t, IsTimeoutError(ErrTimeout))
	assert.False(t, IsNotFoundError(ErrConflict))
}
