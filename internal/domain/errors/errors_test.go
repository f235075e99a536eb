package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "payment_declined",
				Message: "authorization declined",
				Err:     errors.New("provider timeout"),
			},
			expected: "authorization declined: provider timeout",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "id_mismatch",
				Message: "capture id conflicts with stored id",
				Err:     nil,
			},
			expected: "capture id conflicts with stored id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	domainErr := &DomainError{
		Code:    "test",
		Message: "test message",
		Err:     originalErr,
	}

	unwrapped := domainErr.Unwrap()
	assert.Equal(t, originalErr, unwrapped)
}

func TestNewDomainError(t *testing.T) {
	originalErr := errors.New("underlying error")
	err := NewDomainError("test_code", "test message", originalErr)

	assert.NotNil(t, err)
	assert.Equal(t, "test_code", err.Code)
	assert.Equal(t, "test message", err.Message)
	assert.Equal(t, originalErr, err.Err)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:   "currency",
		Message: "must be a three-letter code",
	}

	expected := "validation failed for field currency: must be a three-letter code"
	assert.Equal(t, expected, err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("amount", "must be positive")

	assert.NotNil(t, err)
	assert.Equal(t, "amount", err.Field)
	assert.Equal(t, "must be positive", err.Message)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrProviderTransient))
	assert.True(t, IsRetryable(fmt.Errorf("call failed: %w", ErrProviderTransient)))

	// Everything else keeps the same idempotency token from being spent
	// on a hopeless retry.
	assert.False(t, IsRetryable(ErrPaymentDeclined))
	assert.False(t, IsRetryable(ErrInvalidRequest))
	assert.False(t, IsRetryable(ErrCredentialsExpired))
	assert.False(t, IsRetryable(ErrProviderUnavailable))
	assert.False(t, IsRetryable(errors.New("unclassified")))
	assert.False(t, IsRetryable(nil))
}

func TestErrorUnwrapping(t *testing.T) {
	wrappedErr := NewDomainError("provider_error", "provider call failed", ErrProviderTransient)

	assert.ErrorIs(t, wrappedErr, ErrProviderTransient)
	assert.True(t, IsRetryable(wrappedErr))
}
