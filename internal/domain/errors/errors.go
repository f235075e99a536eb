package errors

import (
	"errors"
	"fmt"
)

var (
	// Provider call failures.
	ErrProviderTransient   = errors.New("provider temporarily unavailable")
	ErrPaymentDeclined     = errors.New("payment declined by provider")
	ErrInvalidRequest      = errors.New("invalid provider request")
	ErrCredentialsExpired  = errors.New("provider credentials expired or revoked")
	ErrProviderUnavailable = errors.New("provider circuit open")

	// Reference state store.
	ErrOrderNotFound     = errors.New("order not found")
	ErrReferenceNotFound = errors.New("no payment reference stored for order")
	ErrEntityIDMismatch  = errors.New("entity id does not match stored id")
	ErrUnknownState      = errors.New("unknown entity state")
	ErrStoreUnavailable  = errors.New("reference state store unavailable")

	// Notification handling.
	ErrVerificationFailed = errors.New("notification verification failed")
	ErrMalformedMessage   = errors.New("malformed notification message")

	// Lock errors.
	ErrLockAcquisitionFailed = errors.New("failed to acquire order lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Validation errors.
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// IsRetryable reports whether an outbound call that returned err may be
// retried with the same idempotency token.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProviderTransient)
}

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
