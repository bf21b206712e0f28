package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service wraps exactly one of these,
// so callers can classify with errors.Is.
var (
	// ErrNotFound is returned when a product, tutor, student, membership or
	// enrollment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidProduct is returned when a product exists but has the wrong type
	// for the requested flow.
	ErrInvalidProduct = errors.New("invalid product")

	// ErrConflict is returned on duplicate enrollments and uniqueness violations.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when manual activation is attempted in production.
	ErrForbidden = errors.New("forbidden")

	// ErrIntegrationFailure is returned when the payment gateway fails, times out
	// or answers with a malformed preference.
	ErrIntegrationFailure = errors.New("payment gateway integration failure")

	// ErrMalformedWebhook is returned for unusable webhook payloads and references.
	ErrMalformedWebhook = errors.New("malformed webhook")

	// ErrInvalidTransition is returned when a state machine rejects a transition.
	ErrInvalidTransition = errors.New("invalid state transition")
)

var (
	ErrProductNotFound    = fmt.Errorf("product %w", ErrNotFound)
	ErrTutorNotFound      = fmt.Errorf("tutor %w", ErrNotFound)
	ErrStudentNotFound    = fmt.Errorf("student %w", ErrNotFound)
	ErrMembershipNotFound = fmt.Errorf("membership %w", ErrNotFound)
	ErrEnrollmentNotFound = fmt.Errorf("enrollment %w", ErrNotFound)

	ErrDuplicateEnrollment    = fmt.Errorf("enrollment already exists: %w", ErrConflict)
	ErrActiveMembershipExists = fmt.Errorf("tutor already has an active membership: %w", ErrConflict)
	ErrPreferenceAlreadySet   = fmt.Errorf("preference already attached: %w", ErrConflict)

	ErrInvalidReference = fmt.Errorf("invalid external reference: %w", ErrMalformedWebhook)
	ErrAmountMismatch   = fmt.Errorf("paid amount does not match product price: %w", ErrInvalidTransition)
)

// PaymentError wraps a domain error with additional context.
type PaymentError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with PaymentError.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given error and message.
func NewPaymentError(err error, message, code string) *PaymentError {
	return &PaymentError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
