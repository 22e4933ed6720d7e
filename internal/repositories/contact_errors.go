package repositories

import "fmt"

// ContactErrorCode enumerates failure reasons for contact operations.
type ContactErrorCode string

const (
	// ContactErrorUnknown represents an unspecified failure.
	ContactErrorUnknown ContactErrorCode = "contact_unknown"
	// ContactErrorInvalidInput indicates the caller supplied invalid arguments.
	ContactErrorInvalidInput ContactErrorCode = "contact_invalid_input"
	// ContactErrorNotFound indicates no contact matched the lookup.
	ContactErrorNotFound ContactErrorCode = "contact_not_found"
	// ContactErrorDuplicate indicates a contact with the same code already exists.
	ContactErrorDuplicate ContactErrorCode = "contact_duplicate"
)

// ContactError wraps contact-specific failures with machine readable codes.
type ContactError struct {
	Op      string
	Code    ContactErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ContactError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *ContactError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewContactError constructs a typed contact error.
func NewContactError(code ContactErrorCode, message string, err error) *ContactError {
	if message == "" {
		message = string(code)
	}
	return &ContactError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
