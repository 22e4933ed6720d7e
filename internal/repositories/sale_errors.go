package repositories

import "fmt"

// SaleErrorCode enumerates failure reasons for sale persistence.
type SaleErrorCode string

const (
	// SaleErrorUnknown represents an unspecified failure.
	SaleErrorUnknown SaleErrorCode = "sale_unknown"
	// SaleErrorInvalidInput indicates the caller supplied invalid arguments.
	SaleErrorInvalidInput SaleErrorCode = "sale_invalid_input"
	// SaleErrorNotFound indicates the requested sale does not exist.
	SaleErrorNotFound SaleErrorCode = "sale_not_found"
	// SaleErrorInsufficientStock indicates a stock-tracked line could not be
	// covered by remaining purchase lot quantity at the location.
	SaleErrorInsufficientStock SaleErrorCode = "sale_insufficient_stock"
	// SaleErrorConflict indicates a concurrent update aborted the transaction.
	SaleErrorConflict SaleErrorCode = "sale_conflict"
)

// SaleError wraps sale-specific failures with machine readable codes.
type SaleError struct {
	Op      string
	Code    SaleErrorCode
	Message string
	// VariationID identifies the short line for insufficient stock failures.
	VariationID string
	// ProductName labels the short line for operator-facing messages.
	ProductName string
	Err         error
}

// Error implements the error interface.
func (e *SaleError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *SaleError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewSaleError constructs a typed sale error.
func NewSaleError(code SaleErrorCode, message string, err error) *SaleError {
	if message == "" {
		message = string(code)
	}
	return &SaleError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
