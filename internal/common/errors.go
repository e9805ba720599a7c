// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Classification errors.
	ErrUnclassifiedRow = errors.New("unclassified row")

	// Allocation errors.
	ErrMissingCategory       = errors.New("missing category")
	ErrInvalidReferenceTable = errors.New("invalid reference table")

	// Input errors.
	ErrNoInvoiceFiles = errors.New("no invoice files found")
	ErrNoInvoiceData  = errors.New("no invoice data after filtering")
	ErrInvalidRow     = errors.New("invalid row")
	ErrMissingColumn  = errors.New("missing column")

	// Storage errors.
	ErrNotFound = errors.New("not found")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RowError ties an error to a row of the invoice export.
type RowError struct {
	Err       error
	InvoiceID string
	Row       int
}

func (e *RowError) Error() string {
	if e.InvoiceID != "" {
		return fmt.Sprintf("row %d (invoice %s): %v", e.Row, e.InvoiceID, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ReferenceRowError ties an error to a row of the MMP reference table.
type ReferenceRowError struct {
	Err      error
	State    string
	Contract string
	Row      int
}

func (e *ReferenceRowError) Error() string {
	return fmt.Sprintf("reference row %d (state %q, contract %q): %v", e.Row, e.State, e.Contract, e.Err)
}

func (e *ReferenceRowError) Unwrap() error {
	return e.Err
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
