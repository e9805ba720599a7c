// Package storage archives processed invoice runs in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/invoice-report/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidRun   = errors.New("invalid run")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateReport checks that a report can be archived.
func validateReport(report *model.Report) error {
	if report == nil {
		return fmt.Errorf("%w: report", ErrNilParameter)
	}
	if report.Period == "" {
		return fmt.Errorf("%w: missing period", ErrInvalidRun)
	}
	if report.GeneratedAt.IsZero() {
		return fmt.Errorf("%w: missing generation time", ErrInvalidRun)
	}
	return nil
}
