// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotFound             = errors.New("not found")
	ErrScanNotFound         = errors.New("scan not found")
	ErrRecommendationClosed = errors.New("recommendation already in a terminal state")
	ErrPresetNotFound       = errors.New("preset not found")
	ErrNoCandidates         = errors.New("no qualifying candidates")
	ErrInvalidThresholds    = errors.New("invalid filter thresholds")
	ErrDataUnavailable      = errors.New("market data unavailable")
	ErrRateLimited          = errors.New("rate limited")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrDatabaseError        = errors.New("database error")
)

// DataError represents a transient market-data failure. The caller retries
// with backoff; on exhaustion the scan records the failure for the ticker
// and continues with the rest.
type DataError struct {
	Ticker    string
	Operation string
	Err       error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %v", e.Ticker, e.Operation, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s", e.Ticker, e.Operation)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(ticker, operation string, err error) *DataError {
	return &DataError{
		Ticker:    ticker,
		Operation: operation,
		Err:       err,
	}
}

// ValidationError represents a validation error. It fails fast and is
// never silently defaulted.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsTransient reports whether the error is a transient data failure that
// the transport layer may retry.
func IsTransient(err error) bool {
	var de *DataError
	return errors.As(err, &de) || errors.Is(err, ErrDataUnavailable) || errors.Is(err, ErrRateLimited)
}
