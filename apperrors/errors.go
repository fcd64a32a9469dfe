// Package apperrors defines the error taxonomy of the matching and
// reimbursement engine.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents a category of engine error
type ErrorType string

const (
	// ErrorTypeInvalidInput is a caller mistake: negative price, malformed CHIFA number...
	ErrorTypeInvalidInput ErrorType = "INVALID_INPUT"

	// ErrorTypeNotFound is informational, no catalog match
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeUpstreamUnavailable covers catalog and OCR engine failures
	ErrorTypeUpstreamUnavailable ErrorType = "UPSTREAM_UNAVAILABLE"

	// ErrorTypeAmbiguousMatch is informational, several candidates scored equally
	ErrorTypeAmbiguousMatch ErrorType = "AMBIGUOUS_MATCH"
)

// Sentinel values usable with errors.Is
var (
	ErrInvalidInput        = &AppError{Type: ErrorTypeInvalidInput}
	ErrNotFound            = &AppError{Type: ErrorTypeNotFound}
	ErrUpstreamUnavailable = &AppError{Type: ErrorTypeUpstreamUnavailable}
	ErrAmbiguousMatch      = &AppError{Type: ErrorTypeAmbiguousMatch}
)

// AppError represents an engine error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message == "" {
		return string(e.Type)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError of the same type, so that
// errors.Is(err, ErrInvalidInput) works for every invalid input error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// NewInvalidInputError creates a new invalid input error
func NewInvalidInputError(format string, args ...any) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidInput,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewAmbiguousMatchError reports a line whose best candidates scored equally.
// It is informational: every candidate is still returned.
func NewAmbiguousMatchError(line string, candidates []string) *AppError {
	return &AppError{
		Type:    ErrorTypeAmbiguousMatch,
		Message: fmt.Sprintf("%q matches %s equally", line, strings.Join(candidates, ", ")),
	}
}

// NewUpstreamError wraps a catalog or OCR engine failure
func NewUpstreamError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeUpstreamUnavailable,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the ErrorType carried by err, or "" when err is not an AppError
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}
