// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotConnected     = errors.New("feed not connected")
	ErrOrderNotFound    = errors.New("order not found")
	ErrTerminalOrder    = errors.New("order is in a terminal state")
	ErrRateLimited      = errors.New("rate limited")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrMalformedFeed    = errors.New("malformed feed message")
)

// ValidationError reports every violated rule of an order validation,
// not just the first.
type ValidationError struct {
	Rules []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("order validation failed: %s", strings.Join(e.Rules, "; "))
}

// NewValidationError creates a ValidationError from the violated rules.
func NewValidationError(rules []string) *ValidationError {
	return &ValidationError{Rules: rules}
}

// NotFoundError indicates an unknown order id.
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}

func (e *NotFoundError) Unwrap() error { return ErrOrderNotFound }

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(orderID string) *NotFoundError {
	return &NotFoundError{OrderID: orderID}
}

// InvalidStateError indicates a mutation attempted on an order whose
// status is terminal.
type InvalidStateError struct {
	OrderID string
	Status  string
	Action  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s order %s in %s status", e.Action, e.OrderID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrTerminalOrder }

// NewInvalidStateError creates an InvalidStateError.
func NewInvalidStateError(orderID, status, action string) *InvalidStateError {
	return &InvalidStateError{OrderID: orderID, Status: status, Action: action}
}

// UpstreamError wraps a failure from the broker client or feed parse,
// preserving the original message.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError creates an UpstreamError.
func NewUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err}
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
