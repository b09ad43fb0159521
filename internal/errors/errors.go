// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrLegNotFound         = errors.New("leg not found")
	ErrInstanceNotFound    = errors.New("instance not found")
	ErrExitNotFound        = errors.New("risk exit not found")
	ErrNoEligibleInstances = errors.New("no eligible instances for broadcast")
	ErrContractNotFound    = errors.New("no listed contract at resolved strike")
	ErrEmptyChain          = errors.New("option chain has no strikes")
	ErrUnsupportedAction   = errors.New("unsupported action/mode combination")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrDuplicateTrigger    = errors.New("trigger already recorded")
	ErrEngineDisabled      = errors.New("risk engine disabled")
	ErrOrderRejected       = errors.New("order rejected")
	ErrTimeout             = errors.New("operation timed out")
	ErrDatabase            = errors.New("database error")
)

// ValidationError represents a validation error. Validation failures are
// rejected synchronously, before any order attempt.
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
	return &ValidationError{Field: field, Value: value, Message: message}
}

// NotFoundError carries the identifying key of a missing entity.
type NotFoundError struct {
	Entity string
	Key    string
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new NotFoundError wrapping the matching sentinel.
func NewNotFoundError(entity, key string, sentinel error) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key, Err: sentinel}
}

// BrokerError represents an upstream failure from one broker instance.
// It is always caught at the smallest scope and never aborts a batch.
type BrokerError struct {
	InstanceID string
	Op         string
	Err        error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker error [%s] %s: %v", e.InstanceID, e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(instanceID, op string, err error) *BrokerError {
	return &BrokerError{InstanceID: instanceID, Op: op, Err: err}
}

// OrderError represents an error related to order placement.
type OrderError struct {
	InstanceID string
	Symbol     string
	Side       string
	Reason     string
	Err        error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.InstanceID, e.Side, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.InstanceID, e.Side, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(instanceID, symbol, side, reason string, err error) *OrderError {
	return &OrderError{InstanceID: instanceID, Symbol: symbol, Side: side, Reason: reason, Err: err}
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
