package errors

import (
	"errors"
	"fmt"
)

// Base error types
var (
	ErrValidation     = errors.New("validation failed")
	ErrSignature      = errors.New("signature mismatch")
	ErrDuplicateEvent = errors.New("duplicate event")
	ErrTransient      = errors.New("transient infrastructure failure")
	ErrConfiguration  = errors.New("invalid configuration")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeSignature     ErrorType = "signature"
	ErrorTypeDuplicate     ErrorType = "duplicate"
	ErrorTypeTransient     ErrorType = "transient"
	ErrorTypeConfiguration ErrorType = "configuration"
)

// Error is a categorized failure raised somewhere on the payment path.
type Error struct {
	Type ErrorType
	Op   string // operation that failed, e.g. "ledger.grant"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Type)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrValidation:
		return e.Type == ErrorTypeValidation
	case ErrSignature:
		return e.Type == ErrorTypeSignature
	case ErrDuplicateEvent:
		return e.Type == ErrorTypeDuplicate
	case ErrTransient:
		return e.Type == ErrorTypeTransient
	case ErrConfiguration:
		return e.Type == ErrorTypeConfiguration
	}

	return errors.Is(e.Err, target)
}

func newError(t ErrorType, op string, err error) *Error {
	return &Error{Type: t, Op: op, Err: err}
}

// Validation marks an unparseable or insufficient payload or argument.
func Validation(op string, err error) error {
	return newError(ErrorTypeValidation, op, err)
}

// Validationf is Validation with a formatted message.
func Validationf(op, format string, args ...any) error {
	return newError(ErrorTypeValidation, op, fmt.Errorf(format, args...))
}

// Signature marks a provider signature mismatch.
func Signature(op string, err error) error {
	return newError(ErrorTypeSignature, op, err)
}

// Duplicate marks an event that was already processed.
func Duplicate(op string, err error) error {
	return newError(ErrorTypeDuplicate, op, err)
}

// Transient marks a storage or messaging failure that is safe to redeliver.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return newError(ErrorTypeTransient, op, err)
}

// Configuration marks a startup configuration problem.
func Configuration(op string, err error) error {
	return newError(ErrorTypeConfiguration, op, err)
}

// TypeOf returns the category of err, or "" when err carries none.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

func IsValidation(err error) bool    { return errors.Is(err, ErrValidation) }
func IsSignature(err error) bool     { return errors.Is(err, ErrSignature) }
func IsDuplicate(err error) bool     { return errors.Is(err, ErrDuplicateEvent) }
func IsTransient(err error) bool     { return errors.Is(err, ErrTransient) }
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
