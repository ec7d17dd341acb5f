package lazy

import (
	"errors"
	"fmt"
)

// Error represents misuse of the deferred-graph contract.
//
// Errors raised by the Engine Handle itself are never converted to Error;
// they reach the caller of Force unchanged.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the operation name involved, if any.
	Op string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes graph errors.
type ErrorCode string

const (
	// ErrCodeInvalidArguments indicates wrong arity, keyword usage or operand
	// type for an optimized operation. A caller bug; never retried.
	ErrCodeInvalidArguments ErrorCode = "INVALID_ARGUMENTS"

	// ErrCodeInvalidOperation indicates the lazy-graph contract was violated:
	// serializing an unevaluated node, registering a fusible call after its
	// siblings were forced, or applying a dataset operation to a scalar.
	ErrCodeInvalidOperation ErrorCode = "INVALID_OPERATION"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidArguments reports whether err is an INVALID_ARGUMENTS error.
// Uses errors.As to handle wrapped errors.
func IsInvalidArguments(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeInvalidArguments
	}
	return false
}

// IsInvalidOperation reports whether err is an INVALID_OPERATION error.
// Uses errors.As to handle wrapped errors.
func IsInvalidOperation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeInvalidOperation
	}
	return false
}

func invalidArguments(op string, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidArguments, Op: op, Message: fmt.Sprintf(format, args...)}
}

func invalidOperation(op string, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidOperation, Op: op, Message: fmt.Sprintf(format, args...)}
}
