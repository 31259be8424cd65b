package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the tester driver and runner.
var (
	ErrPWMExhausted    = fmt.Errorf("out of PWM channels: %w", ErrLimitReached)
	ErrTransportClosed = fmt.Errorf("transport closed")
	ErrMalformedFrame  = fmt.Errorf("malformed frame: %w", ErrInvalidInput)
	ErrUnknownMessage  = fmt.Errorf("unknown bus message: %w", ErrNotFound)
	ErrWrongMode       = fmt.Errorf("channel is in the wrong mode")
	ErrHiltNotFound    = fmt.Errorf("could not find HILT, make sure it is plugged in: %w", ErrNotFound)
	ErrMultipleHilts   = fmt.Errorf("multiple HILTs are not supported: %w", ErrDuplicate)
	ErrConfigLoad      = fmt.Errorf("failed to load configuration")
	ErrResultStore     = fmt.Errorf("result store operation failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Hilt.AnalogWrite")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for logs and the results journal.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodePWMExhausted    ErrorCode = "PWM_EXHAUSTED"
	CodeTransportClosed ErrorCode = "TRANSPORT_CLOSED"
	CodeMalformedFrame  ErrorCode = "MALFORMED_FRAME"
	CodeUnknownMessage  ErrorCode = "UNKNOWN_MESSAGE"
	CodeWrongMode       ErrorCode = "WRONG_MODE"
	CodeHiltNotFound    ErrorCode = "HILT_NOT_FOUND"
	CodeMultipleHilts   ErrorCode = "MULTIPLE_HILTS"
	CodeConfigLoad      ErrorCode = "CONFIG_LOAD"
	CodeResultStore     ErrorCode = "RESULT_STORE"

	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeDuplicate    ErrorCode = "DUPLICATE"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeLimitReached ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// specificCodes are checked before categoryCodes so that a sentinel wrapping a
// category resolves to its own code.
var specificCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrPWMExhausted, CodePWMExhausted},
	{ErrTransportClosed, CodeTransportClosed},
	{ErrMalformedFrame, CodeMalformedFrame},
	{ErrUnknownMessage, CodeUnknownMessage},
	{ErrWrongMode, CodeWrongMode},
	{ErrHiltNotFound, CodeHiltNotFound},
	{ErrMultipleHilts, CodeMultipleHilts},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrResultStore, CodeResultStore},
}

var categoryCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrNotFound, CodeNotFound},
	{ErrDuplicate, CodeDuplicate},
	{ErrTimeout, CodeTimeout},
	{ErrLimitReached, CodeLimitReached},
	{ErrInvalidInput, CodeInvalidInput},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, c := range specificCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	for _, c := range categoryCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
