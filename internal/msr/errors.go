package msr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, named after sysrepo's own SR_ERR_* codes rather
// than Go-idiomatic type names, classified via errors.Is.
var (
	ErrInvalArg        = errors.New("msr: invalid argument")
	ErrNoMem           = errors.New("msr: allocation failure")
	ErrSystem          = errors.New("msr: system error")
	ErrNotFound        = errors.New("msr: not found")
	ErrInternal        = errors.New("msr: internal invariant violated")
	ErrUnsupported     = errors.New("msr: unsupported")
	ErrOperationFailed = errors.New("msr: operation failed")
	ErrExists          = errors.New("msr: already exists")
	ErrTimeout         = errors.New("msr: timeout")
)

// SrError is a structured error for callers that need the fielded form:
// a code, a human message, and an optional xpath naming what the error
// applies to, while still unwrapping to one of the sentinels above via
// errors.Is.
type SrError struct {
	Code    error
	Message string
	XPath   string
}

// Error implements the error interface.
func (e *SrError) Error() string {
	if e.XPath != "" {
		return fmt.Sprintf("%s: %s (xpath=%s)", e.Code, e.Message, e.XPath)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is/errors.As match against the underlying sentinel.
func (e *SrError) Unwrap() error { return e.Code }

// newErr builds a SrError with no xpath context.
func newErr(code error, format string, args ...any) *SrError {
	return &SrError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// newErrXPath builds a SrError carrying xpath context.
func newErrXPath(code error, xpath, format string, args ...any) *SrError {
	return &SrError{Code: code, Message: fmt.Sprintf(format, args...), XPath: xpath}
}
