package tensor

import (
	"errors"
	"fmt"
)

// Error kinds. Every typed error below matches exactly one of these with errors.Is.
var (
	ErrFormat     = errors.New("unsupported array format")
	ErrUse        = errors.New("invalid use of array")
	ErrNoOverload = errors.New("no matching overload")
	ErrAllocation = errors.New("allocation failed")
	ErrRankLimit  = errors.New("rank exceeds supported maximum")
)

// FormatError reports a foreign representation that cannot be normalized.
type FormatError struct {
	Source string // Which protocol or producer was being read (e.g. "exchange", "buffer")
	Detail string
	Err    error // Producer failure, if any
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	msg := ErrFormat.Error()
	if e.Source != "" {
		msg += ": " + e.Source
	}
	msg += ": " + e.Detail
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// Unwrap returns the producer failure, if any.
func (e *FormatError) Unwrap() error { return e.Err }

// UseError reports a lifetime violation: double consumption, or access after release.
type UseError struct {
	Op     string
	Detail string
}

// Error implements the error interface.
func (e *UseError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrUse, e.Op, e.Detail)
}

// Is reports whether target is ErrUse.
func (e *UseError) Is(target error) bool { return target == ErrUse }

// AllocationError reports a failed materialization buffer allocation.
type AllocationError struct {
	Bytes int
	Err   error // Underlying cause, if any
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %d bytes: %v", ErrAllocation, e.Bytes, e.Err)
	}
	return fmt.Sprintf("%v: %d bytes", ErrAllocation, e.Bytes)
}

// Is reports whether target is ErrAllocation.
func (e *AllocationError) Is(target error) bool { return target == ErrAllocation }

// Unwrap returns the underlying cause.
func (e *AllocationError) Unwrap() error { return e.Err }

// RankLimitError reports an array with more dimensions than supported.
type RankLimitError struct {
	NDim int
	Max  int
}

// Error implements the error interface.
func (e *RankLimitError) Error() string {
	return fmt.Sprintf("%v: ndim %d > %d", ErrRankLimit, e.NDim, e.Max)
}

// Is reports whether target is ErrRankLimit.
func (e *RankLimitError) Is(target error) bool { return target == ErrRankLimit }

// NewFormatError builds a FormatError for the named source.
func NewFormatError(source, format string, args ...any) error {
	return &FormatError{Source: source, Detail: fmt.Sprintf(format, args...)}
}

// NewUseError builds a UseError for the named operation.
func NewUseError(op, format string, args ...any) error {
	return &UseError{Op: op, Detail: fmt.Sprintf(format, args...)}
}
