// Package errors provides structured error types for brcplan operations.
package errors

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// KindConfig represents invalid stream, slice or partition configuration.
	// Fatal: reported before any frame is planned.
	KindConfig ErrorKind = iota
	// KindResource represents a cross-frame feedback signal that could not be
	// obtained. Fatal for the encode session.
	KindResource
	// KindInsufficientSpace represents a caller buffer too small for the
	// current frame. The caller may reallocate and plan the same frame again.
	KindInsufficientSpace
	// KindState represents an operation invoked in the wrong lifecycle state.
	KindState
	// KindIO represents I/O errors.
	KindIO
	// KindSerialization represents checkpoint or dump encoding errors.
	KindSerialization
	// KindDispatch represents failures reported by the region dispatcher.
	KindDispatch
)

// String returns a string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "Configuration error"
	case KindResource:
		return "Resource error"
	case KindInsufficientSpace:
		return "Insufficient space"
	case KindState:
		return "State error"
	case KindIO:
		return "I/O error"
	case KindSerialization:
		return "Serialization error"
	case KindDispatch:
		return "Dispatch error"
	default:
		return "Unknown error"
	}
}

// CoreError is the main error type for brcplan operations.
type CoreError struct {
	Kind       ErrorKind
	Message    string
	Underlying error
}

func (e *CoreError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	return e.Underlying
}

// Is reports whether target matches this error's kind.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindConfig, Message: message, Underlying: underlying}
}

// NewResourceError creates an error for a feedback dependency that did not resolve.
func NewResourceError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindResource, Message: message, Underlying: underlying}
}

// NewInsufficientSpaceError creates an error for an undersized caller buffer.
func NewInsufficientSpaceError(what string, have, need int) *CoreError {
	return &CoreError{
		Kind:    KindInsufficientSpace,
		Message: fmt.Sprintf("%s holds %d entries, frame needs %d", what, have, need),
	}
}

// NewStateError creates an error for an out-of-order lifecycle call.
func NewStateError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindState, Message: message, Underlying: underlying}
}

// NewIOError creates a new I/O error.
func NewIOError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindIO, Message: message, Underlying: underlying}
}

// NewSerializationError creates a new serialization error.
func NewSerializationError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindSerialization, Message: message, Underlying: underlying}
}

// NewDispatchError creates an error for a failed region submission.
func NewDispatchError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindDispatch, Message: message, Underlying: underlying}
}

// IsKind checks if the error has the specified kind.
func IsKind(err error, kind ErrorKind) bool {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Kind == kind
	}
	return false
}

// IsRetryable reports whether the caller may reallocate and retry the same
// frame. Only insufficient-space conditions qualify.
func IsRetryable(err error) bool {
	return IsKind(err, KindInsufficientSpace)
}

// IsFatal reports whether the error ends the encode session.
func IsFatal(err error) bool {
	return err != nil && !IsRetryable(err)
}
