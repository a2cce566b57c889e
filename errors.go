package vblock

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// BackendError is the error type returned by stores and backends. Every
// BackendError unwraps to one of the root errors below, so callers can test for
// the category with errors.Is regardless of how much context was added.
type BackendError interface {
	error
	WithMessage(message string) BackendError
	Wrap(err error) BackendError
}

type baseBackendError string

const rootError = baseBackendError("")

// ErrIOFailed covers backing files that can't be opened, stat'ed, or mapped.
var ErrIOFailed = rootError.WithMessage("Input/output error")

// ErrOutOfRange is returned when a sector or byte range falls outside a store's
// mapped region.
var ErrOutOfRange = rootError.WithMessage("Sector out of range")

var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrReadOnly = rootError.WithMessage("Read-only backing store")
var ErrClosed = rootError.WithMessage("Backing store already closed")

// ErrPoisoned is only ever seen when a poison backend's terminator returns
// instead of ending the process.
var ErrPoisoned = rootError.WithMessage("Write refused by poisoned backend")

func (e baseBackendError) Error() string {
	return string(e)
}

func (e baseBackendError) WithMessage(message string) BackendError {
	return customBackendError{
		message:       message,
		originalError: e,
	}
}

func (e baseBackendError) Wrap(err error) BackendError {
	return customBackendError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customBackendError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customBackendError) Error() string {
	return e.message
}

func (e customBackendError) WithMessage(message string) BackendError {
	return customBackendError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customBackendError) Wrap(err error) BackendError {
	return customBackendError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customBackendError) Unwrap() error {
	return e.originalError
}
