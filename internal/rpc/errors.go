package rpc

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTimeout = errors.New("rpc: call timed out")
	ErrClosed  = errors.New("rpc: client closed")
)

// RemoteError is returned when the service answered with a failure
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: %s failed remotely: %s", e.Method, e.Message)
}

// TransportError is returned when the request could not be published
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc: %s not sent: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorCategory represents the classification of call errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryTimeout indicates the service did not answer in time
	ErrCategoryTimeout ErrorCategory = iota
	// ErrCategoryRemote indicates the service answered with a failure
	ErrCategoryRemote
	// ErrCategoryTransport indicates the broker could not take the request
	ErrCategoryTransport
	// ErrCategoryCancelled indicates the caller gave up
	ErrCategoryCancelled
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryRemote:
		return "remote"
	case ErrCategoryTransport:
		return "transport"
	case ErrCategoryCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify categorizes an error returned by Call
func Classify(err error) ErrorCategory {
	var remote *RemoteError
	var transport *TransportError

	switch {
	case err == nil:
		return ErrCategoryUnknown
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrCategoryTimeout
	case errors.As(err, &remote):
		return ErrCategoryRemote
	case errors.As(err, &transport), errors.Is(err, ErrClosed):
		return ErrCategoryTransport
	case errors.Is(err, context.Canceled):
		return ErrCategoryCancelled
	default:
		return ErrCategoryUnknown
	}
}
