package providers

import (
	"fmt"
)

// StatusError is the structured failure every REST-based adapter returns for
// a non-2xx upstream response. Carrying the status code as a typed field
// lets the dispatch engine recover it with a plain errors.As and classify
// the failure per spec.md §7, instead of reflecting on an adapter-specific
// response struct.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

// statusErr builds a *StatusError for an upstream HTTP response.
func statusErr(statusCode int, message string) error {
	return &StatusError{StatusCode: statusCode, Message: message}
}

// TransportError signals a failure below the HTTP-status layer: the
// request never produced an upstream response at all (connection refused,
// DNS failure, timeout, context cancellation), or an SDK-native error
// (e.g. Bedrock's smithy.APIError) mapped onto the closest equivalent HTTP
// status. dispatch.toTransportError recognizes this shape directly and,
// when Status is unset, falls through to context.DeadlineExceeded/Canceled
// detection via Unwrap.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// wrapTransportErr wraps a raw error from an HTTP round trip (connection
// refused, DNS failure, timeout, context cancellation) into a
// *TransportError with no status, leaving the original error reachable
// through Unwrap so errors.Is(err, context.DeadlineExceeded) and
// errors.Is(err, context.Canceled) still see it.
func wrapTransportErr(err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Err: err}
}
