// errors.go defines the error taxonomy shared by the transport, the retry
// policy, and the operations that render errors as text.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	// ErrValidation marks input rejected before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrMalformedResponse marks a response that decoded but lacks the
	// expected top-level keys. Usually an API version mismatch.
	ErrMalformedResponse = errors.New("unexpected API response format")

	// ErrRetriesExhausted is returned when the retry loop ends without
	// having captured an error, which only happens with a non-positive
	// attempt bound.
	ErrRetriesExhausted = errors.New("retry attempts exhausted without result")
)

// APIError is a non-2xx HTTP response from the agent service. It is never
// retried.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Detail returns the server-provided message, falling back to the
// standard status text.
func (e *APIError) Detail() string {
	if e.Body != "" {
		return e.Body
	}
	return http.StatusText(e.StatusCode)
}

// IsNotFound reports whether err is an HTTP 404 from the agent service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsTransient reports whether err is a timeout or connection failure worth
// retrying. HTTP status errors and malformed bodies are not transient.
// Cancellation of the caller's own context is not transient either; a
// per-request deadline surfaces as a net.Error timeout instead.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) || errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrValidation) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// *url.Error satisfies net.Error for every client failure, including bad
	// schemes and TLS errors, so only its timeout flag counts here.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}

// isTimeout reports whether err is a timeout as opposed to a refused or
// dropped connection.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
