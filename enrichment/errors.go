package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a failed enrichment call.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindTimeout    ErrorKind = "timeout"
	KindServer     ErrorKind = "server"
	KindHTTPStatus ErrorKind = "http-status"
	KindGeneric    ErrorKind = "generic"
)

// Error is a classified enrichment failure.
type Error struct {
	Kind   ErrorKind
	Status int // HTTP status when the server answered
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("enrichment: %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("enrichment: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the panel should offer a retry. Server errors
// are offered to the user but not retried automatically.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork, KindServer:
		return true
	}
	return false
}

// autoRetry reports whether the client retries the kind by itself.
func (e *Error) autoRetry() bool {
	return e.Kind == KindTimeout || e.Kind == KindNetwork
}

// Message is the text shown in the panel for the failure.
func (e *Error) Message() string {
	switch e.Kind {
	case KindTimeout:
		return "The enrichment service took too long to respond. Please try again."
	case KindNetwork:
		return "Could not reach the enrichment service. Check your connection and try again."
	case KindServer:
		return "The enrichment service is having trouble right now. Please try again shortly."
	case KindHTTPStatus:
		if e.Status == http.StatusNotFound {
			return "The enrichment endpoint was not found (404)."
		}
		return fmt.Sprintf("The enrichment service returned HTTP %d.", e.Status)
	}
	if e.Err != nil {
		return "Something went wrong while loading insights: " + e.Err.Error()
	}
	return "Something went wrong while loading insights."
}

// classify turns a transport error from http.Client.Do into a classified
// Error. attemptCtx is the per-attempt context whose deadline marks a
// timeout.
func classify(attemptCtx context.Context, err error) *Error {
	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindGeneric, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

// statusError classifies a non-2xx response.
func statusError(status int) *Error {
	err := fmt.Errorf("unexpected status %d", status)
	if status >= 500 && status <= 599 {
		return &Error{Kind: KindServer, Status: status, Err: err}
	}
	return &Error{Kind: KindHTTPStatus, Status: status, Err: err}
}

// failure synthesises the panel-facing Result for e.
func failure(e *Error) *Result {
	return &Result{
		Success:   false,
		Error:     e.Message(),
		ErrorType: e.Kind,
		Retryable: e.Retryable(),
	}
}
