// Package errors defines the unified error taxonomy for the gateway.
// All collaborator errors (embedding, vector store, LLM, cache mirror) are
// mapped to a GatewayError so the HTTP layer and the circuit breakers have
// one shape to reason about.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a GatewayError for HTTP status mapping and circuit
// breaker accounting (spec §7).
type Code string

const (
	CodeBadRequest  Code = "bad_request"
	CodeUnavailable Code = "unavailable"
	CodeTimeout     Code = "timeout"
	CodeInternal    Code = "internal"
)

// GatewayError is the standard error shape returned by every collaborator
// client and surfaced (redacted) to HTTP clients.
type GatewayError struct {
	Code         Code
	Message      string
	RetryAfterMs int
	RateLimited  bool
	Cause        error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to reach the underlying cause.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// HTTPStatusCode maps a Code to the HTTP status returned to the client.
func (e *GatewayError) HTTPStatusCode() int {
	switch e.Code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewBadRequest creates a client-caused error (§7): malformed query,
// unknown mode, unknown source id. Never counted against a circuit breaker.
func NewBadRequest(message string) *GatewayError {
	return &GatewayError{Code: CodeBadRequest, Message: message}
}

// NewUnavailable creates an error for a collaborator that is down or
// refused the request (5xx, connection refused, circuit open).
func NewUnavailable(message string, cause error) *GatewayError {
	return &GatewayError{Code: CodeUnavailable, Message: message, Cause: cause}
}

// NewTimeout creates an error for a collaborator call that exceeded its
// deadline (§4.2 per-task timeout, §4.5 overall deadline).
func NewTimeout(message string, cause error) *GatewayError {
	return &GatewayError{Code: CodeTimeout, Message: message, Cause: cause}
}

// NewInternal creates an error for an invariant violation inside the
// gateway itself rather than a collaborator failure.
func NewInternal(message string, cause error) *GatewayError {
	return &GatewayError{Code: CodeInternal, Message: message, Cause: cause}
}

// NewRateLimited creates an unavailable error carrying a retry hint, used
// for 429 responses from a collaborator (§4.4 dampening).
func NewRateLimited(message string, retryAfterMs int, cause error) *GatewayError {
	return &GatewayError{Code: CodeUnavailable, Message: message, RetryAfterMs: retryAfterMs, RateLimited: true, Cause: cause}
}

// FromHTTPStatus classifies a collaborator's HTTP response status into a
// GatewayError, mirroring the status-code triage every adapter needs.
func FromHTTPStatus(statusCode int, message string, cause error) *GatewayError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewRateLimited(message, 0, cause)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return NewTimeout(message, cause)
	case statusCode >= 400 && statusCode < 500:
		return NewBadRequest(message)
	case statusCode >= 500:
		return NewUnavailable(message, cause)
	default:
		return NewInternal(message, cause)
	}
}

// CountsAgainstBreaker reports whether an error should count as a failure
// for circuit-breaker accounting (§4.4, §7): 5xx, timeouts, and internal
// errors always do; 429s count too but the breaker applies a dampening
// weight (see resilience.CircuitBreaker); bad-request client errors never
// do since they indicate a malformed caller input, not collaborator health.
func CountsAgainstBreaker(err error) bool {
	var gerr *GatewayError
	if !errors.As(err, &gerr) {
		return true
	}
	return gerr.Code != CodeBadRequest
}

// IsRateLimited reports whether err represents a 429-class rate limit.
func IsRateLimited(err error) bool {
	var gerr *GatewayError
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.RateLimited
}
