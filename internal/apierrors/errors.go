// Package apierrors defines the structured error taxonomy for the Lightdash
// MCP server. Every failure that crosses the tool boundary resolves to exactly
// one Kind, carrying a human-readable message and a retryable flag so that
// callers never have to parse error strings.
package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindInvalidArgument means caller-supplied arguments failed shape validation.
	KindInvalidArgument Kind = "InvalidArgument"
	// KindSessionNotFound means the referenced gateway session was closed,
	// expired, or never existed. The caller must re-handshake.
	KindSessionNotFound Kind = "SessionNotFound"
	// KindUnauthorized means Lightdash rejected the API key.
	KindUnauthorized Kind = "Unauthorized"
	// KindForbidden means the authenticated identity lacks permission.
	KindForbidden Kind = "Forbidden"
	// KindNotFound means the referenced project/explore/chart does not exist.
	KindNotFound Kind = "NotFound"
	// KindRateLimited means Lightdash signalled throttling.
	KindRateLimited Kind = "RateLimited"
	// KindUpstreamUnavailable means a network failure, timeout, or upstream 5xx.
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	// KindUpstreamError is any other upstream failure shape.
	KindUpstreamError Kind = "UpstreamError"
	// KindMalformedUpstreamResponse means a success-shaped payload that could
	// not be parsed. Retrying would reproduce the same payload.
	KindMalformedUpstreamResponse Kind = "MalformedUpstreamResponse"
)

// StructuredError is the single error shape surfaced to MCP callers.
type StructuredError struct {
	Kind           Kind   `json:"kind"`
	Message        string `json:"message"`
	Retryable      bool   `json:"retryable"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	Suggestion     string `json:"suggestion,omitempty"`
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// ToJSON converts the error to a JSON string for tool responses.
func (e *StructuredError) ToJSON() string {
	bytes, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"kind":"%s","message":"%s","retryable":%t}`, e.Kind, e.Message, e.Retryable)
	}
	return string(bytes)
}

// WithSuggestion adds a recovery suggestion to the error.
func (e *StructuredError) WithSuggestion(suggestion string) *StructuredError {
	e.Suggestion = suggestion
	return e
}

// New creates a structured error of the given kind. The retryable flag is
// derived from the kind, never chosen by the call site.
func New(kind Kind, message string) *StructuredError {
	return &StructuredError{
		Kind:      kind,
		Message:   message,
		Retryable: kind == KindRateLimited || kind == KindUpstreamUnavailable,
	}
}

// Common constructors

// NewInvalidArgument creates an argument validation error.
func NewInvalidArgument(message string) *StructuredError {
	return New(KindInvalidArgument, message).
		WithSuggestion("Check the tool arguments against the input schema and try again")
}

// NewMissingArgument creates an error for an omitted required argument.
func NewMissingArgument(name string) *StructuredError {
	return New(KindInvalidArgument, fmt.Sprintf("required argument %q is missing", name)).
		WithSuggestion(fmt.Sprintf("Provide the %q argument", name))
}

// NewSessionNotFound creates an unknown-session error.
func NewSessionNotFound(sessionID string) *StructuredError {
	return New(KindSessionNotFound, fmt.Sprintf("session %q is closed, expired, or unknown", sessionID)).
		WithSuggestion("Open a new session and retry the call")
}

// NewUnauthorized creates an upstream credential rejection error.
func NewUnauthorized() *StructuredError {
	e := New(KindUnauthorized, "Lightdash rejected the API key")
	e.UpstreamStatus = 401
	return e.WithSuggestion("Check LIGHTDASH_API_KEY and that the token has not been revoked")
}

// NewForbidden creates an upstream permission error.
func NewForbidden(resource string) *StructuredError {
	e := New(KindForbidden, fmt.Sprintf("access to %s is forbidden", resource))
	e.UpstreamStatus = 403
	return e.WithSuggestion("Check the token's project permissions in Lightdash")
}

// NewNotFound creates an upstream missing-resource error.
func NewNotFound(resourceType, id string) *StructuredError {
	e := New(KindNotFound, fmt.Sprintf("%s %q not found", resourceType, id))
	e.UpstreamStatus = 404
	return e.WithSuggestion(fmt.Sprintf("Verify the %s identifier and try again", resourceType))
}

// NewRateLimited creates an upstream throttling error.
func NewRateLimited() *StructuredError {
	e := New(KindRateLimited, "Lightdash is rate limiting requests")
	e.UpstreamStatus = 429
	return e.WithSuggestion("Wait a moment and try again")
}

// NewUpstreamUnavailable creates a transient upstream failure error.
func NewUpstreamUnavailable(message string) *StructuredError {
	return New(KindUpstreamUnavailable, message).
		WithSuggestion("The Lightdash instance may be briefly unavailable; try again shortly")
}

// NewUpstreamError creates a non-retryable upstream failure error.
func NewUpstreamError(statusCode int, message string) *StructuredError {
	e := New(KindUpstreamError, message)
	e.UpstreamStatus = statusCode
	return e
}

// NewMalformedUpstreamResponse creates an unparseable-payload error.
func NewMalformedUpstreamResponse(message string) *StructuredError {
	return New(KindMalformedUpstreamResponse, message).
		WithSuggestion("This usually indicates a Lightdash API change; check server logs")
}

// FromHTTPStatus maps an upstream HTTP status code onto the taxonomy.
// The message usually comes from the Lightdash error envelope.
func FromHTTPStatus(statusCode int, message string) *StructuredError {
	switch {
	case statusCode == 401:
		e := New(KindUnauthorized, messageOr(message, "Lightdash rejected the API key"))
		e.UpstreamStatus = statusCode
		return e.WithSuggestion("Check LIGHTDASH_API_KEY and that the token has not been revoked")
	case statusCode == 403:
		e := New(KindForbidden, messageOr(message, "access forbidden"))
		e.UpstreamStatus = statusCode
		return e.WithSuggestion("Check the token's project permissions in Lightdash")
	case statusCode == 404:
		e := New(KindNotFound, messageOr(message, "resource not found"))
		e.UpstreamStatus = statusCode
		return e
	case statusCode == 429:
		e := New(KindRateLimited, messageOr(message, "Lightdash is rate limiting requests"))
		e.UpstreamStatus = statusCode
		return e.WithSuggestion("Wait a moment and try again")
	case statusCode >= 500 && statusCode < 600:
		e := NewUpstreamUnavailable(messageOr(message, fmt.Sprintf("Lightdash returned HTTP %d", statusCode)))
		e.UpstreamStatus = statusCode
		return e
	default:
		return NewUpstreamError(statusCode, messageOr(message, fmt.Sprintf("unexpected HTTP %d from Lightdash", statusCode)))
	}
}

func messageOr(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

// AsStructured extracts a StructuredError from an error chain. Anything that
// is not already structured is wrapped as a non-retryable UpstreamError so no
// unstructured fault can cross the session boundary.
func AsStructured(err error) *StructuredError {
	var se *StructuredError
	if errors.As(err, &se) {
		return se
	}
	return New(KindUpstreamError, err.Error())
}

// IsRetryable reports whether the error is classified as transient.
func IsRetryable(err error) bool {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// KindOf returns the kind of a structured error, or KindUpstreamError for
// anything unclassified.
func KindOf(err error) Kind {
	return AsStructured(err).Kind
}
