// Package types provides shared wire records, interfaces, and errors for the application.
package types

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies an error for surfacing to callers.
type Kind string

// Error kinds, in the order they surface to HTTP.
const (
	KindInvalidInput          Kind = "invalid_input"
	KindUnauthorized          Kind = "unauthorized"
	KindBrowserUnavailable    Kind = "browser_unavailable"
	KindSessionCreationFailed Kind = "session_creation_failed"
	KindNavigationBlocked     Kind = "navigation_blocked"
	KindNetworkError          Kind = "network_error"
	KindTimeout               Kind = "timeout"
	KindExtractionError       Kind = "extraction_error"
)

// HTTPStatus maps an error kind to its response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBrowserUnavailable, KindSessionCreationFailed:
		return http.StatusServiceUnavailable
	case KindNavigationBlocked, KindNetworkError:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Browser lifecycle errors
	ErrBrowserUnavailable    = errors.New("browser engine could not be started")
	ErrBrowserShuttingDown   = errors.New("browser manager is shutting down")
	ErrBrowserDisconnected   = errors.New("browser connection lost")
	ErrSessionCreationFailed = errors.New("failed to create isolated browser context")

	// Navigation errors
	ErrNavigationBlocked = errors.New("target served an anti-automation block page")
	ErrNetworkFailure    = errors.New("network error while navigating")
	ErrRenderTimeout     = errors.New("render exceeded its wall-clock budget")
	ErrExtractionFailed  = errors.New("page content could not be extracted")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrURLRequired    = errors.New("url is required")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrUnauthorized   = errors.New("unauthorized")
)

// RenderError carries the full error surface of a failed render: kind,
// human message, the underlying engine message, an optional remediation
// suggestion, and the request id for correlation.
type RenderError struct {
	Kind            Kind   `json:"kind"`
	URL             string `json:"url,omitempty"`
	Message         string `json:"message"`
	OriginalMessage string `json:"originalMessage,omitempty"`
	Suggestion      string `json:"suggestion,omitempty"`
	RequestID       string `json:"requestId,omitempty"`
	Err             error  `json:"-"`
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RenderError) Unwrap() error {
	return e.Err
}

// NewRenderError builds a RenderError, recording the underlying error's
// message as OriginalMessage when it differs from the surface message.
func NewRenderError(kind Kind, url, message string, err error) *RenderError {
	re := &RenderError{
		Kind:    kind,
		URL:     url,
		Message: message,
		Err:     err,
	}
	if err != nil && err.Error() != message {
		re.OriginalMessage = err.Error()
	}
	return re
}

// NewBlockedError creates a NavigationBlocked error with a remediation hint.
func NewBlockedError(url, reason string) *RenderError {
	return &RenderError{
		Kind:       KindNavigationBlocked,
		URL:        url,
		Message:    "Navigation blocked: " + reason,
		Suggestion: "The target detected automation. Retry later, from a different egress address, or with a longer postLoadWaitMs.",
		Err:        ErrNavigationBlocked,
	}
}

// KindOf classifies an arbitrary error into a Kind. RenderErrors report
// their own kind; sentinels and context errors map to theirs; anything
// else is an extraction failure.
func KindOf(err error) Kind {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrURLRequired), errors.Is(err, ErrInvalidURL):
		return KindInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrBrowserUnavailable), errors.Is(err, ErrBrowserShuttingDown), errors.Is(err, ErrBrowserDisconnected):
		return KindBrowserUnavailable
	case errors.Is(err, ErrSessionCreationFailed):
		return KindSessionCreationFailed
	case errors.Is(err, ErrNavigationBlocked):
		return KindNavigationBlocked
	case errors.Is(err, ErrNetworkFailure):
		return KindNetworkError
	case errors.Is(err, ErrRenderTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindTimeout
	default:
		return KindExtractionError
	}
}
