package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindInvalidInput, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindBrowserUnavailable, http.StatusServiceUnavailable},
		{KindSessionCreationFailed, http.StatusServiceUnavailable},
		{KindNavigationBlocked, http.StatusBadGateway},
		{KindNetworkError, http.StatusBadGateway},
		{KindTimeout, http.StatusGatewayTimeout},
		{KindExtractionError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.HTTPStatus(), string(tt.kind))
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"sentinel network", ErrNetworkFailure, KindNetworkError},
		{"wrapped sentinel", fmt.Errorf("navigate: %w", ErrNetworkFailure), KindNetworkError},
		{"timeout sentinel", ErrRenderTimeout, KindTimeout},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindTimeout},
		{"browser down", ErrBrowserUnavailable, KindBrowserUnavailable},
		{"shutting down", ErrBrowserShuttingDown, KindBrowserUnavailable},
		{"session", ErrSessionCreationFailed, KindSessionCreationFailed},
		{"blocked", ErrNavigationBlocked, KindNavigationBlocked},
		{"unknown", errors.New("boom"), KindExtractionError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRenderErrorUnwrap(t *testing.T) {
	re := NewRenderError(KindTimeout, "https://example.com", "render timed out", ErrRenderTimeout)
	assert.ErrorIs(t, re, ErrRenderTimeout)
	assert.Equal(t, KindTimeout, KindOf(re))
	assert.Equal(t, "render timed out", re.Error())
	assert.Equal(t, ErrRenderTimeout.Error(), re.OriginalMessage)
}

func TestRenderErrorKindWinsOverWrapped(t *testing.T) {
	// A RenderError's own kind takes precedence over the wrapped sentinel.
	re := NewRenderError(KindNavigationBlocked, "", "blocked", context.DeadlineExceeded)
	assert.Equal(t, KindNavigationBlocked, KindOf(re))
}

func TestNewBlockedErrorCarriesSuggestion(t *testing.T) {
	re := NewBlockedError("https://google.com", "unusual traffic page")
	assert.NotEmpty(t, re.Suggestion)
	assert.ErrorIs(t, re, ErrNavigationBlocked)
}
