package renderer

import (
	"context"
	"errors"
	"strings"

	"github.com/pageforge/pageforge/internal/types"
)

// classify folds an arbitrary pipeline error into the caller-facing
// RenderError surface. RenderErrors pass through untouched; engine
// network error codes are recognised by message; everything else falls
// back to the sentinel mapping in types.KindOf.
func classify(err error, url string) *types.RenderError {
	var re *types.RenderError
	if errors.As(err, &re) {
		if re.URL == "" {
			re.URL = url
		}
		return re
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, types.ErrRenderTimeout) {
		return types.NewRenderError(types.KindTimeout, url,
			"render exceeded its time budget", err)
	}
	if errors.Is(err, context.Canceled) {
		return types.NewRenderError(types.KindTimeout, url,
			"render canceled by caller", err)
	}

	if kind, msg, ok := classifyEngineMessage(err.Error()); ok {
		return types.NewRenderError(kind, url, msg, err)
	}

	switch kind := types.KindOf(err); kind {
	case types.KindExtractionError:
		return types.NewRenderError(kind, url, "render failed during extraction", err)
	default:
		return types.NewRenderError(kind, url, err.Error(), err)
	}
}

// engineErrorTable maps Chromium net error substrings to error kinds.
var engineErrorTable = []struct {
	marker string
	kind   types.Kind
	msg    string
}{
	{"net::ERR_NAME_NOT_RESOLVED", types.KindNetworkError, "target hostname could not be resolved"},
	{"net::ERR_CONNECTION_REFUSED", types.KindNetworkError, "target refused the connection"},
	{"net::ERR_CONNECTION_RESET", types.KindNetworkError, "connection reset while loading the target"},
	{"net::ERR_CONNECTION_TIMED_OUT", types.KindNetworkError, "connection to the target timed out"},
	{"net::ERR_CONNECTION_CLOSED", types.KindNetworkError, "target closed the connection mid-load"},
	{"net::ERR_ADDRESS_UNREACHABLE", types.KindNetworkError, "target address is unreachable"},
	{"net::ERR_INTERNET_DISCONNECTED", types.KindNetworkError, "no network connectivity"},
	{"net::ERR_SSL", types.KindNetworkError, "TLS negotiation with the target failed"},
	{"net::ERR_CERT", types.KindNetworkError, "target presented an invalid certificate"},
	{"net::ERR_EMPTY_RESPONSE", types.KindNetworkError, "target sent an empty response"},
	{"net::ERR_TOO_MANY_REDIRECTS", types.KindNetworkError, "target redirected too many times"},
	{"net::ERR_BLOCKED_BY_CLIENT", types.KindNavigationBlocked, "load was blocked"},
	{"net::ERR_BLOCKED_BY_RESPONSE", types.KindNavigationBlocked, "target blocked the response"},
	{"net::ERR_ABORTED", types.KindNetworkError, "navigation was aborted by the page"},
	{"net::ERR_TIMED_OUT", types.KindTimeout, "engine-level load timeout"},
}

// classifyEngineMessage recognises Chromium net:: error codes inside an
// error message.
func classifyEngineMessage(msg string) (types.Kind, string, bool) {
	for _, entry := range engineErrorTable {
		if strings.Contains(msg, entry.marker) {
			return entry.kind, entry.msg, true
		}
	}
	return "", "", false
}
