package renderer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageforge/pageforge/internal/types"
)

func TestPrimaryCeiling(t *testing.T) {
	assert.Equal(t, 21*time.Second, primaryCeiling(30*time.Second))
	assert.Equal(t, 7*time.Second, primaryCeiling(10*time.Second))

	// Never beyond the navigation cap.
	assert.Equal(t, navTimeoutCap, primaryCeiling(120*time.Second))
}

func TestFallbackCeiling(t *testing.T) {
	assert.Equal(t, 15*time.Second, fallbackCeiling(30*time.Second))
	assert.Equal(t, navTimeoutCap, fallbackCeiling(150*time.Second))
}

func TestGoogleCeilingClamp(t *testing.T) {
	assert.Equal(t, googleCeilingMin, googleCeiling(10*time.Second))
	assert.Equal(t, 20*time.Second, googleCeiling(40*time.Second))
	assert.Equal(t, googleCeilingMax, googleCeiling(120*time.Second))
}

func TestLifecycleEventFor(t *testing.T) {
	assert.Equal(t, proto.PageLifecycleEventNameLoad, lifecycleEventFor(types.WaitModeLoad))
	assert.Equal(t, proto.PageLifecycleEventNameDOMContentLoaded, lifecycleEventFor(types.WaitModeDOMReady))
	assert.Equal(t, proto.PageLifecycleEventNameNetworkAlmostIdle, lifecycleEventFor(types.WaitModeNetworkIdle))
}

func TestLooksBlocked(t *testing.T) {
	assert.True(t, looksBlocked("Our systems have detected unusual traffic from your computer network."))
	assert.True(t, looksBlocked("This page checks if you sent AUTOMATED QUERIES"))
	assert.True(t, looksBlocked("please confirm you Are You A Robot"))
	assert.True(t, looksBlocked(`<div class="g-recaptcha"></div>`))

	assert.False(t, looksBlocked("Search results for robots in fiction"))
	assert.False(t, looksBlocked(""))
}

func TestIsHardNavigationError(t *testing.T) {
	assert.True(t, isHardNavigationError(errors.New("navigation failed: net::ERR_NAME_NOT_RESOLVED")))
	assert.True(t, isHardNavigationError(errors.New("net::ERR_CONNECTION_REFUSED")))
	assert.False(t, isHardNavigationError(errors.New("context deadline exceeded")))
	assert.False(t, isHardNavigationError(nil))
}

func TestClassifyPassesRenderErrorThrough(t *testing.T) {
	orig := types.NewBlockedError("https://example.com", "interstitial")
	got := classify(orig, "https://example.com")
	assert.Same(t, orig, got)

	// A RenderError without a URL inherits the request URL.
	bare := types.NewRenderError(types.KindExtractionError, "", "boom", nil)
	got = classify(bare, "https://example.com/x")
	assert.Equal(t, "https://example.com/x", got.URL)
}

func TestClassifyTimeouts(t *testing.T) {
	got := classify(context.DeadlineExceeded, "https://example.com")
	assert.Equal(t, types.KindTimeout, got.Kind)

	got = classify(context.Canceled, "https://example.com")
	assert.Equal(t, types.KindTimeout, got.Kind)

	got = classify(types.ErrRenderTimeout, "https://example.com")
	assert.Equal(t, types.KindTimeout, got.Kind)
}

func TestClassifyEngineMessages(t *testing.T) {
	tests := []struct {
		msg  string
		kind types.Kind
	}{
		{"navigate: net::ERR_NAME_NOT_RESOLVED at https://x", types.KindNetworkError},
		{"net::ERR_CONNECTION_RESET", types.KindNetworkError},
		{"net::ERR_CERT_AUTHORITY_INVALID", types.KindNetworkError},
		{"net::ERR_BLOCKED_BY_RESPONSE.NotSameOrigin", types.KindNavigationBlocked},
		{"net::ERR_TIMED_OUT", types.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got := classify(errors.New(tt.msg), "https://example.com")
			assert.Equal(t, tt.kind, got.Kind)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestClassifySentinels(t *testing.T) {
	assert.Equal(t, types.KindBrowserUnavailable, classify(types.ErrBrowserUnavailable, "u").Kind)
	assert.Equal(t, types.KindSessionCreationFailed, classify(types.ErrSessionCreationFailed, "u").Kind)
	assert.Equal(t, types.KindExtractionError, classify(errors.New("something odd"), "u").Kind)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, "error", levelFor(proto.RuntimeConsoleAPICalledTypeError))
	assert.Equal(t, "error", levelFor(proto.RuntimeConsoleAPICalledTypeAssert))
	assert.Equal(t, "warning", levelFor(proto.RuntimeConsoleAPICalledTypeWarning))
	assert.Equal(t, "debug", levelFor(proto.RuntimeConsoleAPICalledTypeDebug))
	assert.Equal(t, "info", levelFor(proto.RuntimeConsoleAPICalledTypeInfo))
	assert.Equal(t, "log", levelFor(proto.RuntimeConsoleAPICalledTypeLog))
	assert.Equal(t, "log", levelFor(proto.RuntimeConsoleAPICalledTypeTable))
}

func TestConsoleCollectorCapAndSnapshot(t *testing.T) {
	c := &consoleCollector{}
	for i := 0; i < maxConsoleEntries+10; i++ {
		c.append("log", "x")
	}

	entries := c.Entries()
	require.Len(t, entries, maxConsoleEntries+1)
	last := entries[len(entries)-1]
	assert.Equal(t, "warning", last.Level)
	assert.Equal(t, "console log truncated", last.Text)
}

func TestFinishOutcome(t *testing.T) {
	o := &types.RenderOutcome{HTML: "<html></html>"}
	started := time.Now().Add(-1500 * time.Millisecond)

	finishOutcome(o, "https://example.com", started)

	assert.Equal(t, "https://example.com", o.OriginalURL)
	assert.GreaterOrEqual(t, o.DurationMs, int64(1500))

	parsed, err := time.Parse(time.RFC3339Nano, o.StartedAtIso)
	require.NoError(t, err)
	assert.WithinDuration(t, started.UTC(), parsed, time.Millisecond)
}

func TestShouldAttemptEmergency(t *testing.T) {
	partial := func(v bool) *types.RenderRequest {
		return &types.RenderRequest{URL: "https://example.com", ReturnPartialOnTimeout: &v}
	}

	// Budget expiry qualifies regardless of the stage error.
	assert.True(t, shouldAttemptEmergency(partial(true), errors.New("navigate failed"), context.DeadlineExceeded, nil))

	// A stage giving up at its own ceiling qualifies even with budget left.
	assert.True(t, shouldAttemptEmergency(partial(true), types.ErrRenderTimeout, nil, nil))
	assert.True(t, shouldAttemptEmergency(partial(true), errors.New("net::ERR_TIMED_OUT"), nil, nil))

	// Non-timeout failures, opted-out callers and caller aborts do not.
	assert.False(t, shouldAttemptEmergency(partial(true), errors.New("net::ERR_NAME_NOT_RESOLVED"), nil, nil))
	assert.False(t, shouldAttemptEmergency(partial(false), types.ErrRenderTimeout, context.DeadlineExceeded, nil))
	assert.False(t, shouldAttemptEmergency(partial(true), types.ErrRenderTimeout, context.Canceled, context.Canceled))
}

func TestEmergencyWindowWithinRecoveryBound(t *testing.T) {
	assert.LessOrEqual(t, emergencyNavLimit+emergencyDwell, operationTimeout)
}

func TestIdleSettleEvalAwaitsPromise(t *testing.T) {
	e := rod.Eval(idleSettleJS, idleSettleCeiling.Milliseconds()).ByPromise()
	require.NotNil(t, e)
	assert.True(t, e.AwaitPromise)
	assert.False(t, e.ByValue)
	assert.Len(t, e.JSArgs, 1)
}
