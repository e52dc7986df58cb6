package renderer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/browser"
	"github.com/pageforge/pageforge/internal/humanize"
	"github.com/pageforge/pageforge/internal/security"
	"github.com/pageforge/pageforge/internal/types"
)

// Google regime bounds: dom-ready first with a short ceiling, then a
// block probe with a single reload.
const (
	googleCeilingMin = 15 * time.Second
	googleCeilingMax = 30 * time.Second
	googleRetryDwell = 10 * time.Second
)

// blockMarkers are the body-text strings Google serves on its
// anti-automation interstitials.
var blockMarkers = []string{
	"unusual traffic",
	"automated queries",
	"are you a robot",
	"recaptcha",
	"g-recaptcha",
	"captcha-form",
}

// navigate dispatches the goto under the regime the target host selects.
func (r *Renderer) navigate(ctx context.Context, page *rod.Page, req *types.RenderRequest, target *url.URL) error {
	if browser.IsGoogleHost(target.Hostname()) {
		return r.navigateGoogle(ctx, page, req)
	}
	return r.navigateStandard(page, req)
}

// navigateStandard tries the caller's waitMode with a 70%-of-budget
// ceiling, then falls back to dom-ready with a 50% ceiling.
func (r *Renderer) navigateStandard(page *rod.Page, req *types.RenderRequest) error {
	hard := req.HardTimeout()

	err := navigateAndWait(page, req.URL, req.WaitMode, primaryCeiling(hard))
	if err == nil {
		return nil
	}
	if isHardNavigationError(err) {
		return err
	}
	if req.WaitMode == types.WaitModeDOMReady {
		return err
	}

	log.Debug().
		Str("url", security.RedactURL(req.URL)).
		Str("wait_mode", string(req.WaitMode)).
		Err(err).
		Msg("Primary navigation wait failed, retrying with dom-ready")
	return navigateAndWait(page, req.URL, types.WaitModeDOMReady, fallbackCeiling(hard))
}

// navigateGoogle loads with dom-ready and a short ceiling, probes the
// body for anti-automation markers, and reloads once on a match.
func (r *Renderer) navigateGoogle(ctx context.Context, page *rod.Page, req *types.RenderRequest) error {
	ceiling := googleCeiling(req.HardTimeout())

	if err := navigateAndWait(page, req.URL, types.WaitModeDOMReady, ceiling); err != nil {
		return err
	}

	body, err := bodyText(page)
	if err != nil {
		log.Debug().Err(err).Msg("Google block probe could not read body")
		return nil
	}
	if !looksBlocked(body) {
		return nil
	}

	log.Info().
		Str("url", security.RedactURL(req.URL)).
		Msg("Google anti-automation page detected, waiting and reloading once")
	humanize.SleepWithContext(ctx, googleRetryDwell)

	p := page.Timeout(ceiling)
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Reload(); err != nil {
		p.CancelTimeout()
		return types.NewBlockedError(req.URL, "reload after block page failed")
	}
	wait()
	p.CancelTimeout()

	if body, err := bodyText(page); err == nil && looksBlocked(body) {
		return types.NewBlockedError(req.URL, "anti-automation interstitial persisted after reload")
	}
	return nil
}

// navigateAndWait dispatches one navigation and blocks until the chosen
// lifecycle event or the ceiling.
func navigateAndWait(page *rod.Page, rawURL string, mode types.WaitMode, ceiling time.Duration) error {
	p := page.Timeout(ceiling)
	defer p.CancelTimeout()

	wait := p.WaitNavigation(lifecycleEventFor(mode))
	if err := p.Navigate(rawURL); err != nil {
		return err
	}
	wait()

	// WaitNavigation reports nothing; an expired context is the only
	// signal that the event never arrived.
	if p.GetContext().Err() != nil {
		return fmt.Errorf("%w: waiting for %s after navigation", types.ErrRenderTimeout, mode)
	}
	return nil
}

// lifecycleEventFor maps a waitMode to its CDP lifecycle event. The
// network-idle mode uses networkAlmostIdle; the strict networkIdle event
// never fires on pages with long-polling connections.
func lifecycleEventFor(mode types.WaitMode) proto.PageLifecycleEventName {
	switch mode {
	case types.WaitModeLoad:
		return proto.PageLifecycleEventNameLoad
	case types.WaitModeDOMReady:
		return proto.PageLifecycleEventNameDOMContentLoaded
	default:
		return proto.PageLifecycleEventNameNetworkAlmostIdle
	}
}

// primaryCeiling bounds the first navigation attempt.
func primaryCeiling(hard time.Duration) time.Duration {
	c := hard * 7 / 10
	if c > navTimeoutCap {
		c = navTimeoutCap
	}
	return c
}

// fallbackCeiling bounds the dom-ready retry.
func fallbackCeiling(hard time.Duration) time.Duration {
	c := hard / 2
	if c > navTimeoutCap {
		c = navTimeoutCap
	}
	return c
}

// googleCeiling clamps half the budget into the [15s, 30s] window.
func googleCeiling(hard time.Duration) time.Duration {
	c := hard / 2
	if c < googleCeilingMin {
		c = googleCeilingMin
	}
	if c > googleCeilingMax {
		c = googleCeilingMax
	}
	return c
}

// looksBlocked reports whether body text matches a known interstitial.
func looksBlocked(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// isHardNavigationError reports errors no fallback wait can fix: DNS
// failures, refused connections, aborted loads.
func isHardNavigationError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "net::ERR_NAME_NOT_RESOLVED") ||
		strings.Contains(msg, "net::ERR_CONNECTION") ||
		strings.Contains(msg, "net::ERR_ADDRESS") ||
		strings.Contains(msg, "net::ERR_CERT") ||
		strings.Contains(msg, "net::ERR_ABORTED")
}

// bodyText reads document.body.innerText, capped so interstitial probes
// never drag a huge page across the wire.
func bodyText(page *rod.Page) (string, error) {
	res, err := page.Eval(`() => (document.body ? document.body.innerText : "").slice(0, 65536)`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}
