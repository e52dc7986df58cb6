package renderer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/fingerprint"
	"github.com/pageforge/pageforge/internal/humanize"
	"github.com/pageforge/pageforge/internal/types"
)

// idleSettleCeiling bounds the final requestIdleCallback settle.
const idleSettleCeiling = 2 * time.Second

// networkQuietCeiling bounds the optional post-mutation network wait.
const networkQuietCeiling = 30 * time.Second

// desktopStyleJS forces a desktop layout: a min-width on the root
// elements plus a short list of mobile banner selectors hidden. Guarded
// so repeated injection is a no-op.
const desktopStyleJS = `() => {
	if (document.getElementById('__pf_desktop_style')) return;
	const s = document.createElement('style');
	s.id = '__pf_desktop_style';
	s.textContent =
		'html, body { min-width: 1920px !important; } ' +
		'.mobile-banner, .mobile-only, .mobile-nav, ' +
		'[class*="smartbanner"], [id*="smartbanner"], ' +
		'[class*="app-banner"], [id*="app-banner"] ' +
		'{ display: none !important; }';
	(document.head || document.documentElement).appendChild(s);
}`

// idleSettleJS resolves on the browser's idle callback, or after the
// ceiling when the main thread never goes idle.
const idleSettleJS = `(ms) => new Promise((resolve) => {
	if (typeof requestIdleCallback === 'function') {
		requestIdleCallback(() => resolve(true), { timeout: ms });
	} else {
		setTimeout(() => resolve(true), ms);
	}
	setTimeout(() => resolve(false), ms);
})`

// stabilise gives the settled page its dwell: post-load wait, asset
// waiters, framework settle, and a final idle-callback settle.
func (r *Renderer) stabilise(ctx context.Context, page *rod.Page, req *types.RenderRequest) error {
	dwell := req.PostLoadWait()
	if dwell < postLoadFloor {
		dwell = postLoadFloor
	}
	if !humanize.SleepWithContext(ctx, dwell) {
		return ctx.Err()
	}

	humanize.WaitForStylesheetsAndImages(ctx, page)
	humanize.WaitForFrameworks(ctx, page)

	settleCtx, cancel := context.WithTimeout(ctx, idleSettleCeiling+time.Second)
	defer cancel()
	p := page.Context(settleCtx)
	if _, err := p.Evaluate(rod.Eval(idleSettleJS, idleSettleCeiling.Milliseconds()).ByPromise()); err != nil {
		log.Debug().Err(err).Msg("Idle settle eval failed")
	}

	return ctx.Err()
}

// mutate applies the caller's page mutations in their contract order:
// selector waits, clicks, desktop layout, framework wait, mouse, scroll,
// network quiet, custom script, element removal.
func (r *Renderer) mutate(ctx context.Context, page *rod.Page, req *types.RenderRequest, identity *fingerprint.SessionIdentity) error {
	for _, sel := range req.WaitForSelectors {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		waitForSelector(page, sel)
	}

	for _, sel := range req.ClickSelectors {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		clickSelector(ctx, page, sel)
	}

	if _, err := page.Eval(desktopStyleJS); err != nil {
		log.Debug().Err(err).Msg("Desktop style injection failed")
	}

	humanize.WaitForFrameworks(ctx, page)
	humanize.SimulateMouse(ctx, page, identity.Viewport.Width, identity.Viewport.Height)

	if req.ShouldScroll() {
		humanize.EasedScrollToBottom(ctx, page)
	}

	if req.WaitMode == types.WaitModeNetworkIdle {
		waitNetworkQuiet(ctx, page, networkQuietCeiling)
	}

	if req.CustomScript != "" {
		runCustomScript(page, req.CustomScript)
	}

	for _, sel := range req.RemoveSelectors {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		removeSelector(page, sel)
	}

	return ctx.Err()
}

// waitForSelector soft-waits one selector. Absence is logged, not fatal.
func waitForSelector(page *rod.Page, sel string) {
	p := page.Timeout(selectorWaitLimit)
	defer p.CancelTimeout()

	if _, err := p.Element(sel); err != nil {
		log.Warn().Str("selector", sel).Err(err).Msg("waitForSelectors entry never appeared")
	}
}

// clickSelector clicks one selector with a dwell for whatever the click
// triggered. Failures are logged, not fatal.
func clickSelector(ctx context.Context, page *rod.Page, sel string) {
	p := page.Timeout(clickWaitLimit)
	defer p.CancelTimeout()

	el, err := p.Element(sel)
	if err != nil {
		log.Warn().Str("selector", sel).Err(err).Msg("clickSelectors entry never appeared")
		return
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		log.Warn().Str("selector", sel).Err(err).Msg("Click failed")
		return
	}
	humanize.SleepWithContext(ctx, clickDwell)
}

// removeSelector deletes matching elements from the DOM.
func removeSelector(page *rod.Page, sel string) {
	_, err := page.Eval(`(sel) => {
		document.querySelectorAll(sel).forEach((el) => el.remove());
	}`, sel)
	if err != nil {
		log.Warn().Str("selector", sel).Err(err).Msg("removeSelectors entry failed")
	}
}

// runCustomScript evaluates the caller's script once. Failure is logged,
// never fatal: the render continues with whatever the page holds.
func runCustomScript(page *rod.Page, script string) {
	wrapped := fmt.Sprintf("() => {\n%s\n}", script)
	if _, err := page.Eval(wrapped); err != nil {
		log.Warn().Err(err).Msg("customScript evaluation failed")
	}
}

// waitNetworkQuiet polls the page's resource-timing count until it stays
// flat for three consecutive polls or the ceiling expires. The hijack
// router owns the Fetch domain, so request-level idle tracking is done
// from inside the page instead.
func waitNetworkQuiet(ctx context.Context, page *rod.Page, ceiling time.Duration) {
	quietCtx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	const pollEvery = 500 * time.Millisecond
	var lastCount, flatPolls int

	for {
		if !humanize.SleepWithContext(quietCtx, pollEvery) {
			return
		}
		res, err := page.Context(quietCtx).Eval(`() => performance.getEntriesByType('resource').length`)
		if err != nil {
			log.Debug().Err(err).Msg("Network quiet probe failed")
			return
		}
		count := res.Value.Int()
		if count == lastCount {
			flatPolls++
			if flatPolls >= 3 {
				return
			}
		} else {
			lastCount = count
			flatPolls = 0
		}
	}
}
