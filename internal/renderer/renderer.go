// Package renderer drives a render from request to outcome: session
// acquisition, navigation, stabilisation, page mutation, artifact
// extraction, and the emergency recovery path for timed-out renders.
package renderer

import (
	"context"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/pageforge/pageforge/internal/browser"
	"github.com/pageforge/pageforge/internal/config"
	"github.com/pageforge/pageforge/internal/fingerprint"
	"github.com/pageforge/pageforge/internal/humanize"
	"github.com/pageforge/pageforge/internal/metrics"
	"github.com/pageforge/pageforge/internal/security"
	"github.com/pageforge/pageforge/internal/stats"
	"github.com/pageforge/pageforge/internal/stealth"
	"github.com/pageforge/pageforge/internal/types"
)

// Per-stage ceilings. The wall-clock budget (hardTimeoutMs) caps all of
// them through the budget context.
const (
	navTimeoutCap     = 60 * time.Second
	operationTimeout  = 45 * time.Second
	postLoadFloor     = 5 * time.Second
	selectorWaitLimit = 30 * time.Second
	clickWaitLimit    = 20 * time.Second
	clickDwell        = 2 * time.Second
	// Navigation plus dwell must stay within the 45s recovery window.
	emergencyNavLimit = 40 * time.Second
	emergencyDwell    = 5 * time.Second
)

// Renderer owns the render pipeline. One instance serves all requests;
// the semaphore enforces the process-wide in-flight cap.
type Renderer struct {
	cfg   *config.Config
	mgr   *browser.Manager
	synth *fingerprint.Synthesiser
	stats *stats.Registry
	sem   *semaphore.Weighted
}

// New creates a Renderer backed by the given lifecycle manager.
func New(cfg *config.Config, mgr *browser.Manager, synth *fingerprint.Synthesiser, reg *stats.Registry) *Renderer {
	return &Renderer{
		cfg:   cfg,
		mgr:   mgr,
		synth: synth,
		stats: reg,
		sem:   semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}
}

// Render runs one request through the full pipeline. The returned error,
// when non-nil, is always a *types.RenderError.
func (r *Renderer) Render(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error) {
	req.ApplyDefaults(r.cfg.RenderTimeout, r.cfg.ExtraWaitTime)
	if err := req.Validate(); err != nil {
		return nil, classify(err, req.URL)
	}
	if err := security.ValidateTargetURL(req.URL, r.cfg.AllowPrivateAddresses); err != nil {
		return nil, types.NewRenderError(types.KindInvalidInput, req.URL, "target URL rejected: "+err.Error(), err)
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, classify(err, req.URL)
	}
	defer r.sem.Release(1)

	metrics.RendersInFlight.Inc()
	defer metrics.RendersInFlight.Dec()
	defer func() {
		metrics.UpdateBrowserMetrics(int(r.mgr.State()), r.mgr.SessionCount())
	}()

	started := time.Now()
	host := stats.HostOf(req.URL)

	budgetCtx, cancel := context.WithTimeout(ctx, req.HardTimeout())
	defer cancel()

	outcome, err := r.renderOnce(budgetCtx, req)
	if err == nil {
		finishOutcome(outcome, req.URL, started)
		r.stats.RecordRender(host, time.Since(started), true, false)
		return outcome, nil
	}

	// Emergency recovery only for true timeouts while the caller is still
	// waiting. Caller aborts fail outright.
	if shouldAttemptEmergency(req, err, budgetCtx.Err(), ctx.Err()) {
		log.Warn().
			Str("url", security.RedactURL(req.URL)).
			Err(err).
			Msg("Render timed out, attempting emergency extraction")

		if salvage, eerr := r.emergencyExtract(ctx, req); eerr == nil {
			finishOutcome(salvage, req.URL, started)
			metrics.EmergencyExtractions.Inc()
			r.stats.RecordRender(host, time.Since(started), true, true)
			return salvage, nil
		} else {
			log.Warn().Str("url", security.RedactURL(req.URL)).Err(eerr).Msg("Emergency extraction failed")
		}
	}

	rerr := classify(err, req.URL)
	r.stats.RecordRender(host, time.Since(started), false, rerr.Kind == types.KindTimeout)
	return nil, rerr
}

// shouldAttemptEmergency decides whether a failed render gets the
// salvage navigation: the caller opted into partial results and is still
// waiting, and the failure is a timeout. Both the wall-clock budget
// expiring and a stage giving up at its own ceiling count; a stage can
// time out well before the budget does, for example a navigation ceiling
// shorter than the remaining budget.
func shouldAttemptEmergency(req *types.RenderRequest, err error, budgetErr, callerErr error) bool {
	if !req.WantsPartial() || callerErr != nil {
		return false
	}
	if budgetErr == context.DeadlineExceeded {
		return true
	}
	return classify(err, req.URL).Kind == types.KindTimeout
}

// renderOnce runs the normal pipeline under the budget context.
func (r *Renderer) renderOnce(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error) {
	identity, err := r.synth.Synthesize(req.UserAgentOverride, req.Viewport)
	if err != nil {
		return nil, err
	}
	scripts, err := stealth.Scripts(identity)
	if err != nil {
		return nil, err
	}
	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, types.NewRenderError(types.KindInvalidInput, req.URL, "unparseable URL", err)
	}

	sess, err := r.mgr.AcquireSession(ctx, identity, scripts, target, req.Cookies, req.ExtraHeaders)
	if err != nil {
		return nil, err
	}
	defer r.mgr.ReleaseSession(sess)

	page := sess.Page.Context(ctx)

	var console *consoleCollector
	if req.CaptureConsole {
		console = collectConsole(page)
	}

	if err := r.navigate(ctx, page, req, target); err != nil {
		return nil, err
	}
	if err := r.stabilise(ctx, page, req); err != nil {
		return nil, err
	}
	if err := r.mutate(ctx, page, req, identity); err != nil {
		return nil, err
	}

	// A disconnect mid-render fails the session even when the last CDP
	// call happened to succeed.
	if serr := sess.Err(); serr != nil {
		return nil, serr
	}

	return r.extract(ctx, page, req, console)
}

// emergencyExtract acquires a fresh session under a fresh identity and
// grabs HTML, title and URL with a single network-idle navigation. Runs
// under the caller context so an abort still cancels it.
func (r *Renderer) emergencyExtract(ctx context.Context, req *types.RenderRequest) (*types.RenderOutcome, error) {
	identity, err := r.synth.Synthesize("", req.Viewport)
	if err != nil {
		return nil, err
	}
	scripts, err := stealth.Scripts(identity)
	if err != nil {
		return nil, err
	}
	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}

	recoveryCtx, cancel := context.WithTimeout(ctx, emergencyNavLimit+emergencyDwell)
	defer cancel()

	sess, err := r.mgr.AcquireSession(recoveryCtx, identity, scripts, target, req.Cookies, req.ExtraHeaders)
	if err != nil {
		return nil, err
	}
	defer r.mgr.ReleaseSession(sess)

	page := sess.Page.Context(recoveryCtx)
	if err := navigateAndWait(page, req.URL, types.WaitModeNetworkIdle, emergencyNavLimit); err != nil {
		return nil, err
	}
	humanize.SleepWithContext(recoveryCtx, emergencyDwell)

	html, err := page.HTML()
	if err != nil {
		return nil, err
	}
	title, finalURL := pageTitleURL(page)

	return &types.RenderOutcome{
		HTML:                  html,
		Title:                 title,
		FinalURL:              finalURL,
		WasTimeout:            true,
		IsEmergencyExtraction: true,
		ContentLength:         len(html),
	}, nil
}

// finishOutcome fills the request-level fields shared by both paths.
func finishOutcome(o *types.RenderOutcome, originalURL string, started time.Time) {
	o.OriginalURL = originalURL
	o.StartedAtIso = started.UTC().Format(time.RFC3339Nano)
	o.DurationMs = time.Since(started).Milliseconds()
}

// pageTitleURL reads title and current URL, tolerating CDP errors late in
// the pipeline: the HTML is already captured and outweighs the metadata.
func pageTitleURL(page *rod.Page) (title, finalURL string) {
	info, err := page.Info()
	if err != nil {
		log.Debug().Err(err).Msg("Could not read page info")
		return "", ""
	}
	return info.Title, info.URL
}
