package humanize

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
)

// ScrollConfig contains configuration for the eased scroll pass.
type ScrollConfig struct {
	// StepBasePx is the base scroll increment; each step varies by
	// +-StepJitterPx.
	StepBasePx   int
	StepJitterPx int
	// Per-step animation duration range.
	StepMinMs int
	StepMaxMs int
	// Idle pause between steps.
	PauseMinMs int
	PauseMaxMs int
	// MaxSteps bounds the descent on effectively infinite feeds.
	MaxSteps int
	// BottomMarginPx: the descent stops once scrollTop + viewport >=
	// scrollHeight - BottomMarginPx.
	BottomMarginPx int
	// Dwells around the return-to-top animation.
	BottomDwellMinMs int
	BottomDwellMaxMs int
	ReturnMs         int
	SettleMinMs      int
	SettleMaxMs      int
}

// DefaultScrollConfig returns the standard descent timings.
func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{
		StepBasePx:       100,
		StepJitterPx:     25,
		StepMinMs:        150,
		StepMaxMs:        250,
		PauseMinMs:       200,
		PauseMaxMs:       500,
		MaxSteps:         50,
		BottomMarginPx:   100,
		BottomDwellMinMs: 500,
		BottomDwellMaxMs: 1500,
		ReturnMs:         800,
		SettleMinMs:      1500,
		SettleMaxMs:      2500,
	}
}

// EasedScrollToBottom scrolls from top to bottom in variable eased steps,
// dwells, then returns to the top in a single eased animation and settles
// so lazy-loaded content can arrive. Best-effort: errors are logged, never
// returned.
func EasedScrollToBottom(ctx context.Context, page *rod.Page) {
	EasedScrollToBottomWithConfig(ctx, page, DefaultScrollConfig())
}

// EasedScrollToBottomWithConfig is EasedScrollToBottom with custom timings.
func EasedScrollToBottomWithConfig(ctx context.Context, page *rod.Page, cfg ScrollConfig) {
	p := page.Context(ctx)

	scrollY, err := evalFloat(p, `() => window.scrollY || document.documentElement.scrollTop || 0`)
	if err != nil {
		log.Warn().Err(err).Msg("Scroll pass skipped: cannot read scroll position")
		return
	}

	for step := 0; step < cfg.MaxSteps; step++ {
		if ctx.Err() != nil {
			return
		}

		metrics, err := evalScrollMetrics(p)
		if err != nil {
			log.Warn().Err(err).Msg("Scroll pass aborted: cannot read page metrics")
			return
		}
		if scrollY+metrics.viewport >= metrics.height-float64(cfg.BottomMarginPx) {
			break
		}

		delta := float64(cfg.StepBasePx + rand.Intn(2*cfg.StepJitterPx+1) - cfg.StepJitterPx)
		target := scrollY + delta
		if target > metrics.height-metrics.viewport {
			target = metrics.height - metrics.viewport
		}

		stepDur := RandomDuration(cfg.StepMinMs, cfg.StepMaxMs)
		if !animateScroll(ctx, p, scrollY, target, stepDur, easeOutCubic) {
			return
		}
		scrollY = target

		if !SleepWithContext(ctx, RandomDuration(cfg.PauseMinMs, cfg.PauseMaxMs)) {
			return
		}
	}

	if !SleepWithContext(ctx, RandomDuration(cfg.BottomDwellMinMs, cfg.BottomDwellMaxMs)) {
		return
	}

	// Single eased return to the top.
	if !animateScroll(ctx, p, scrollY, 0, time.Duration(cfg.ReturnMs)*time.Millisecond, easeInOutCubic) {
		return
	}

	// Final settle for lazy content triggered by the pass.
	SleepWithContext(ctx, RandomDuration(cfg.SettleMinMs, cfg.SettleMaxMs))
}

type scrollMetrics struct {
	height   float64
	viewport float64
}

func evalScrollMetrics(page *rod.Page) (scrollMetrics, error) {
	height, err := evalFloat(page, `() => Math.max(
		document.body ? document.body.scrollHeight : 0,
		document.documentElement ? document.documentElement.scrollHeight : 0)`)
	if err != nil {
		return scrollMetrics{}, err
	}
	viewport, err := evalFloat(page, `() => window.innerHeight || 0`)
	if err != nil {
		return scrollMetrics{}, err
	}
	return scrollMetrics{height: height, viewport: viewport}, nil
}

// animateScroll interpolates from one scroll offset to another over the
// given duration at roughly 60 fps. Returns false when the context fires.
func animateScroll(ctx context.Context, page *rod.Page, fromY, toY float64, dur time.Duration, ease func(float64) float64) bool {
	frames := int(dur / (16 * time.Millisecond))
	if frames < 2 {
		frames = 2
	}
	frameDelay := dur / time.Duration(frames)

	for i := 1; i <= frames; i++ {
		if ctx.Err() != nil {
			return false
		}
		t := ease(float64(i) / float64(frames))
		y := fromY + (toY-fromY)*t
		if _, err := page.Eval(`(y) => window.scrollTo(0, y)`, y); err != nil {
			log.Debug().Err(err).Msg("Scroll frame failed")
		}
		if !SleepWithContext(ctx, frameDelay) {
			return false
		}
	}
	return true
}

func evalFloat(page *rod.Page, js string) (float64, error) {
	res, err := page.Eval(js)
	if err != nil {
		return 0, err
	}
	return res.Value.Num(), nil
}
