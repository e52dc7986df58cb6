package humanize

import (
	"context"
	"math"
	"math/rand"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// MouseConfig contains configuration for the pointer simulation pass.
type MouseConfig struct {
	// Trajectory count range per pass.
	MinTrajectories int
	MaxTrajectories int
	// Points per trajectory.
	MinSteps int
	MaxSteps int
	// Per-point jitter applied on top of the Bezier path.
	JitterPx float64
	// Pause between trajectories.
	BetweenMinMs int
	BetweenMaxMs int
	// Probability of emitting a Tab key event pair.
	TabProbability float64
}

// DefaultMouseConfig returns the standard pointer simulation timings.
func DefaultMouseConfig() MouseConfig {
	return MouseConfig{
		MinTrajectories: 3,
		MaxTrajectories: 7,
		MinSteps:        15,
		MaxSteps:        30,
		JitterPx:        2.0,
		BetweenMinMs:    100,
		BetweenMaxMs:    300,
		TabProbability:  0.2,
	}
}

// SimulateMouse dispatches several eased mousemove trajectories between
// random viewport points, optionally a Tab key pair, and a blur/focus
// window event pair. Best-effort: errors are logged, never returned.
func SimulateMouse(ctx context.Context, page *rod.Page, viewportW, viewportH int) {
	SimulateMouseWithConfig(ctx, page, viewportW, viewportH, DefaultMouseConfig())
}

// SimulateMouseWithConfig is SimulateMouse with custom timings.
func SimulateMouseWithConfig(ctx context.Context, page *rod.Page, viewportW, viewportH int, cfg MouseConfig) {
	p := page.Context(ctx)

	trajectories := cfg.MinTrajectories + rand.Intn(cfg.MaxTrajectories-cfg.MinTrajectories+1)
	pos := p.Mouse.Position()
	current := Point{X: pos.X, Y: pos.Y}

	for i := 0; i < trajectories; i++ {
		if ctx.Err() != nil {
			return
		}

		// Keep targets away from the viewport edge.
		target := Point{
			X: 20 + rand.Float64()*float64(viewportW-40),
			Y: 20 + rand.Float64()*float64(viewportH-40),
		}

		steps := cfg.MinSteps + rand.Intn(cfg.MaxSteps-cfg.MinSteps+1)
		path := generateBezierPath(current, target, steps)

		for _, pt := range path {
			if ctx.Err() != nil {
				return
			}
			jx := (rand.Float64()*2 - 1) * cfg.JitterPx
			jy := (rand.Float64()*2 - 1) * cfg.JitterPx
			if err := p.Mouse.MoveTo(proto.NewPoint(pt.X+jx, pt.Y+jy)); err != nil {
				log.Debug().Err(err).Msg("Mouse move failed, abandoning pass")
				return
			}
			if !SleepWithContext(ctx, RandomDuration(3, 12)) {
				return
			}
		}
		current = target

		if !SleepWithContext(ctx, RandomDuration(cfg.BetweenMinMs, cfg.BetweenMaxMs)) {
			return
		}
	}

	if rand.Float64() < cfg.TabProbability {
		if err := p.Keyboard.Type(input.Tab); err != nil {
			log.Debug().Err(err).Msg("Tab key event failed")
		}
	}

	// Blur/focus pair: sites watch visibility churn to spot headless runs
	// that never lose focus.
	if _, err := p.Eval(`() => {
		window.dispatchEvent(new Event('blur'));
		window.dispatchEvent(new Event('focus'));
	}`); err != nil {
		log.Debug().Err(err).Msg("Blur/focus dispatch failed")
	}
}

// generateBezierPath generates a cubic Bezier path between two points with
// eased spacing and randomised perpendicular control points.
func generateBezierPath(start, end Point, numPoints int) []Point {
	if numPoints < 2 {
		numPoints = 2
	}

	dx := end.X - start.X
	dy := end.Y - start.Y
	distance := math.Sqrt(dx*dx + dy*dy)

	ctrl1Offset := distance * (0.2 + rand.Float64()*0.3)
	ctrl2Offset := distance * (0.2 + rand.Float64()*0.3)

	perpDir1 := 1.0
	if rand.Float64() < 0.5 {
		perpDir1 = -1.0
	}
	perpDir2 := 1.0
	if rand.Float64() < 0.5 {
		perpDir2 = -1.0
	}

	perpX, perpY := 0.0, 0.0
	if distance > 0 {
		perpX = -dy / distance
		perpY = dx / distance
	}

	ctrl1 := Point{
		X: start.X + dx*0.33 + perpX*ctrl1Offset*perpDir1,
		Y: start.Y + dy*0.33 + perpY*ctrl1Offset*perpDir1,
	}
	ctrl2 := Point{
		X: start.X + dx*0.67 + perpX*ctrl2Offset*perpDir2,
		Y: start.Y + dy*0.67 + perpY*ctrl2Offset*perpDir2,
	}

	points := make([]Point, numPoints)
	for i := 0; i < numPoints; i++ {
		t := easeInOutCubic(float64(i) / float64(numPoints-1))

		mt := 1 - t
		mt2 := mt * mt
		mt3 := mt2 * mt
		t2 := t * t
		t3 := t2 * t

		points[i] = Point{
			X: mt3*start.X + 3*mt2*t*ctrl1.X + 3*mt*t2*ctrl2.X + t3*end.X,
			Y: mt3*start.Y + 3*mt2*t*ctrl1.Y + 3*mt*t2*ctrl2.Y + t3*end.Y,
		}
	}

	return points
}
