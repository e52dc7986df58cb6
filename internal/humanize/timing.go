// Package humanize provides human-like interaction patterns for browser
// automation: eased scrolling, Bezier mouse trajectories, and framework
// readiness waits. Every operation is best-effort; failures are logged and
// swallowed so they never abort a render.
package humanize

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Point represents a 2D coordinate.
type Point struct {
	X, Y float64
}

// RandomDuration returns a random duration between min and max milliseconds.
func RandomDuration(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	ms := minMs + rand.Intn(maxMs-minMs+1)
	return time.Duration(ms) * time.Millisecond
}

// SleepWithContext sleeps for the specified duration or until the context
// is canceled. Returns true if the sleep completed normally.
// Uses time.NewTimer instead of time.After to prevent timer leak.
func SleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// easeInOutCubic starts slow, speeds up, then slows down.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// easeOutCubic provides deceleration easing for natural scroll endings.
func easeOutCubic(t float64) float64 {
	return 1 - math.Pow(1-t, 3)
}
