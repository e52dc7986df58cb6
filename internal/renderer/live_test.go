package renderer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageforge/pageforge/internal/browser"
	"github.com/pageforge/pageforge/internal/config"
	"github.com/pageforge/pageforge/internal/fingerprint"
	"github.com/pageforge/pageforge/internal/stats"
	"github.com/pageforge/pageforge/internal/types"
)

// liveRenderer needs a local Chromium; gate on PAGEFORGE_LIVE_TEST so the
// suite stays hermetic by default.
func liveRenderer(t *testing.T) *Renderer {
	t.Helper()
	if os.Getenv("PAGEFORGE_LIVE_TEST") == "" {
		t.Skip("set PAGEFORGE_LIVE_TEST=1 to run browser-bound tests")
	}

	cfg := &config.Config{
		Headless:       true,
		RenderTimeout:  30 * time.Second,
		ExtraWaitTime:  2 * time.Second,
		MaxConcurrency: 2,
	}

	fp, err := fingerprint.NewManager("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = fp.Close() })

	mgr := browser.NewManager(cfg)
	t.Cleanup(func() { _ = mgr.Shutdown() })

	reg := stats.NewRegistry()
	t.Cleanup(reg.Close)

	return New(cfg, mgr, fingerprint.NewSynthesiser(fp.Pools), reg)
}

func TestLiveRenderBasic(t *testing.T) {
	r := liveRenderer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	outcome, err := r.Render(ctx, &types.RenderRequest{URL: "https://example.com"})
	require.NoError(t, err)

	assert.Contains(t, outcome.HTML, "Example Domain")
	assert.Equal(t, "https://example.com", outcome.OriginalURL)
	assert.NotEmpty(t, outcome.FinalURL)
	assert.False(t, outcome.WasTimeout)
	assert.Greater(t, outcome.ContentLength, 0)
}

func TestLiveRenderScreenshot(t *testing.T) {
	r := liveRenderer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	outcome, err := r.Render(ctx, &types.RenderRequest{
		URL:            "https://example.com",
		WantScreenshot: &types.ScreenshotOptions{FullPage: true},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, outcome.ScreenshotBytes)
}
