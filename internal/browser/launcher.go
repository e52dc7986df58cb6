package browser

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/config"
	"github.com/pageforge/pageforge/internal/security"
	"github.com/pageforge/pageforge/internal/types"
)

// newLauncher builds a launcher with the anti-detection flag set.
// The flags disable automation disclosure (navigator.webdriver, the
// AutomationControlled blink feature) and keep WebGL rendering real via
// SwiftShader so the GPU fingerprint is not empty.
func newLauncher(cfg *config.Config) *launcher.Launcher {
	l := launcher.New()

	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}

	if cfg.Headless {
		l = l.Set("headless", "new")
	} else {
		// Rod enables headless by default; a headed engine under a
		// virtual display is the least detectable configuration.
		l = l.Headless(false)
	}

	// Container flags.
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	if cfg.ProxyServer != "" {
		l = l.Set("proxy-server", cfg.ProxyServer)
		log.Debug().Str("proxy", security.RedactProxyURL(cfg.ProxyServer)).Msg("Engine proxy configured")
	}

	// WebRTC must never leak the host IP, proxied or not.
	l = l.Set("force-webrtc-ip-handling-policy", "disable_non_proxied_udp")

	// The single most important anti-detection flag: without it the
	// engine reports navigator.webdriver = true.
	l = l.Set("disable-blink-features", "AutomationControlled")
	l = l.Delete("enable-automation")

	l = l.Set("disable-features", "Translate,TranslateUI,BlinkGenPropertyTrees,WebRtcHideLocalIpsWithMdns")
	l = l.Set("enable-features", "NetworkService,NetworkServiceInProcess")

	// SwiftShader keeps WebGL answering with a plausible renderer string
	// on hosts without a GPU.
	l = l.Set("use-gl", "swiftshader").
		Set("use-angle", "swiftshader").
		Set("enable-unsafe-swiftshader").
		Set("enable-webgl").
		Set("enable-webgl2")

	l = l.Set("accept-lang", "en-US,en;q=0.9")

	l = l.Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen")

	l = l.Set("window-size", fmt.Sprintf("%d,%d",
		types.DefaultViewportW, types.DefaultViewportH))

	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio").
		Set("no-zygote").
		Set("safebrowsing-disable-auto-update")

	l = l.Set("js-flags", "--max-old-space-size="+strconv.Itoa(512)).
		Set("disable-ipc-flooding-protection").
		Set("disable-renderer-backgrounding")

	l = l.Set("disable-gpu-sandbox")

	// Do NOT pass --disable-gpu on ARM: it breaks SwiftShader WebGL.
	if runtime.GOARCH == "arm" || runtime.GOARCH == "arm64" {
		l = l.Set("disable-gpu-compositing")
	}

	return l
}

// launchEngine starts a browser process and connects over CDP.
func (m *Manager) launchEngine(ctx context.Context) (*rod.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Launchers are single-use, so a fresh one per attempt.
	l := newLauncher(m.cfg).Context(ctx)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch engine: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to engine: %w", err)
	}

	log.Debug().Str("control_url", controlURL).Msg("Engine launched")
	return b, nil
}
