package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"

	"github.com/pageforge/pageforge/internal/security"
)

// Request size limits to prevent resource exhaustion.
const (
	MaxURLLength       = 8192
	MaxCookies         = 100
	MaxExtraHeaders    = 50
	MaxSelectors       = 50
	MaxSelectorLength  = 1024
	MaxCustomScript    = 64 * 1024
	MaxHardTimeoutMs   = 120000
	MinViewportWidth   = 320
	MaxViewportWidth   = 3840
	MinViewportHeight  = 240
	MaxViewportHeight  = 2160
	DefaultViewportW   = 1920
	DefaultViewportH   = 1080
	MaxBatchParallel   = 5
	DefaultMaxParallel = 3
)

// WaitMode selects the navigation readiness event.
type WaitMode string

const (
	WaitModeLoad        WaitMode = "load"
	WaitModeDOMReady    WaitMode = "dom-ready"
	WaitModeNetworkIdle WaitMode = "network-idle"
)

// Viewport is the page viewport in CSS pixels.
type Viewport struct {
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Cookie is the wire cookie record.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	SameSite string  `json:"sameSite,omitempty"` // Lax, Strict, None
	Expires  float64 `json:"expires,omitempty"`  // epoch seconds
}

// ScreenshotOptions configures screenshot capture. A nil pointer on the
// request means no screenshot.
type ScreenshotOptions struct {
	FullPage bool   `json:"fullPage,omitempty"`
	Format   string `json:"format,omitempty"` // png (default) or jpeg
	Quality  int    `json:"quality,omitempty"`
}

// PdfMargins are in inches.
type PdfMargins struct {
	Top    float64 `json:"top,omitempty"`
	Bottom float64 `json:"bottom,omitempty"`
	Left   float64 `json:"left,omitempty"`
	Right  float64 `json:"right,omitempty"`
}

// PdfOptions configures PDF emission. A nil pointer means no PDF.
type PdfOptions struct {
	PaperSize  string      `json:"paperSize,omitempty"` // A4 (default), Letter, Legal
	Margins    *PdfMargins `json:"margins,omitempty"`
	Background bool        `json:"background,omitempty"`
}

// RenderRequest is the caller-facing input record for a single render.
type RenderRequest struct {
	URL                  string            `json:"url"`
	WaitMode             WaitMode          `json:"waitMode,omitempty"`
	HardTimeoutMs        int               `json:"hardTimeoutMs,omitempty"`
	PostLoadWaitMs       int               `json:"postLoadWaitMs,omitempty"`
	UserAgentOverride    string            `json:"userAgentOverride,omitempty"`
	Cookies              []Cookie          `json:"cookies,omitempty"`
	ExtraHeaders         map[string]string `json:"extraHeaders,omitempty"`
	Viewport             *Viewport         `json:"viewport,omitempty"`
	ScrollToBottom       *bool             `json:"scrollToBottom,omitempty"`
	WaitForSelectors     []string          `json:"waitForSelectors,omitempty"`
	ClickSelectors       []string          `json:"clickSelectors,omitempty"`
	RemoveSelectors      []string          `json:"removeSelectors,omitempty"`
	CustomScript         string            `json:"customScript,omitempty"`
	CaptureConsole       bool              `json:"captureConsole,omitempty"`
	ReturnPartialOnTimeout *bool           `json:"returnPartialOnTimeout,omitempty"`
	WantScreenshot       *ScreenshotOptions `json:"wantScreenshot,omitempty"`
	WantPdf              *PdfOptions        `json:"wantPdf,omitempty"`
}

// ApplyDefaults fills unset fields. The timeout and post-load defaults come
// from configuration (BROWSER_TIMEOUT / EXTRA_WAIT_TIME).
func (r *RenderRequest) ApplyDefaults(defaultTimeout, defaultPostLoadWait time.Duration) {
	if r.WaitMode == "" {
		r.WaitMode = WaitModeNetworkIdle
	}
	if r.HardTimeoutMs <= 0 {
		r.HardTimeoutMs = int(defaultTimeout.Milliseconds())
	}
	if r.HardTimeoutMs > MaxHardTimeoutMs {
		r.HardTimeoutMs = MaxHardTimeoutMs
	}
	if r.PostLoadWaitMs <= 0 {
		r.PostLoadWaitMs = int(defaultPostLoadWait.Milliseconds())
	}
	if r.Viewport == nil {
		r.Viewport = &Viewport{Width: DefaultViewportW, Height: DefaultViewportH}
	}
	if r.ScrollToBottom == nil {
		t := true
		r.ScrollToBottom = &t
	}
	if r.ReturnPartialOnTimeout == nil {
		t := true
		r.ReturnPartialOnTimeout = &t
	}
	if r.WantScreenshot != nil {
		if r.WantScreenshot.Format == "" {
			r.WantScreenshot.Format = "png"
		}
		if r.WantScreenshot.Quality <= 0 || r.WantScreenshot.Quality > 100 {
			r.WantScreenshot.Quality = 90
		}
	}
	if r.WantPdf != nil && r.WantPdf.PaperSize == "" {
		r.WantPdf.PaperSize = "A4"
	}
}

// Validate checks the request against size limits and field constraints.
// Call after ApplyDefaults.
func (r *RenderRequest) Validate() error {
	if r.URL == "" {
		return ErrURLRequired
	}
	if len(r.URL) > MaxURLLength {
		return fmt.Errorf("%w: url exceeds %d bytes", ErrInvalidRequest, MaxURLLength)
	}
	u, err := url.Parse(r.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: must be an absolute http(s) URL", ErrInvalidURL)
	}

	switch r.WaitMode {
	case WaitModeLoad, WaitModeDOMReady, WaitModeNetworkIdle:
	default:
		return fmt.Errorf("%w: waitMode must be one of load, dom-ready, network-idle", ErrInvalidRequest)
	}

	if len(r.Cookies) > MaxCookies {
		return fmt.Errorf("%w: too many cookies (max %d)", ErrInvalidRequest, MaxCookies)
	}
	for i, c := range r.Cookies {
		if c.Name == "" {
			return fmt.Errorf("%w: cookie %d has empty name", ErrInvalidRequest, i)
		}
		switch c.SameSite {
		case "", "Lax", "Strict", "None":
		default:
			return fmt.Errorf("%w: cookie %q sameSite must be Lax, Strict or None", ErrInvalidRequest, c.Name)
		}
	}

	if err := security.ValidateExtraHeaders(r.ExtraHeaders); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if r.Viewport != nil {
		if r.Viewport.Width < MinViewportWidth || r.Viewport.Width > MaxViewportWidth ||
			r.Viewport.Height < MinViewportHeight || r.Viewport.Height > MaxViewportHeight {
			return fmt.Errorf("%w: viewport out of range [%dx%d, %dx%d]", ErrInvalidRequest,
				MinViewportWidth, MinViewportHeight, MaxViewportWidth, MaxViewportHeight)
		}
	}

	for _, list := range [][]string{r.WaitForSelectors, r.ClickSelectors, r.RemoveSelectors} {
		if err := validateSelectorList(list); err != nil {
			return err
		}
	}

	if len(r.CustomScript) > MaxCustomScript {
		return fmt.Errorf("%w: customScript exceeds %d bytes", ErrInvalidRequest, MaxCustomScript)
	}

	if r.WantScreenshot != nil {
		switch r.WantScreenshot.Format {
		case "png", "jpeg":
		default:
			return fmt.Errorf("%w: screenshot format must be png or jpeg", ErrInvalidRequest)
		}
	}
	if r.WantPdf != nil {
		switch strings.ToUpper(r.WantPdf.PaperSize) {
		case "A4", "LETTER", "LEGAL":
		default:
			return fmt.Errorf("%w: paperSize must be A4, Letter or Legal", ErrInvalidRequest)
		}
	}

	return nil
}

// validateSelectorList rejects oversized lists and selectors that do not
// compile as CSS, so malformed input fails fast instead of mid-render.
func validateSelectorList(selectors []string) error {
	if len(selectors) > MaxSelectors {
		return fmt.Errorf("%w: too many selectors (max %d)", ErrInvalidRequest, MaxSelectors)
	}
	for _, s := range selectors {
		if len(s) > MaxSelectorLength {
			return fmt.Errorf("%w: selector exceeds %d bytes", ErrInvalidRequest, MaxSelectorLength)
		}
		if _, err := cascadia.ParseGroup(s); err != nil {
			return fmt.Errorf("%w: selector %q does not parse: %v", ErrInvalidRequest, s, err)
		}
	}
	return nil
}

// HardTimeout returns the request's wall-clock budget as a Duration.
func (r *RenderRequest) HardTimeout() time.Duration {
	return time.Duration(r.HardTimeoutMs) * time.Millisecond
}

// PostLoadWait returns the post-load dwell as a Duration.
func (r *RenderRequest) PostLoadWait() time.Duration {
	return time.Duration(r.PostLoadWaitMs) * time.Millisecond
}

// WantsPartial reports whether a timed-out render should attempt emergency
// extraction instead of failing.
func (r *RenderRequest) WantsPartial() bool {
	return r.ReturnPartialOnTimeout == nil || *r.ReturnPartialOnTimeout
}

// ShouldScroll reports whether the eased scroll pass is enabled.
func (r *RenderRequest) ShouldScroll() bool {
	return r.ScrollToBottom == nil || *r.ScrollToBottom
}

// BatchRequest fans one options template out over many URLs.
type BatchRequest struct {
	URLs           []string       `json:"urls"`
	MaxParallel    int            `json:"maxParallel,omitempty"`
	PerItemOptions *RenderRequest `json:"perItemOptions,omitempty"`
}

// Normalize clamps maxParallel into [1, MaxBatchParallel].
func (b *BatchRequest) Normalize() {
	if b.MaxParallel <= 0 {
		b.MaxParallel = DefaultMaxParallel
	}
	if b.MaxParallel > MaxBatchParallel {
		b.MaxParallel = MaxBatchParallel
	}
}

// Validate checks the batch envelope. Per-item URL validation happens when
// each item's RenderRequest is built.
func (b *BatchRequest) Validate(maxBatchURLs int) error {
	if len(b.URLs) == 0 {
		return fmt.Errorf("%w: urls is required", ErrInvalidRequest)
	}
	if len(b.URLs) > maxBatchURLs {
		return fmt.Errorf("%w: too many urls (max %d)", ErrInvalidRequest, maxBatchURLs)
	}
	return nil
}
