package fingerprint

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pageforge/pageforge/internal/types"
)

// Family identifies the browser family derived from a user agent.
type Family string

const (
	FamilyChrome  Family = "chrome"
	FamilyEdge    Family = "edge"
	FamilyFirefox Family = "firefox"
)

// Screen describes the claimed physical screen.
type Screen struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	AvailWidth  int `json:"availWidth"`
	AvailHeight int `json:"availHeight"`
	ColorDepth  int `json:"colorDepth"`
}

// Brand is one sec-ch-ua brand/version pair.
type Brand struct {
	Brand   string `json:"brand"`
	Version string `json:"version"`
}

// ClientHints carries the sec-ch-ua values for Chromium families.
// Firefox identities have no client hints (nil pointer).
type ClientHints struct {
	Brands          []Brand `json:"brands"`
	Mobile          bool    `json:"mobile"`
	Platform        string  `json:"platform"`        // "Windows", "Linux", "macOS"
	PlatformVersion string  `json:"platformVersion"` // e.g. "15.0.0"
}

// WebGL is the claimed GPU identification.
type WebGL struct {
	Vendor   string `json:"vendor"`
	Renderer string `json:"renderer"`
}

// SessionIdentity is the synthetic user profile applied to one session.
// All fields are mutually consistent: the client-hint platform agrees with
// Platform, and the UA major version agrees with the brand versions.
type SessionIdentity struct {
	UserAgent           string         `json:"userAgent"`
	Family              Family         `json:"-"`
	BrowserMajor        int            `json:"-"`
	Platform            string         `json:"platform"` // Win32 | Linux | MacIntel
	Locale              string         `json:"locale"`
	Timezone            string         `json:"timezone"`
	Languages           []string       `json:"languages"`
	Viewport            types.Viewport `json:"viewport"`
	Screen              Screen         `json:"screen"`
	HardwareConcurrency int            `json:"hardwareConcurrency"`
	DeviceMemoryGb      int            `json:"deviceMemoryGb"`
	WebGL               WebGL          `json:"webgl"`
	ClientHints         *ClientHints   `json:"clientHints,omitempty"`
	FingerprintSeed     [32]byte       `json:"-"`
}

// IsChromium reports whether the identity emits client hints.
func (id *SessionIdentity) IsChromium() bool {
	return id.Family == FamilyChrome || id.Family == FamilyEdge
}

// AcceptLanguage renders the ordered language list as an Accept-Language
// value with descending q-weights.
func (id *SessionIdentity) AcceptLanguage() string {
	var b strings.Builder
	for i, lang := range id.Languages {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(lang)
		if i > 0 {
			q := 1.0 - 0.1*float64(i)
			b.WriteString(fmt.Sprintf(";q=%.1f", q))
		}
	}
	return b.String()
}

// SecChUa renders the sec-ch-ua header value. Empty for Firefox.
func (id *SessionIdentity) SecChUa() string {
	if id.ClientHints == nil {
		return ""
	}
	parts := make([]string, 0, len(id.ClientHints.Brands))
	for _, br := range id.ClientHints.Brands {
		parts = append(parts, fmt.Sprintf("%q;v=%q", br.Brand, br.Version))
	}
	return strings.Join(parts, ", ")
}

// SecChUaPlatform renders the quoted sec-ch-ua-platform value.
func (id *SessionIdentity) SecChUaPlatform() string {
	if id.ClientHints == nil {
		return ""
	}
	return strconv.Quote(id.ClientHints.Platform)
}

// NoiseSeed folds the fingerprint seed into the uint32 fed to the canvas
// noise generator inside the stealth script.
func (id *SessionIdentity) NoiseSeed() uint32 {
	return binary.BigEndian.Uint32(id.FingerprintSeed[:4])
}

// Synthesiser draws coherent identities from the configured pools.
// Safe for concurrent use.
type Synthesiser struct {
	pools func() *Pools

	mu         sync.Mutex
	lastUA     string
	lastLocale string
}

// NewSynthesiser builds a Synthesiser on a pool source. The source is
// called per synthesis so hot-reloaded pools take effect immediately.
func NewSynthesiser(pools func() *Pools) *Synthesiser {
	return &Synthesiser{pools: pools}
}

// Synthesize produces a SessionIdentity. A non-empty userAgentOverride is
// used verbatim with family/platform derived from it; viewport falls back
// to 1920x1080 when nil.
func (s *Synthesiser) Synthesize(userAgentOverride string, viewport *types.Viewport) (*SessionIdentity, error) {
	p := s.pools()

	ua := userAgentOverride
	if ua == "" {
		ua = s.pickUserAgent(p)
	}

	family, major := deriveFamily(ua)
	platform := derivePlatform(ua)
	locale := s.pickLocale(p)

	vp := types.Viewport{Width: types.DefaultViewportW, Height: types.DefaultViewportH}
	if viewport != nil {
		vp = *viewport
	}

	id := &SessionIdentity{
		UserAgent:           ua,
		Family:              family,
		BrowserMajor:        major,
		Platform:            platform,
		Locale:              locale.Locale,
		Timezone:            locale.Timezone,
		Languages:           append([]string(nil), locale.Languages...),
		Viewport:            vp,
		Screen:              screenFor(vp),
		HardwareConcurrency: p.HardwareConcurrency[mrand.IntN(len(p.HardwareConcurrency))],
		DeviceMemoryGb:      p.DeviceMemoryGb[mrand.IntN(len(p.DeviceMemoryGb))],
		WebGL:               WebGL(p.WebGL[mrand.IntN(len(p.WebGL))]),
	}

	if id.IsChromium() {
		id.ClientHints = clientHintsFor(family, major, platform)
	}

	// Entropy loss here is fatal by contract; the caller aborts the process.
	if _, err := rand.Read(id.FingerprintSeed[:]); err != nil {
		return nil, fmt.Errorf("fingerprint seed: %w", err)
	}

	return id, nil
}

// pickUserAgent avoids returning the same string twice in a row when the
// pool allows it.
func (s *Synthesiser) pickUserAgent(p *Pools) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ua := p.UserAgents[mrand.IntN(len(p.UserAgents))]
	for ua == s.lastUA && len(p.UserAgents) > 1 {
		ua = p.UserAgents[mrand.IntN(len(p.UserAgents))]
	}
	s.lastUA = ua
	return ua
}

func (s *Synthesiser) pickLocale(p *Pools) LocaleProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	lp := p.Locales[mrand.IntN(len(p.Locales))]
	if lp.Timezone == s.lastLocale && len(p.Locales) > 1 {
		lp = p.Locales[mrand.IntN(len(p.Locales))]
	}
	s.lastLocale = lp.Timezone
	return lp
}

var (
	edgeVersionRe    = regexp.MustCompile(`Edg/(\d+)`)
	chromeVersionRe  = regexp.MustCompile(`Chrome/(\d+)`)
	firefoxVersionRe = regexp.MustCompile(`Firefox/(\d+)`)
)

// deriveFamily classifies a user agent string and extracts its major
// version. Unknown strings are treated as Chrome with the newest pooled
// version so client hints stay plausible.
func deriveFamily(ua string) (Family, int) {
	if m := edgeVersionRe.FindStringSubmatch(ua); m != nil {
		v, _ := strconv.Atoi(m[1])
		return FamilyEdge, v
	}
	if m := firefoxVersionRe.FindStringSubmatch(ua); m != nil {
		v, _ := strconv.Atoi(m[1])
		return FamilyFirefox, v
	}
	if m := chromeVersionRe.FindStringSubmatch(ua); m != nil {
		v, _ := strconv.Atoi(m[1])
		return FamilyChrome, v
	}
	return FamilyChrome, 132
}

// derivePlatform maps a user agent onto the navigator.platform claim.
func derivePlatform(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Win32"
	case strings.Contains(ua, "Macintosh"):
		return "MacIntel"
	default:
		return "Linux"
	}
}

// screenFor claims a screen just covering the viewport, minus a taskbar.
func screenFor(vp types.Viewport) Screen {
	return Screen{
		Width:       vp.Width,
		Height:      vp.Height,
		AvailWidth:  vp.Width,
		AvailHeight: vp.Height - 40,
		ColorDepth:  24,
	}
}

// clientHintsFor builds the sec-ch-ua brand list for a Chromium family.
func clientHintsFor(family Family, major int, platform string) *ClientHints {
	v := strconv.Itoa(major)
	brands := []Brand{
		{Brand: "Not A(Brand", Version: "8"},
		{Brand: "Chromium", Version: v},
	}
	if family == FamilyEdge {
		brands = append(brands, Brand{Brand: "Microsoft Edge", Version: v})
	} else {
		brands = append(brands, Brand{Brand: "Google Chrome", Version: v})
	}

	ch := &ClientHints{Brands: brands, Mobile: false}
	switch platform {
	case "Win32":
		ch.Platform = "Windows"
		ch.PlatformVersion = "15.0.0"
	case "MacIntel":
		ch.Platform = "macOS"
		ch.PlatformVersion = "14.6.1"
	default:
		ch.Platform = "Linux"
		ch.PlatformVersion = "6.8.0"
	}
	return ch
}
