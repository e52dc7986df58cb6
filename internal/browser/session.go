package browser

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/fingerprint"
	"github.com/pageforge/pageforge/internal/security"
	"github.com/pageforge/pageforge/internal/types"
)

// Session is one isolated rendering context: its own cookie jar, its own
// storage, one page, a synthesised identity, and a header-rewriting
// interception hook. A session belongs to exactly one request.
type Session struct {
	ID       string
	Identity *fingerprint.SessionIdentity
	Page     *rod.Page

	incognito *rod.Browser
	router    *rod.HijackRouter
	createdAt time.Time
	closed    atomic.Bool
	failCause atomic.Value // error set when the engine died under us
}

// AcquireSession starts the engine if needed and creates an isolated
// session for targetURL: fresh incognito context, viewport and identity
// overrides, document-start stealth scripts, caller cookies (plus the
// Google consent pair on google hosts), and the header rewriter carrying
// the caller's extra headers.
//
// Stealth script installation failure makes the session unusable and is
// reported as ErrSessionCreationFailed.
func (m *Manager) AcquireSession(ctx context.Context, identity *fingerprint.SessionIdentity, scripts []string, targetURL *url.URL, cookies []types.Cookie, extraHeaders map[string]string) (*Session, error) {
	engine, err := m.ensureStarted(ctx)
	if err != nil {
		return nil, err
	}

	incognito, err := engine.Incognito()
	if err != nil {
		return nil, fmt.Errorf("%w: isolated context: %v", types.ErrSessionCreationFailed, err)
	}

	sess := &Session{
		ID:        gonanoid.Must(10),
		Identity:  identity,
		incognito: incognito,
		createdAt: time.Now(),
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("%w: create page: %v", types.ErrSessionCreationFailed, err)
	}
	sess.Page = page

	if err := m.configureSession(sess, scripts, targetURL, cookies, extraHeaders); err != nil {
		sess.Close()
		return nil, err
	}

	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		sess.Close()
		return nil, types.ErrBrowserUnavailable
	}
	m.sessions[sess.ID] = sess
	count := len(m.sessions)
	m.mu.Unlock()

	log.Debug().
		Str("session_id", sess.ID).
		Str("user_agent", identity.UserAgent).
		Int("active_sessions", count).
		Msg("Session acquired")

	return sess, nil
}

func (m *Manager) configureSession(sess *Session, scripts []string, targetURL *url.URL, cookies []types.Cookie, extraHeaders map[string]string) error {
	page := sess.Page
	identity := sess.Identity

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             identity.Viewport.Width,
		Height:            identity.Viewport.Height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		return fmt.Errorf("%w: set viewport: %v", types.ErrSessionCreationFailed, err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      identity.UserAgent,
		AcceptLanguage: identity.AcceptLanguage(),
		Platform:       identity.Platform,
	}); err != nil {
		return fmt.Errorf("%w: set user agent: %v", types.ErrSessionCreationFailed, err)
	}

	// Timezone mismatch against the locale is a cheap detection vector,
	// but an unsupported zone id must not kill the session.
	if err := (proto.EmulationSetTimezoneOverride{
		TimezoneID: identity.Timezone,
	}).Call(page); err != nil {
		log.Warn().Err(err).Str("timezone", identity.Timezone).Msg("Timezone override failed")
	}

	// Document-start injection. A session without its stealth layer
	// would navigate exposed, so failure here is fatal.
	for i, script := range scripts {
		if _, err := page.EvalOnNewDocument(script); err != nil {
			return fmt.Errorf("%w: install stealth script %d: %v", types.ErrSessionCreationFailed, i, err)
		}
	}

	params := cookieParams(targetURL, cookies)
	if IsGoogleHost(targetURL.Hostname()) {
		params = append(params, consentCookies(targetURL.Hostname())...)
	}
	if len(params) > 0 {
		if err := page.SetCookies(params); err != nil {
			return fmt.Errorf("%w: set cookies: %v", types.ErrSessionCreationFailed, err)
		}
	}

	router, err := installHeaderRewriter(page, identity, extraHeaders)
	if err != nil {
		return fmt.Errorf("%w: install request hook: %v", types.ErrSessionCreationFailed, err)
	}
	sess.router = router

	return nil
}

// Close tears down the session's page and incognito context. Idempotent.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.router != nil {
		_ = s.router.Stop()
	}
	if s.Page != nil {
		_ = s.Page.Close()
	}
	if s.incognito != nil && s.incognito.BrowserContextID != "" {
		_ = proto.TargetDisposeBrowserContext{
			BrowserContextID: s.incognito.BrowserContextID,
		}.Call(s.incognito)
	}
	log.Debug().
		Str("session_id", s.ID).
		Dur("lifetime", time.Since(s.createdAt)).
		Msg("Session closed")
}

// fail marks the session dead because the engine went away and releases
// what can still be released.
func (s *Session) fail(cause error) {
	s.failCause.Store(cause)
	s.Close()
}

// Err returns the engine-loss error for this session, or nil while it is
// healthy.
func (s *Session) Err() error {
	if v := s.failCause.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// cookieParams converts wire cookies to CDP params. Cookies without a
// domain are scoped to the target URL.
func cookieParams(target *url.URL, cookies []types.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Domain == "" {
			p.URL = target.String()
		} else {
			// Rescope domains that do not cover the target.
			p.Domain = security.SanitizeCookieDomain(c.Domain, target.Hostname())
		}
		if p.Path == "" {
			p.Path = "/"
		}
		switch strings.ToLower(c.SameSite) {
		case "lax":
			p.SameSite = proto.NetworkCookieSameSiteLax
		case "strict":
			p.SameSite = proto.NetworkCookieSameSiteStrict
		case "none":
			p.SameSite = proto.NetworkCookieSameSiteNone
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	return params
}

var googleHostRe = regexp.MustCompile(`(^|\.)google\.([a-z]{2,3}\.)?[a-z]{2,}$`)

// IsGoogleHost reports whether host is a google.* property, including
// subdomains and two-level country TLDs like google.co.uk.
func IsGoogleHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return googleHostRe.MatchString(strings.ToLower(host))
}

// googleParentDomain returns the registrable google domain with a
// leading dot, e.g. ".google.com" for "www.google.com".
func googleParentDomain(host string) string {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	idx := strings.LastIndex(host, "google.")
	if idx < 0 {
		return "." + host
	}
	return "." + host[idx:]
}

// consentCookies returns the Google consent pair that suppresses the
// interstitial consent page. Set on the parent domain, Secure,
// SameSite=None, one-year expiry.
func consentCookies(host string) []*proto.NetworkCookieParam {
	domain := googleParentDomain(host)
	expires := proto.TimeSinceEpoch(float64(time.Now().Add(365 * 24 * time.Hour).Unix()))
	mk := func(name, value string) *proto.NetworkCookieParam {
		return &proto.NetworkCookieParam{
			Name:     name,
			Value:    value,
			Domain:   domain,
			Path:     "/",
			Secure:   true,
			SameSite: proto.NetworkCookieSameSiteNone,
			Expires:  expires,
		}
	}
	return []*proto.NetworkCookieParam{
		mk("CONSENT", "YES+CB.en+V14"),
		mk("SOCS", "CAI"),
	}
}
