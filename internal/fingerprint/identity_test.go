package fingerprint

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageforge/pageforge/internal/types"
)

func newTestSynthesiser() *Synthesiser {
	return NewSynthesiser(func() *Pools { return Get() })
}

// Every synthesised identity must be internally consistent: platform agrees
// with the client-hint platform, the UA major version agrees with the brand
// versions, and Firefox identities carry no client hints at all.
func TestIdentityCoherence(t *testing.T) {
	s := newTestSynthesiser()

	for i := 0; i < 200; i++ {
		id, err := s.Synthesize("", nil)
		require.NoError(t, err)

		if id.Family == FamilyFirefox {
			assert.Nil(t, id.ClientHints, "firefox must omit client hints")
			assert.Empty(t, id.SecChUa())
			continue
		}

		require.NotNil(t, id.ClientHints)
		switch id.Platform {
		case "Win32":
			assert.Equal(t, "Windows", id.ClientHints.Platform)
		case "MacIntel":
			assert.Equal(t, "macOS", id.ClientHints.Platform)
		case "Linux":
			assert.Equal(t, "Linux", id.ClientHints.Platform)
		default:
			t.Fatalf("unexpected platform %q", id.Platform)
		}

		major := strconv.Itoa(id.BrowserMajor)
		assert.Contains(t, id.UserAgent, "Chrome/"+major)
		var found bool
		for _, b := range id.ClientHints.Brands {
			if b.Brand == "Chromium" {
				assert.Equal(t, major, b.Version)
				found = true
			}
		}
		assert.True(t, found, "brand list must carry Chromium with the UA major")
	}
}

func TestIdentityHardwareDrawsFromPools(t *testing.T) {
	s := newTestSynthesiser()
	p := Get()

	id, err := s.Synthesize("", nil)
	require.NoError(t, err)

	assert.Contains(t, p.HardwareConcurrency, id.HardwareConcurrency)
	assert.Contains(t, p.DeviceMemoryGb, id.DeviceMemoryGb)
	assert.NotEmpty(t, id.WebGL.Vendor)
	assert.NotEmpty(t, id.WebGL.Renderer)
	assert.NotEmpty(t, id.Timezone)
	assert.NotEmpty(t, id.Languages)
}

func TestIdentityDefaultViewportAndScreen(t *testing.T) {
	s := newTestSynthesiser()

	id, err := s.Synthesize("", nil)
	require.NoError(t, err)
	assert.Equal(t, 1920, id.Viewport.Width)
	assert.Equal(t, 1080, id.Viewport.Height)
	assert.Equal(t, 1920, id.Screen.Width)
	assert.Equal(t, 1040, id.Screen.AvailHeight)
	assert.Equal(t, 24, id.Screen.ColorDepth)

	id, err = s.Synthesize("", &types.Viewport{Width: 1366, Height: 768})
	require.NoError(t, err)
	assert.Equal(t, 1366, id.Screen.Width)
	assert.Equal(t, 728, id.Screen.AvailHeight)
}

func TestUserAgentOverride(t *testing.T) {
	s := newTestSynthesiser()
	const ua = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:134.0) Gecko/20100101 Firefox/134.0"

	id, err := s.Synthesize(ua, nil)
	require.NoError(t, err)
	assert.Equal(t, ua, id.UserAgent)
	assert.Equal(t, FamilyFirefox, id.Family)
	assert.Equal(t, 134, id.BrowserMajor)
	assert.Equal(t, "Win32", id.Platform)
	assert.Nil(t, id.ClientHints)
}

func TestNoConsecutiveUserAgentRepeat(t *testing.T) {
	s := newTestSynthesiser()

	var prev string
	for i := 0; i < 100; i++ {
		id, err := s.Synthesize("", nil)
		require.NoError(t, err)
		if prev != "" {
			assert.NotEqual(t, prev, id.UserAgent)
		}
		prev = id.UserAgent
	}
}

func TestFingerprintSeedsDiffer(t *testing.T) {
	s := newTestSynthesiser()

	a, err := s.Synthesize("", nil)
	require.NoError(t, err)
	b, err := s.Synthesize("", nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.FingerprintSeed, b.FingerprintSeed)
	assert.NotZero(t, a.NoiseSeed())
}

func TestDeriveFamily(t *testing.T) {
	tests := []struct {
		ua     string
		family Family
		major  int
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36", FamilyChrome, 132},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36 Edg/132.0.0.0", FamilyEdge, 132},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0", FamilyFirefox, 133},
	}
	for _, tt := range tests {
		family, major := deriveFamily(tt.ua)
		assert.Equal(t, tt.family, family)
		assert.Equal(t, tt.major, major)
	}
}

func TestAcceptLanguage(t *testing.T) {
	id := &SessionIdentity{Languages: []string{"en-CA", "en-US", "en"}}
	assert.Equal(t, "en-CA,en-US;q=0.9,en;q=0.8", id.AcceptLanguage())

	id = &SessionIdentity{Languages: []string{"en-US"}}
	assert.Equal(t, "en-US", id.AcceptLanguage())
}

func TestSecChUaFormat(t *testing.T) {
	s := newTestSynthesiser()
	const ua = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"

	id, err := s.Synthesize(ua, nil)
	require.NoError(t, err)

	val := id.SecChUa()
	assert.Contains(t, val, `"Chromium";v="132"`)
	assert.Contains(t, val, `"Google Chrome";v="132"`)
	assert.Equal(t, `"Windows"`, id.SecChUaPlatform())
	assert.True(t, strings.Count(val, ";v=") == 3)
}
