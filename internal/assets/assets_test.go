package assets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeVersion(t *testing.T) {
	assert.Equal(t, "1.2.3-rc.1", SanitizeVersion("1.2.3-rc.1"))
	assert.Equal(t, "unknown", SanitizeVersion(""))
	assert.NotContains(t, SanitizeVersion(`<script>alert("xss")</script>v1`), "<")
	assert.Len(t, SanitizeVersion(strings.Repeat("9", 300)), 100)
}

func TestRenderIndex(t *testing.T) {
	page, err := RenderIndex(IndexData{
		Version:   "1.0.0",
		GoVersion: "go1.24",
		Uptime:    "2m30s",
		Browser:   "ready",
		Sessions:  3,
	})
	require.NoError(t, err)

	assert.Contains(t, page, "PageForge")
	assert.Contains(t, page, "1.0.0")
	assert.Contains(t, page, "ready")
	assert.Contains(t, page, "go1.24")
}

func TestRenderIndexEscapesValues(t *testing.T) {
	page, err := RenderIndex(IndexData{Browser: `<img onerror="x">`})
	require.NoError(t, err)
	assert.NotContains(t, page, `<img onerror`)
}
