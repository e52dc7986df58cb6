package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chromeIdentity(t *testing.T) *SessionIdentity {
	t.Helper()
	id, err := newTestSynthesiser().Synthesize(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36", nil)
	require.NoError(t, err)
	return id
}

func firefoxIdentity(t *testing.T) *SessionIdentity {
	t.Helper()
	id, err := newTestSynthesiser().Synthesize(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:134.0) Gecko/20100101 Firefox/134.0", nil)
	require.NoError(t, err)
	return id
}

func headerNames(entries []HeaderEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

func findHeader(entries []HeaderEntry, name string) (string, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

func TestDocumentHeaderOrder(t *testing.T) {
	id := chromeIdentity(t)
	headers := HeadersFor(id, ResourceDocument, nil)
	names := headerNames(headers)

	// Canonical order: UA block, client hints, sec-fetch, then the tail.
	assert.Equal(t, []string{
		"User-Agent", "Accept", "Accept-Language", "Accept-Encoding",
		"sec-ch-ua", "sec-ch-ua-mobile", "sec-ch-ua-platform", "sec-ch-ua-platform-version",
		"Sec-Fetch-Site", "Sec-Fetch-Mode", "Sec-Fetch-User", "Sec-Fetch-Dest",
		"Upgrade-Insecure-Requests", "Cache-Control", "DNT", "Connection",
	}, names)

	v, _ := findHeader(headers, "Sec-Fetch-Site")
	assert.Equal(t, "none", v)
	v, _ = findHeader(headers, "Sec-Fetch-Dest")
	assert.Equal(t, "document", v)
	v, _ = findHeader(headers, "Cache-Control")
	assert.Equal(t, "max-age=0", v)
}

func TestSubresourceSecFetchValues(t *testing.T) {
	id := chromeIdentity(t)

	tests := []struct {
		class ResourceClass
		mode  string
		dest  string
	}{
		{ResourceStylesheet, "no-cors", "style"},
		{ResourceScript, "no-cors", "script"},
		{ResourceImage, "no-cors", "image"},
		{ResourceOther, "cors", "empty"},
	}
	for _, tt := range tests {
		headers := HeadersFor(id, tt.class, nil)

		v, _ := findHeader(headers, "Sec-Fetch-Mode")
		assert.Equal(t, tt.mode, v, string(tt.class))
		v, _ = findHeader(headers, "Sec-Fetch-Dest")
		assert.Equal(t, tt.dest, v, string(tt.class))
		v, _ = findHeader(headers, "Sec-Fetch-Site")
		assert.Equal(t, "same-origin", v, string(tt.class))

		_, hasUser := findHeader(headers, "Sec-Fetch-User")
		assert.False(t, hasUser, "sec-fetch-user is document-only")
		_, hasUIR := findHeader(headers, "Upgrade-Insecure-Requests")
		assert.False(t, hasUIR, "upgrade-insecure-requests is document-only")
	}
}

func TestFirefoxOmitsClientHints(t *testing.T) {
	id := firefoxIdentity(t)
	headers := HeadersFor(id, ResourceDocument, nil)

	for _, e := range headers {
		assert.NotContains(t, e.Name, "sec-ch-ua")
	}
}

func TestExtraHeadersOverrideAndAppend(t *testing.T) {
	id := chromeIdentity(t)
	headers := HeadersFor(id, ResourceDocument, map[string]string{
		"accept-language": "fr-FR,fr;q=0.9",
		"X-Custom":        "1",
	})

	v, _ := findHeader(headers, "Accept-Language")
	assert.Equal(t, "fr-FR,fr;q=0.9", v)
	v, ok := findHeader(headers, "X-Custom")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestAutomationHeadersStripped(t *testing.T) {
	id := chromeIdentity(t)
	headers := HeadersFor(id, ResourceDocument, map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Pragma":           "no-cache",
	})

	_, hasXRW := findHeader(headers, "X-Requested-With")
	assert.False(t, hasXRW)
	_, hasPragma := findHeader(headers, "Pragma")
	assert.False(t, hasPragma)

	assert.True(t, IsStrippedHeader("x-requested-with"))
	assert.True(t, IsStrippedHeader("Pragma"))
	assert.False(t, IsStrippedHeader("Accept"))
}

func TestClassifyResourceType(t *testing.T) {
	assert.Equal(t, ResourceDocument, ClassifyResourceType("Document"))
	assert.Equal(t, ResourceStylesheet, ClassifyResourceType("Stylesheet"))
	assert.Equal(t, ResourceScript, ClassifyResourceType("Script"))
	assert.Equal(t, ResourceImage, ClassifyResourceType("Image"))
	assert.Equal(t, ResourceOther, ClassifyResourceType("XHR"))
	assert.Equal(t, ResourceOther, ClassifyResourceType("Font"))
}
