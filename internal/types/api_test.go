package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaulted(req *RenderRequest) *RenderRequest {
	req.ApplyDefaults(30*time.Second, 2*time.Second)
	return req
}

func TestApplyDefaults(t *testing.T) {
	req := defaulted(&RenderRequest{URL: "https://example.com"})

	assert.Equal(t, WaitModeNetworkIdle, req.WaitMode)
	assert.Equal(t, 30000, req.HardTimeoutMs)
	assert.Equal(t, 2000, req.PostLoadWaitMs)
	require.NotNil(t, req.Viewport)
	assert.Equal(t, 1920, req.Viewport.Width)
	assert.Equal(t, 1080, req.Viewport.Height)
	assert.True(t, req.ShouldScroll())
	assert.True(t, req.WantsPartial())
}

func TestHardTimeoutClamp(t *testing.T) {
	req := defaulted(&RenderRequest{URL: "https://example.com", HardTimeoutMs: 600000})
	assert.Equal(t, MaxHardTimeoutMs, req.HardTimeoutMs)
	assert.Equal(t, 120*time.Second, req.HardTimeout())
}

func TestExplicitFalseBoolsSurvive(t *testing.T) {
	f := false
	req := defaulted(&RenderRequest{
		URL:                    "https://example.com",
		ScrollToBottom:         &f,
		ReturnPartialOnTimeout: &f,
	})
	assert.False(t, req.ShouldScroll())
	assert.False(t, req.WantsPartial())
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"empty", "", ErrURLRequired},
		{"relative", "/path/only", ErrInvalidURL},
		{"bad scheme", "ftp://example.com", ErrInvalidURL},
		{"no host", "https://", ErrInvalidURL},
		{"http ok", "http://example.com", nil},
		{"https ok", "https://example.com/a?b=c", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := defaulted(&RenderRequest{URL: tt.url})
			err := req.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSelectors(t *testing.T) {
	req := defaulted(&RenderRequest{
		URL:              "https://example.com",
		WaitForSelectors: []string{"#main", ".content > p"},
	})
	assert.NoError(t, req.Validate())

	req = defaulted(&RenderRequest{
		URL:            "https://example.com",
		ClickSelectors: []string{"div[unclosed"},
	})
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)
}

func TestValidateCookies(t *testing.T) {
	req := defaulted(&RenderRequest{
		URL:     "https://example.com",
		Cookies: []Cookie{{Name: "a", Value: "b", SameSite: "None"}},
	})
	assert.NoError(t, req.Validate())

	req = defaulted(&RenderRequest{
		URL:     "https://example.com",
		Cookies: []Cookie{{Name: "a", SameSite: "bogus"}},
	})
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)

	req = defaulted(&RenderRequest{
		URL:     "https://example.com",
		Cookies: []Cookie{{Name: ""}},
	})
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)
}

func TestValidateArtifactOptions(t *testing.T) {
	req := defaulted(&RenderRequest{
		URL:            "https://example.com",
		WantScreenshot: &ScreenshotOptions{Format: "webp"},
	})
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)

	req = defaulted(&RenderRequest{
		URL:     "https://example.com",
		WantPdf: &PdfOptions{PaperSize: "Tabloid"},
	})
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)

	req = defaulted(&RenderRequest{
		URL:            "https://example.com",
		WantScreenshot: &ScreenshotOptions{},
		WantPdf:        &PdfOptions{Background: true},
	})
	assert.NoError(t, req.Validate())
	assert.Equal(t, "png", req.WantScreenshot.Format)
	assert.Equal(t, "A4", req.WantPdf.PaperSize)
}

func TestBatchNormalize(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultMaxParallel},
		{-3, DefaultMaxParallel},
		{2, 2},
		{5, 5},
		{99, MaxBatchParallel},
	}
	for _, tt := range tests {
		b := &BatchRequest{URLs: []string{"https://example.com"}, MaxParallel: tt.in}
		b.Normalize()
		assert.Equal(t, tt.want, b.MaxParallel)
	}
}

func TestBatchValidate(t *testing.T) {
	b := &BatchRequest{}
	assert.ErrorIs(t, b.Validate(10), ErrInvalidRequest)

	b = &BatchRequest{URLs: make([]string, 11)}
	assert.ErrorIs(t, b.Validate(10), ErrInvalidRequest)

	b = &BatchRequest{URLs: []string{"https://example.com"}}
	assert.NoError(t, b.Validate(10))
}
