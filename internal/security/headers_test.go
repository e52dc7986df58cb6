package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateExtraHeadersValid(t *testing.T) {
	assert.NoError(t, ValidateExtraHeaders(nil))
	assert.NoError(t, ValidateExtraHeaders(map[string]string{}))
	assert.NoError(t, ValidateExtraHeaders(map[string]string{
		"X-Custom-Id":   "abc-123",
		"Accept":        "text/html",
		"Cache-Control": "no-cache",
	}))
}

func TestValidateExtraHeadersForbidden(t *testing.T) {
	forbidden := []string{
		"Host",
		"Connection",
		"Content-Length",
		"Cookie",
		"Authorization",
		"Origin",
		"Referer",
		"Sec-Fetch-Site",
		"Sec-Ch-Ua",
		"CF-Connecting-IP",
		"X-Forwarded-For",
		"Proxy-Authorization",
		"X-Real-IP",
	}
	for _, name := range forbidden {
		err := ValidateExtraHeaders(map[string]string{name: "x"})
		assert.ErrorIs(t, err, ErrBlockedHeader, name)
	}
}

func TestValidateExtraHeadersMalformed(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		wantErr error
	}{
		{"empty name", map[string]string{"": "x"}, ErrHeaderNameEmpty},
		{"name with space", map[string]string{"X Custom": "x"}, ErrInvalidHeaderName},
		{"name with colon", map[string]string{"X:Custom": "x"}, ErrInvalidHeaderName},
		{"name too long", map[string]string{strings.Repeat("a", 257): "x"}, ErrHeaderNameTooLong},
		{"value with newline", map[string]string{"X-A": "a\r\nInjected: b"}, ErrInvalidHeaderChar},
		{"value with null", map[string]string{"X-A": "a\x00b"}, ErrInvalidHeaderChar},
		{"value non-ascii", map[string]string{"X-A": "héllo"}, ErrInvalidHeaderChar},
		{"value too long", map[string]string{"X-A": strings.Repeat("v", 8193)}, ErrHeaderValueTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateExtraHeaders(tt.headers), tt.wantErr)
		})
	}
}

func TestValidateExtraHeadersCountAndAggregate(t *testing.T) {
	many := make(map[string]string)
	for i := 0; i < MaxHeaderCount+1; i++ {
		many["X-H-"+strings.Repeat("a", 3)+string(rune('a'+i%26))+string(rune('a'+i/26))] = "v"
	}
	assert.ErrorIs(t, ValidateExtraHeaders(many), ErrTooManyHeaders)

	big := map[string]string{
		"X-A": strings.Repeat("v", 8000),
		"X-B": strings.Repeat("v", 8000),
		"X-C": strings.Repeat("v", 8000),
		"X-D": strings.Repeat("v", 8000),
		"X-E": strings.Repeat("v", 8000),
		"X-F": strings.Repeat("v", 8000),
		"X-G": strings.Repeat("v", 8000),
		"X-H": strings.Repeat("v", 8000),
		"X-I": strings.Repeat("v", 8000),
	}
	assert.ErrorIs(t, ValidateExtraHeaders(big), ErrTotalHeadersTooLong)
}
