package security

import (
	"errors"
	"fmt"
	"strings"
)

// Header validation bounds.
const (
	MaxHeaderCount       = 50
	MaxHeaderNameLength  = 256
	MaxHeaderValueLength = 8192
	MaxTotalHeadersSize  = 65536
)

// Header validation errors.
var (
	ErrTooManyHeaders      = errors.New("too many extra headers (maximum 50)")
	ErrHeaderNameTooLong   = errors.New("header name exceeds maximum length of 256 bytes")
	ErrHeaderValueTooLong  = errors.New("header value exceeds maximum length of 8KB")
	ErrTotalHeadersTooLong = errors.New("total headers size exceeds maximum of 64KB")
	ErrHeaderNameEmpty     = errors.New("header name cannot be empty")
	ErrBlockedHeader       = errors.New("header is not allowed")
	ErrInvalidHeaderName   = errors.New("header name contains invalid characters")
	ErrInvalidHeaderChar   = errors.New("header value contains invalid characters")
)

// forbiddenHeaders are headers the engine or the identity layer must own.
// Overriding them would break connection handling or punch a hole in the
// synthesised fingerprint.
var forbiddenHeaders = map[string]bool{
	"host":              true,
	"connection":        true,
	"keep-alive":        true,
	"transfer-encoding": true,
	"content-length":    true,
	"te":                true,
	"trailer":           true,
	"upgrade":           true,

	"cookie":              true, // cookies travel in the cookies field
	"authorization":       true,
	"proxy-authorization": true,
	"www-authenticate":    true,
	"proxy-authenticate":  true,

	"origin":  true,
	"referer": true,
}

// forbiddenHeaderPrefixes cover header families the header synthesiser
// emits itself (sec-*) or that proxies and CDNs own.
var forbiddenHeaderPrefixes = []string{
	"sec-",
	"cf-",
	"x-forwarded-",
	"proxy-",
	"x-real-",
	"x-amz-",
	"x-goog-",
}

// ValidateExtraHeaders validates caller-supplied extra headers before
// they are merged into the canonical header table.
func ValidateExtraHeaders(headers map[string]string) error {
	if headers == nil {
		return nil
	}

	if len(headers) > MaxHeaderCount {
		return ErrTooManyHeaders
	}

	var totalSize int
	for name, value := range headers {
		if err := validateHeaderName(name); err != nil {
			return fmt.Errorf("invalid header name %q: %w", name, err)
		}
		if err := validateHeaderValue(value); err != nil {
			return fmt.Errorf("invalid value for header %q: %w", name, err)
		}
		totalSize += len(name) + len(value) + 4
		if totalSize > MaxTotalHeadersSize {
			return ErrTotalHeadersTooLong
		}
	}

	return nil
}

func validateHeaderName(name string) error {
	if name == "" {
		return ErrHeaderNameEmpty
	}
	if len(name) > MaxHeaderNameLength {
		return ErrHeaderNameTooLong
	}

	for _, c := range name {
		if c < 33 || c > 126 || c == ':' {
			return ErrInvalidHeaderName
		}
	}

	lower := strings.ToLower(name)
	if forbiddenHeaders[lower] {
		return ErrBlockedHeader
	}
	for _, prefix := range forbiddenHeaderPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ErrBlockedHeader
		}
	}

	return nil
}

// validateHeaderValue rejects control characters and non-ASCII outright.
// Stricter than RFC 7230, which protects against parser differentials.
func validateHeaderValue(value string) error {
	if len(value) > MaxHeaderValueLength {
		return ErrHeaderValueTooLong
	}
	for _, c := range value {
		if c < 32 || c >= 127 {
			return ErrInvalidHeaderChar
		}
	}
	return nil
}
