package fingerprint

import (
	"sort"
	"strings"
)

// HeaderEntry is one ordered request header. Chrome sends headers in a
// stable order; proxies and WAFs score deviations from it.
type HeaderEntry struct {
	Name  string
	Value string
}

// ResourceClass buckets CDP resource types for header shaping.
type ResourceClass string

const (
	ResourceDocument   ResourceClass = "document"
	ResourceStylesheet ResourceClass = "stylesheet"
	ResourceScript     ResourceClass = "script"
	ResourceImage      ResourceClass = "image"
	ResourceOther      ResourceClass = "other"
)

// ClassifyResourceType maps a CDP Network.ResourceType name onto a class.
func ClassifyResourceType(t string) ResourceClass {
	switch strings.ToLower(t) {
	case "document":
		return ResourceDocument
	case "stylesheet":
		return ResourceStylesheet
	case "script":
		return ResourceScript
	case "image":
		return ResourceImage
	default:
		return ResourceOther
	}
}

// Headers dropped from every outgoing request. x-requested-with betrays
// XHR shims and pragma marks cache-busting automation.
var strippedHeaders = map[string]bool{
	"x-requested-with": true,
	"pragma":           true,
}

// IsStrippedHeader reports whether the named request header must be
// removed before forwarding.
func IsStrippedHeader(name string) bool {
	return strippedHeaders[strings.ToLower(name)]
}

func acceptFor(class ResourceClass) string {
	switch class {
	case ResourceDocument:
		return "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	case ResourceStylesheet:
		return "text/css,*/*;q=0.1"
	case ResourceImage:
		return "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8"
	default:
		return "*/*"
	}
}

func secFetchFor(class ResourceClass) (site, mode, dest string, user bool) {
	switch class {
	case ResourceDocument:
		return "none", "navigate", "document", true
	case ResourceStylesheet:
		return "same-origin", "no-cors", "style", false
	case ResourceScript:
		return "same-origin", "no-cors", "script", false
	case ResourceImage:
		return "same-origin", "no-cors", "image", false
	default:
		return "same-origin", "cors", "empty", false
	}
}

// HeadersFor builds the canonical ordered Chrome header table for one
// outgoing request. Caller extras are appended last and may override by
// name (case-insensitive). Firefox identities emit no sec-ch-ua values.
func HeadersFor(id *SessionIdentity, class ResourceClass, extra map[string]string) []HeaderEntry {
	site, mode, dest, user := secFetchFor(class)

	headers := make([]HeaderEntry, 0, 16)
	headers = append(headers,
		HeaderEntry{"User-Agent", id.UserAgent},
		HeaderEntry{"Accept", acceptFor(class)},
		HeaderEntry{"Accept-Language", id.AcceptLanguage()},
		HeaderEntry{"Accept-Encoding", "gzip, deflate, br, zstd"},
	)

	if id.IsChromium() {
		headers = append(headers,
			HeaderEntry{"sec-ch-ua", id.SecChUa()},
			HeaderEntry{"sec-ch-ua-mobile", "?0"},
			HeaderEntry{"sec-ch-ua-platform", id.SecChUaPlatform()},
		)
		if class == ResourceDocument {
			headers = append(headers, HeaderEntry{"sec-ch-ua-platform-version", `"` + id.ClientHints.PlatformVersion + `"`})
		}
	}

	headers = append(headers,
		HeaderEntry{"Sec-Fetch-Site", site},
		HeaderEntry{"Sec-Fetch-Mode", mode},
	)
	if user {
		headers = append(headers, HeaderEntry{"Sec-Fetch-User", "?1"})
	}
	headers = append(headers, HeaderEntry{"Sec-Fetch-Dest", dest})

	if class == ResourceDocument {
		headers = append(headers,
			HeaderEntry{"Upgrade-Insecure-Requests", "1"},
			HeaderEntry{"Cache-Control", "max-age=0"},
		)
	}
	headers = append(headers,
		HeaderEntry{"DNT", "1"},
		HeaderEntry{"Connection", "keep-alive"},
	)

	// Caller extras in deterministic order.
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if IsStrippedHeader(name) {
			continue
		}
		replaced := false
		for i := range headers {
			if strings.EqualFold(headers[i].Name, name) {
				headers[i].Value = extra[name]
				replaced = true
				break
			}
		}
		if !replaced {
			headers = append(headers, HeaderEntry{name, extra[name]})
		}
	}

	return headers
}
