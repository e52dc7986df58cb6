package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/pageforge/pageforge/internal/fingerprint"
)

// preservedHeaders are request-specific headers the browser computed for
// this exact request; they are carried through the rewrite untouched.
var preservedHeaders = map[string]bool{
	"referer":           true,
	"cookie":            true,
	"origin":            true,
	"content-type":      true,
	"range":             true,
	"if-modified-since": true,
	"if-none-match":     true,
}

// installHeaderRewriter attaches an interception hook that replaces the
// header set of every outgoing request with the canonical ordered table
// for the session's identity, classified by resource type. Automation
// tells are stripped; Firefox identities never emit sec-ch-ua. Caller
// extras ride along on every request and win over carried browser
// headers of the same name.
func installHeaderRewriter(page *rod.Page, identity *fingerprint.SessionIdentity, extraHeaders map[string]string) (*rod.HijackRouter, error) {
	router := page.HijackRequests()

	err := router.Add("*", "", func(h *rod.Hijack) {
		class := fingerprint.ClassifyResourceType(string(h.Request.Type()))

		carried := make(map[string]string)
		for name, values := range h.Request.Req().Header {
			lower := strings.ToLower(name)
			if fingerprint.IsStrippedHeader(lower) {
				continue
			}
			if preservedHeaders[lower] && len(values) > 0 {
				carried[name] = values[0]
			}
		}

		entries := fingerprint.HeadersFor(identity, class, mergeCallerHeaders(carried, extraHeaders))
		headers := make([]*proto.FetchHeaderEntry, 0, len(entries))
		for _, e := range entries {
			headers = append(headers, &proto.FetchHeaderEntry{Name: e.Name, Value: e.Value})
		}

		// Continue natively in the browser; we only touch headers.
		h.ContinueRequest(&proto.FetchContinueRequest{Headers: headers})
	})
	if err != nil {
		return nil, err
	}

	go router.Run()
	return router, nil
}

// mergeCallerHeaders overlays the caller's extra headers on the headers
// carried from the browser. On a case-insensitive name collision the
// caller's value and spelling win.
func mergeCallerHeaders(carried, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return carried
	}
	merged := make(map[string]string, len(carried)+len(extra))
	for name, value := range carried {
		merged[name] = value
	}
	for name := range extra {
		for carriedName := range merged {
			if strings.EqualFold(carriedName, name) {
				delete(merged, carriedName)
			}
		}
	}
	for name, value := range extra {
		merged[name] = value
	}
	return merged
}
