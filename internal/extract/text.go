// Package extract turns a settled page into caller-facing artifacts:
// plain text distilled from the rendered HTML, and the CDP capture
// parameters for screenshots and PDFs.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// strippedSelectors are elements that never carry readable content.
const strippedSelectors = "script, style, noscript, template, svg, iframe, canvas, nav, aside, form, footer"

// adSelectors match the common ad-container class and id conventions.
const adSelectors = `[class*="advert"], [id*="advert"], .ad, .ads, .ad-banner, .adsbygoogle, [class*="sponsored"], [id^="google_ads"]`

// blockElements get paragraph treatment when flattening to text.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "dl": true, "dt": true, "dd": true,
	"table": true, "tr": true, "thead": true, "tbody": true,
	"blockquote": true, "pre": true, "figure": true, "figcaption": true,
	"header": true, "hr": true, "address": true,
}

// Text distils rendered HTML to plain text in reading order. Script,
// style, navigation, aside and ad-matching elements are dropped; runs of
// whitespace collapse to single spaces; block elements become line
// breaks with at most one blank line between paragraphs.
func Text(renderedHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(renderedHTML))
	if err != nil {
		return "", err
	}

	doc.Find(strippedSelectors).Remove()
	doc.Find(adSelectors).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var b strings.Builder
	for _, n := range root.Nodes {
		flatten(n, &b)
	}
	return normalizeText(b.String()), nil
}

func flatten(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		// Source-markup newlines are formatting, not line breaks; only
		// block structure below produces them.
		b.WriteString(strings.Map(func(r rune) rune {
			switch r {
			case '\n', '\r', '\t':
				return ' '
			}
			return r
		}, n.Data))
	case html.ElementNode:
		if n.Data == "br" {
			b.WriteString("\n")
		}
		block := blockElements[n.Data]
		if block {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			flatten(c, b)
		}
		if block {
			b.WriteString("\n")
		}
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			flatten(c, b)
		}
	}
}

// normalizeText collapses intra-line whitespace and blank-line runs.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
