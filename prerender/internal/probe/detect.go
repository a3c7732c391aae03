package probe

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// shellMarkers are empty application mount points left in the document when
// client-side rendering never happened.
var shellMarkers = []string{
	`<app-root></app-root>`,
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<noscript>you need to enable javascript`,
	`<noscript>please enable javascript`,
}

// IsSufficient reports whether an HTML document carries enough visible text
// to be a rendered page rather than an SPA shell.
// Heuristic: at least 200 text bytes, at least 10% of the document, and no
// empty mount point.
func IsSufficient(doc []byte) bool {
	if len(doc) < 256 {
		return false
	}

	text, markup := textMarkupRatio(doc)
	total := text + markup
	if total == 0 {
		return false
	}
	if float64(text)/float64(total) < 0.10 {
		return false
	}
	if text < 200 {
		return false
	}

	lower := bytes.ToLower(doc)
	for _, m := range shellMarkers {
		if bytes.Contains(lower, []byte(m)) {
			return false
		}
	}
	return true
}

// textMarkupRatio counts non-whitespace text bytes outside script and style
// elements; everything else is markup.
func textMarkupRatio(doc []byte) (text, markup int) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return text, markup
		case html.TextToken:
			raw := z.Raw()
			if skip > 0 {
				markup += len(raw)
				continue
			}
			n := len(strings.Join(strings.Fields(string(raw)), ""))
			text += n
			markup += len(raw) - n
		case html.StartTagToken:
			markup += len(z.Raw())
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
		case html.EndTagToken:
			markup += len(z.Raw())
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
		default:
			markup += len(z.Raw())
		}
	}
}

func isRawText(name []byte) bool {
	return string(name) == "script" || string(name) == "style"
}
