package template

import (
	"regexp"
	"strings"
)

// scriptOrStyleBlock matches a single <script ...>...</script> or
// <style ...>...</style> element, case-insensitively, across newlines.
var scriptOrStyleBlock = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</\s*\1\s*>`)

// stripScriptsAndStyles removes every <script>/<style> element. It loops
// until the input stabilizes rather than doing a single regex pass, which
// defeats bypasses built from overlapping/incomplete tag fragments (e.g.
// "<scr<script>ipt>") that a one-shot replace would miss.
func stripScriptsAndStyles(html string) string {
	for {
		next := scriptOrStyleBlock.ReplaceAllString(html, "")
		if next == html {
			return next
		}
		html = next
	}
}

// eventHandlerAttr matches on* attributes (onclick, onerror, ...).
var eventHandlerAttr = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)

// javascriptHref matches an href/src attribute pointing at a javascript: URL.
var javascriptHref = regexp.MustCompile(`(?i)(href|src)\s*=\s*("javascript:[^"]*"|'javascript:[^']*')`)

var disallowedTags = regexp.MustCompile(`(?is)</?\s*(table|tr|td|th|thead|tbody|img|iframe|form|input|button|select|textarea|object|embed|link|meta)\b[^>]*>`)

var anchorTag = regexp.MustCompile(`(?is)<a\s+([^>]*)>`)
var hrefAttr = regexp.MustCompile(`(?i)href\s*=\s*["']([^"']*)["']`)

// SanitizeHTML implements the restricted allow-list sanitizer used by IN_APP
// and CHAT rendering (§4.5): strips <script>/<style>, disallowed tags
// (table/img/iframe/form/etc.), event-handler attributes and javascript:
// URLs, and decorates external anchors with target/rel/data attributes.
//
// Entities are decoded before the strip passes run, not after: an
// entity-encoded payload (e.g. "&lt;script&gt;") must not survive
// stripScriptsAndStyles only to be decoded into a live tag afterward.
func SanitizeHTML(html string) string {
	html = decodeCommonEntities(html)
	html = stripScriptsAndStyles(html)
	html = disallowedTags.ReplaceAllString(html, "")
	html = eventHandlerAttr.ReplaceAllString(html, "")
	html = javascriptHref.ReplaceAllString(html, `$1="#"`)
	html = decorateExternalAnchors(html)
	return html
}

func decorateExternalAnchors(html string) string {
	return anchorTag.ReplaceAllStringFunc(html, func(tag string) string {
		m := hrefAttr.FindStringSubmatch(tag)
		if m == nil {
			return tag
		}
		href := m[1]
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return tag
		}
		if strings.Contains(tag, "data-external-link") {
			return tag
		}
		return strings.TrimSuffix(tag, ">") + ` target="_blank" rel="noopener noreferrer" data-external-link="true">`
	})
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
)

func decodeCommonEntities(s string) string {
	return entityReplacer.Replace(s)
}
