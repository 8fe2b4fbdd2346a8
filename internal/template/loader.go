package template

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Source resolves a template body (and optional subject) by key, scoped to
// a tenant with global fallback. internal/catalog.Repository.GetTemplate
// satisfies an adapter over this interface; kept separate so this package
// has no import-time dependency on the catalog's row types.
type Source interface {
	LoadTemplate(ctx context.Context, key, tenant string) (body, subject string, found bool, err error)
}

// MaxRenderDepth caps xnovu_render recursion (§4.5).
const MaxRenderDepth = 10

// ErrorPlaceholder is substituted for an xnovu_render call that exceeds
// MaxRenderDepth or fails to resolve; it is itself interpolated against the
// failing call's variable bag.
const ErrorPlaceholder = "[Template Error: {{key}}]"

type cacheEntry struct {
	body, subject string
	loadedAt      time.Time
}

// Cache is the template loader's (template_key, tenant) -> (body, subject,
// loaded_at) mapping with a fixed TTL.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	source  Source
}

// NewCache returns a cache wrapping source with the default 5-minute TTL.
func NewCache(source Source) *Cache {
	return &Cache{
		ttl:     5 * time.Minute,
		entries: make(map[string]cacheEntry),
		source:  source,
	}
}

func cacheKey(key, tenant string) string { return tenant + "\x00" + key }

func (c *Cache) get(ctx context.Context, key, tenant string) (body, subject string, found bool, err error) {
	ck := cacheKey(key, tenant)

	c.mu.RLock()
	entry, ok := c.entries[ck]
	c.mu.RUnlock()
	if ok && time.Since(entry.loadedAt) < c.ttl {
		return entry.body, entry.subject, true, nil
	}

	body, subject, found, err = c.source.LoadTemplate(ctx, key, tenant)
	if err != nil {
		return "", "", false, err
	}
	if !found {
		return "", "", false, nil
	}

	c.mu.Lock()
	c.entries[ck] = cacheEntry{body: body, subject: subject, loadedAt: time.Now()}
	c.mu.Unlock()
	return body, subject, true, nil
}

// ClearCache empties every cached entry.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// ClearExpired evicts entries whose TTL has lapsed.
func (c *Cache) ClearExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if time.Since(e.loadedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
}

// RenderError records an error encountered while recursively rendering a
// template, without aborting the overall render (§4.5's "records a render
// error" alongside substituting the placeholder).
type RenderError struct {
	TemplateKey string
	Message     string
}

// Render fully renders body against vars, scoped to tenant, recursing
// through xnovu_render calls up to MaxRenderDepth. It returns the rendered
// string and any render errors encountered (an empty slice means a clean
// render).
func (c *Cache) Render(ctx context.Context, body string, vars map[string]interface{}, tenant string) (string, []RenderError) {
	return c.renderAt(ctx, body, vars, tenant, 0)
}

func (c *Cache) renderAt(ctx context.Context, body string, vars map[string]interface{}, tenant string, depth int) (string, []RenderError) {
	var errs []RenderError
	var out strings.Builder
	i := 0
	n := len(body)

	for i < n {
		start := strings.Index(body[i:], "{{")
		if start < 0 {
			out.WriteString(body[i:])
			break
		}
		start += i
		out.WriteString(body[i:start])

		callEnd, call, ok := parseRenderCall(body, start)
		if !ok {
			// Not a render call (or malformed) — let Interpolate handle the
			// literal `{{ ... }}` span on a later pass; copy through as-is.
			end := strings.Index(body[start:], "}}")
			if end < 0 {
				out.WriteString(body[start:])
				break
			}
			end += start
			out.WriteString(body[start : end+2])
			i = end + 2
			continue
		}

		if depth+1 > MaxRenderDepth {
			errs = append(errs, RenderError{TemplateKey: call.key, Message: "max render depth exceeded"})
			out.WriteString(Interpolate(ErrorPlaceholder, mergeVars(vars, map[string]interface{}{"key": call.key})))
			i = callEnd
			continue
		}

		childBody, _, found, err := c.get(ctx, call.key, tenant)
		if err != nil || !found {
			msg := "template not found"
			if err != nil {
				msg = err.Error()
			}
			errs = append(errs, RenderError{TemplateKey: call.key, Message: msg})
			out.WriteString(Interpolate(ErrorPlaceholder, mergeVars(vars, map[string]interface{}{"key": call.key})))
			i = callEnd
			continue
		}

		merged := mergeVars(vars, call.args)
		rendered, childErrs := c.renderAt(ctx, childBody, merged, tenant, depth+1)
		rendered = Interpolate(rendered, merged)
		out.WriteString(rendered)
		errs = append(errs, childErrs...)
		i = callEnd
	}

	return out.String(), errs
}

func mergeVars(parent, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(parent)+len(override))
	for k, v := range parent {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

type renderCall struct {
	key  string
	args map[string]interface{}
}

// parseRenderCall attempts to parse an `xnovu_render('key', { ... })` call
// starting at body[start] (which must be "{{"). Returns the index just past
// the closing "}}" and the parsed call on success.
func parseRenderCall(body string, start int) (int, renderCall, bool) {
	n := len(body)
	p := start + 2
	p = skipSpace(body, p)

	const prefix = "xnovu_render("
	if !strings.HasPrefix(body[p:], prefix) {
		return 0, renderCall{}, false
	}
	p += len(prefix)
	p = skipSpace(body, p)

	key, p, ok := parseQuotedString(body, p)
	if !ok {
		return 0, renderCall{}, false
	}
	p = skipSpace(body, p)

	if p >= n || body[p] != ',' {
		return 0, renderCall{}, false
	}
	p++
	p = skipSpace(body, p)

	args, p, ok := parseObjectLiteral(body, p)
	if !ok {
		return 0, renderCall{}, false
	}
	p = skipSpace(body, p)

	if p >= n || body[p] != ')' {
		return 0, renderCall{}, false
	}
	p++
	p = skipSpace(body, p)

	if !strings.HasPrefix(body[p:], "}}") {
		return 0, renderCall{}, false
	}
	p += 2

	return p, renderCall{key: key, args: args}, true
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// parseQuotedString parses a single-quoted, double-quoted, or backtick-quoted
// string literal with no escaping (template keys/literals don't need it).
func parseQuotedString(s string, i int) (string, int, bool) {
	if i >= len(s) {
		return "", i, false
	}
	quote := s[i]
	if quote != '\'' && quote != '"' && quote != '`' {
		return "", i, false
	}
	start := i + 1
	j := start
	for j < len(s) && s[j] != quote {
		j++
	}
	if j >= len(s) {
		return "", i, false
	}
	return s[start:j], j + 1, true
}

// parseObjectLiteral parses a small JSON-like object literal: keys and
// string values may use double, single, or backtick quotes; numeric and
// boolean/null values are bare; values may themselves be nested objects or
// arrays, handled generically via parseJSONValue.
func parseObjectLiteral(s string, i int) (map[string]interface{}, int, bool) {
	if i >= len(s) || s[i] != '{' {
		return nil, i, false
	}
	i++
	i = skipSpace(s, i)
	out := make(map[string]interface{})

	if i < len(s) && s[i] == '}' {
		return out, i + 1, true
	}

	for {
		i = skipSpace(s, i)
		var key string
		var ok bool
		if i < len(s) && (s[i] == '\'' || s[i] == '"' || s[i] == '`') {
			key, i, ok = parseQuotedString(s, i)
		} else {
			start := i
			for i < len(s) && isIdentChar(s[i]) {
				i++
			}
			key = s[start:i]
			ok = key != ""
		}
		if !ok {
			return nil, i, false
		}
		i = skipSpace(s, i)
		if i >= len(s) || s[i] != ':' {
			return nil, i, false
		}
		i++
		i = skipSpace(s, i)

		val, next, ok := parseJSONValue(s, i)
		if !ok {
			return nil, i, false
		}
		out[key] = val
		i = skipSpace(s, next)

		if i < len(s) && s[i] == ',' {
			i++
			continue
		}
		if i < len(s) && s[i] == '}' {
			return out, i + 1, true
		}
		return nil, i, false
	}
}

func parseJSONValue(s string, i int) (interface{}, int, bool) {
	i = skipSpace(s, i)
	if i >= len(s) {
		return nil, i, false
	}
	switch {
	case s[i] == '\'' || s[i] == '"' || s[i] == '`':
		str, next, ok := parseQuotedString(s, i)
		return str, next, ok
	case s[i] == '{':
		return parseObjectLiteral(s, i)
	case s[i] == '[':
		return parseArrayLiteral(s, i)
	case strings.HasPrefix(s[i:], "true"):
		return true, i + 4, true
	case strings.HasPrefix(s[i:], "false"):
		return false, i + 5, true
	case strings.HasPrefix(s[i:], "null"):
		return nil, i + 4, true
	default:
		start := i
		for i < len(s) && (isIdentChar(s[i]) || s[i] == '-' || s[i] == '.' || s[i] == '+') {
			i++
		}
		if i == start {
			return nil, i, false
		}
		return s[start:i], i, true // numeric literal kept as its raw text form
	}
}

func parseArrayLiteral(s string, i int) ([]interface{}, int, bool) {
	if i >= len(s) || s[i] != '[' {
		return nil, i, false
	}
	i++
	i = skipSpace(s, i)
	var out []interface{}
	if i < len(s) && s[i] == ']' {
		return out, i + 1, true
	}
	for {
		val, next, ok := parseJSONValue(s, i)
		if !ok {
			return nil, i, false
		}
		out = append(out, val)
		i = skipSpace(s, next)
		if i < len(s) && s[i] == ',' {
			i++
			continue
		}
		if i < len(s) && s[i] == ']' {
			return out, i + 1, true
		}
		return nil, i, false
	}
}
