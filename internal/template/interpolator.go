// Package template implements the Template Engine (§4.5): an Interpolator
// over `{{ path }}` expressions, a recursive `xnovu_render` loader with a
// depth/cycle guard, a short-TTL template cache, and per-channel renderers.
package template

import (
	"fmt"
	"strconv"
	"strings"
)

// Interpolate replaces every `{{ path }}` occurrence in body with the string
// form of the value at path in vars. Paths that don't resolve are left
// as-is, literally — a contract, not a bug, since a downstream render pass
// may resupply them.
func Interpolate(body string, vars map[string]interface{}) string {
	var out strings.Builder
	i := 0
	for i < len(body) {
		start := strings.Index(body[i:], "{{")
		if start < 0 {
			out.WriteString(body[i:])
			break
		}
		start += i
		out.WriteString(body[i:start])

		end := strings.Index(body[start:], "}}")
		if end < 0 {
			out.WriteString(body[start:])
			break
		}
		end += start

		expr := strings.TrimSpace(body[start+2 : end])
		if looksLikeRenderCall(expr) {
			// Not ours to interpolate; the recursive loader handles this.
			out.WriteString(body[start : end+2])
			i = end + 2
			continue
		}

		if val, ok := lookupPath(expr, vars); ok {
			out.WriteString(stringify(val))
		} else {
			out.WriteString(body[start : end+2])
		}
		i = end + 2
	}
	return out.String()
}

func looksLikeRenderCall(expr string) bool {
	return strings.HasPrefix(expr, "xnovu_render(")
}

// stringify renders a resolved value as its natural string form. nil
// renders as the literal "null", strings pass through unchanged, float64
// uses plain decimal notation without an exponent, fmt.Stringers use
// String(), and everything else uses fmt's %v.
func stringify(v interface{}) string {
	if v == nil {
		return "null"
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// lookupPath resolves IDENT ( '.' IDENT | '[' INT ']' )* against vars.
// The second return value is false when any segment is missing,
// signalling the caller to leave the original `{{ path }}` untouched.
func lookupPath(path string, vars map[string]interface{}) (interface{}, bool) {
	segs, ok := parsePath(path)
	if !ok || len(segs) == 0 {
		return nil, false
	}

	var cur interface{} = vars
	for _, seg := range segs {
		switch s := seg.(type) {
		case string:
			m, ok := cur.(map[string]interface{})
			if !ok {
				return nil, false
			}
			cur, ok = m[s]
			if !ok {
				return nil, false
			}
		case int:
			arr, ok := cur.([]interface{})
			if !ok || s < 0 || s >= len(arr) {
				return nil, false
			}
			cur = arr[s]
		}
	}
	return cur, true
}

// parsePath tokenizes IDENT ( '.' IDENT | '[' INT ']' )* into a slice of
// string (field name) or int (index) segments.
func parsePath(path string) ([]interface{}, bool) {
	var segs []interface{}
	i := 0
	n := len(path)

	readIdent := func() (string, bool) {
		start := i
		for i < n && isIdentChar(path[i]) {
			i++
		}
		if i == start {
			return "", false
		}
		return path[start:i], true
	}

	ident, ok := readIdent()
	if !ok {
		return nil, false
	}
	segs = append(segs, ident)

	for i < n {
		switch path[i] {
		case '.':
			i++
			next, ok := readIdent()
			if !ok {
				return nil, false
			}
			segs = append(segs, next)
		case '[':
			i++
			start := i
			for i < n && path[i] != ']' {
				i++
			}
			if i >= n {
				return nil, false
			}
			idx, err := strconv.Atoi(path[start:i])
			if err != nil {
				return nil, false
			}
			i++ // consume ']'
			segs = append(segs, idx)
		default:
			return nil, false
		}
	}
	return segs, true
}

func isIdentChar(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
