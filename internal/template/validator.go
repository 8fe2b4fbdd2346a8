package template

import (
	"fmt"
	"strings"
)

// ValidationResult is the Validator's output (§4.5): {valid, errors[]}.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks body for structural problems the renderer can't recover
// from at render time: unbalanced `{{`/`}}`, empty `{{ }}`, malformed
// xnovu_render call bodies, and (when knownTemplates is non-nil) references
// to templates that don't exist. channel-specific rules are layered on by
// the caller after this structural pass.
func Validate(body string, knownTemplates map[string]bool) ValidationResult {
	var errs []string

	if opens, closes := strings.Count(body, "{{"), strings.Count(body, "}}"); opens != closes {
		errs = append(errs, fmt.Sprintf("unbalanced {{ }}: %d open, %d close", opens, closes))
	}

	i := 0
	for i < len(body) {
		start := strings.Index(body[i:], "{{")
		if start < 0 {
			break
		}
		start += i
		end := strings.Index(body[start:], "}}")
		if end < 0 {
			break
		}
		end += start

		expr := strings.TrimSpace(body[start+2 : end])
		if expr == "" {
			errs = append(errs, fmt.Sprintf("empty expression at offset %d", start))
		} else if looksLikeRenderCall(expr) {
			if _, call, ok := parseRenderCall(body, start); ok {
				if knownTemplates != nil && !knownTemplates[call.key] {
					errs = append(errs, fmt.Sprintf("unknown referenced template %q", call.key))
				}
			} else {
				errs = append(errs, fmt.Sprintf("malformed xnovu_render call at offset %d", start))
			}
		}
		i = end + 2
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateChannel layers channel-specific rules on top of Validate's
// structural pass (§4.5's per-channel validation).
func ValidateChannel(channel Channel, rendered Rendered) ValidationResult {
	var errs []string
	switch channel {
	case ChannelEmail:
		if strings.Contains(strings.ToLower(rendered.Body), "<script") {
			errs = append(errs, "email body contains <script>")
		}
		if len(rendered.Body) > MaxEmailBodyBytes {
			errs = append(errs, "email body exceeds max size")
		}
	case ChannelSMS:
		if len(rendered.Body) > MaxSMSChars {
			errs = append(errs, "sms body exceeds max length")
		}
	case ChannelPush:
		if rendered.Subject == "" && rendered.Body == "" {
			errs = append(errs, "push notification requires title or body")
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
