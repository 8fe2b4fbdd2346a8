package template

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Channel identifies a rendering target (mirrors catalog.Channel without
// importing it, keeping this package dependency-free of the catalog layer).
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelInApp Channel = "IN_APP"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelChat  Channel = "CHAT"
)

// MaxEmailBodyBytes is the maximum rendered email body size (§4.5).
const MaxEmailBodyBytes = 100 * 1024

// MaxSMSChars is the SMS truncation limit (§4.5).
const MaxSMSChars = 160

// Rendered is the fully rendered, channel-specific artifact.
type Rendered struct {
	Channel Channel
	Subject string // EMAIL, PUSH (title)
	Body    string
	Errors  []RenderError
}

var subjectLine = regexp.MustCompile(`(?i)^Subject:\s*(.+?)\r?\n`)

// RenderEmail renders body (and, if non-empty, a distinct subjectTemplate)
// against vars via cache. When subjectTemplate is empty, the subject is
// extracted from the first "Subject: ..." line of the rendered body.
func (c *Cache) RenderEmail(ctx context.Context, body, subjectTemplate string, vars map[string]interface{}, tenant string, subjectPrefix string) (Rendered, error) {
	rendered, errs := c.renderAndInterpolate(ctx, body, vars, tenant)

	subject := ""
	if subjectTemplate != "" {
		subject, _ = c.renderAndInterpolate(ctx, subjectTemplate, vars, tenant)
	} else if m := subjectLine.FindStringSubmatchIndex(rendered); m != nil {
		subject = rendered[m[2]:m[3]]
		rendered = rendered[:m[0]] + rendered[m[1]:]
	}
	if subjectPrefix != "" {
		subject = subjectPrefix + subject
	}

	if len(rendered) > MaxEmailBodyBytes {
		rendered = rendered[:MaxEmailBodyBytes]
	}
	if strings.Contains(strings.ToLower(rendered), "<script") {
		return Rendered{}, fmt.Errorf("rendered email body contains a <script> element")
	}

	return Rendered{Channel: ChannelEmail, Subject: subject, Body: rendered, Errors: errs}, nil
}

// RenderInApp runs the rendered body through the restricted allow-list
// sanitizer.
func (c *Cache) RenderInApp(ctx context.Context, body string, vars map[string]interface{}, tenant string) Rendered {
	rendered, errs := c.renderAndInterpolate(ctx, body, vars, tenant)
	return Rendered{Channel: ChannelInApp, Body: SanitizeHTML(rendered), Errors: errs}
}

var htmlTag = regexp.MustCompile(`(?s)<[^>]*>`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// RenderSMS strips HTML, collapses whitespace, and truncates to
// MaxSMSChars, appending an ellipsis when truncated.
func (c *Cache) RenderSMS(ctx context.Context, body string, vars map[string]interface{}, tenant string) Rendered {
	rendered, errs := c.renderAndInterpolate(ctx, body, vars, tenant)
	rendered = htmlTag.ReplaceAllString(rendered, "")
	rendered = decodeCommonEntities(rendered)
	rendered = strings.TrimSpace(whitespaceRun.ReplaceAllString(rendered, " "))

	if len(rendered) > MaxSMSChars {
		rendered = strings.TrimSpace(rendered[:MaxSMSChars-len("…")]) + "…"
	}
	return Rendered{Channel: ChannelSMS, Body: rendered, Errors: errs}
}

// RenderPush produces {title, body} from the subject and body templates.
func (c *Cache) RenderPush(ctx context.Context, bodyTemplate, titleTemplate string, vars map[string]interface{}, tenant string) Rendered {
	title, titleErrs := c.renderAndInterpolate(ctx, titleTemplate, vars, tenant)
	body, bodyErrs := c.renderAndInterpolate(ctx, bodyTemplate, vars, tenant)
	return Rendered{Channel: ChannelPush, Subject: title, Body: body, Errors: append(titleErrs, bodyErrs...)}
}

// RenderChat markdown-renders the body then sanitizes it as IN_APP.
func (c *Cache) RenderChat(ctx context.Context, body string, vars map[string]interface{}, tenant string) Rendered {
	rendered, errs := c.renderAndInterpolate(ctx, body, vars, tenant)
	return Rendered{Channel: ChannelChat, Body: SanitizeHTML(markdownToHTML(rendered)), Errors: errs}
}

func (c *Cache) renderAndInterpolate(ctx context.Context, body string, vars map[string]interface{}, tenant string) (string, []RenderError) {
	if body == "" {
		return "", nil
	}
	rendered, errs := c.Render(ctx, body, vars, tenant)
	return Interpolate(rendered, vars), errs
}

var (
	mdBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic = regexp.MustCompile(`\*(.+?)\*`)
	mdLink   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// markdownToHTML applies a minimal bold/italic/link markdown conversion —
// CHAT bodies are short, plain operator-authored strings, not full
// documents, so a small regex pass covers the cases the catalog's chat
// templates actually use.
func markdownToHTML(s string) string {
	s = mdLink.ReplaceAllString(s, `<a href="$2">$1</a>`)
	s = mdBold.ReplaceAllString(s, `<strong>$1</strong>`)
	s = mdItalic.ReplaceAllString(s, `<em>$1</em>`)
	return s
}
