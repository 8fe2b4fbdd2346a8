package template

import (
	"context"
	"strings"
	"testing"
)

func TestRenderEmailExtractsSubjectLine(t *testing.T) {
	cache := NewCache(&fakeSource{})
	body := "Subject: Welcome, {{ name }}!\nHello {{ name }}, thanks for joining."

	rendered, err := cache.RenderEmail(context.Background(), body, "", map[string]interface{}{"name": "Ada"}, "t1", "")
	if err != nil {
		t.Fatalf("RenderEmail() error = %v", err)
	}
	if rendered.Subject != "Welcome, Ada!" {
		t.Errorf("Subject = %q, want %q", rendered.Subject, "Welcome, Ada!")
	}
	if strings.Contains(rendered.Body, "Subject:") {
		t.Errorf("Body should have the subject line stripped, got %q", rendered.Body)
	}
}

func TestRenderEmailRejectsScript(t *testing.T) {
	cache := NewCache(&fakeSource{})
	_, err := cache.RenderEmail(context.Background(), "<script>evil()</script>", "", nil, "t1", "")
	if err == nil {
		t.Error("expected RenderEmail() to reject a body containing <script>")
	}
}

func TestRenderSMSTruncatesAtLimit(t *testing.T) {
	cache := NewCache(&fakeSource{})
	long := strings.Repeat("a", 200)
	rendered := cache.RenderSMS(context.Background(), long, nil, "t1")
	if len(rendered.Body) > MaxSMSChars {
		t.Errorf("RenderSMS() body length = %d, want <= %d", len(rendered.Body), MaxSMSChars)
	}
	if !strings.HasSuffix(rendered.Body, "…") {
		t.Errorf("RenderSMS() should end with an ellipsis when truncated, got %q", rendered.Body)
	}
}

func TestRenderPushProducesTitleAndBody(t *testing.T) {
	cache := NewCache(&fakeSource{})
	rendered := cache.RenderPush(context.Background(), "You have {{ count }} new messages", "New activity", map[string]interface{}{"count": float64(5)}, "t1")
	if rendered.Subject != "New activity" {
		t.Errorf("Subject = %q, want %q", rendered.Subject, "New activity")
	}
	if rendered.Body != "You have 5 new messages" {
		t.Errorf("Body = %q", rendered.Body)
	}
}

func TestRenderChatSanitizesMarkdown(t *testing.T) {
	cache := NewCache(&fakeSource{})
	rendered := cache.RenderChat(context.Background(), "**{{ name }}** joined <script>evil()</script>", map[string]interface{}{"name": "Ada"}, "t1")
	if strings.Contains(rendered.Body, "script") {
		t.Errorf("RenderChat() did not sanitize script tag: %q", rendered.Body)
	}
	if !strings.Contains(rendered.Body, "<strong>Ada</strong>") {
		t.Errorf("RenderChat() did not render bold markdown: %q", rendered.Body)
	}
}
