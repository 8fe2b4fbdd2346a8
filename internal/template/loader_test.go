package template

import (
	"context"
	"testing"
)

type fakeSource struct {
	templates map[string]struct{ body, subject string }
}

func (f *fakeSource) LoadTemplate(ctx context.Context, key, tenant string) (string, string, bool, error) {
	t, ok := f.templates[key]
	if !ok {
		return "", "", false, nil
	}
	return t.body, t.subject, true, nil
}

func TestCacheRenderSimpleRecursion(t *testing.T) {
	src := &fakeSource{templates: map[string]struct{ body, subject string }{
		"footer": {body: "Regards, {{ sender }}"},
	}}
	cache := NewCache(src)

	body := "Hello {{ name }}\n{{ xnovu_render('footer', {sender: 'Ops'}) }}"
	rendered, errs := cache.Render(context.Background(), body, map[string]interface{}{"name": "Ada"}, "t1")
	rendered = Interpolate(rendered, map[string]interface{}{"name": "Ada"})

	if len(errs) != 0 {
		t.Fatalf("Render() errors = %v", errs)
	}
	want := "Hello Ada\nRegards, Ops"
	if rendered != want {
		t.Errorf("Render() = %q, want %q", rendered, want)
	}
}

func TestCacheRenderMissingTemplateProducesPlaceholder(t *testing.T) {
	cache := NewCache(&fakeSource{templates: map[string]struct{ body, subject string }{}})

	rendered, errs := cache.Render(context.Background(), "{{ xnovu_render('missing', {}) }}", nil, "t1")
	if len(errs) != 1 {
		t.Fatalf("expected 1 render error, got %d: %v", len(errs), errs)
	}
	if rendered == "" {
		t.Error("expected a non-empty error placeholder")
	}
}

func TestCacheRenderCycleTerminatesAtDepthCap(t *testing.T) {
	src := &fakeSource{templates: map[string]struct{ body, subject string }{
		"self": {body: "{{ xnovu_render('self', {}) }}"},
	}}
	cache := NewCache(src)

	rendered, errs := cache.Render(context.Background(), "{{ xnovu_render('self', {}) }}", nil, "t1")
	if len(errs) == 0 {
		t.Fatal("expected a depth-exceeded render error for a self-referential template")
	}
	if rendered == "" {
		t.Error("expected rendering to terminate with a placeholder, not hang")
	}
}

func TestCacheTTLAndClear(t *testing.T) {
	src := &fakeSource{templates: map[string]struct{ body, subject string }{
		"greeting": {body: "hi"},
	}}
	cache := NewCache(src)
	ctx := context.Background()

	if _, _, found, err := cache.get(ctx, "greeting", "t1"); err != nil || !found {
		t.Fatalf("get() = found=%v err=%v", found, err)
	}

	cache.ClearCache()
	if len(cache.entries) != 0 {
		t.Error("ClearCache() should empty the cache")
	}
}

func TestParseRenderCallNestedArgs(t *testing.T) {
	body := `{{ xnovu_render("tmpl", {user: {name: "Ada", tags: ["a", "b"]}, n: 3}) }}`
	_, call, ok := parseRenderCall(body, 0)
	if !ok {
		t.Fatal("parseRenderCall() failed to parse nested args")
	}
	if call.key != "tmpl" {
		t.Errorf("key = %q, want tmpl", call.key)
	}
	user, ok := call.args["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("args[user] = %#v, want map", call.args["user"])
	}
	if user["name"] != "Ada" {
		t.Errorf("args[user][name] = %v, want Ada", user["name"])
	}
	tags, ok := user["tags"].([]interface{})
	if !ok || len(tags) != 2 {
		t.Errorf("args[user][tags] = %#v, want 2-element slice", user["tags"])
	}
}
