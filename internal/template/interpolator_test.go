package template

import "testing"

func TestInterpolate(t *testing.T) {
	vars := map[string]interface{}{
		"user": map[string]interface{}{
			"name": "Ada",
			"tags": []interface{}{"admin", "ops"},
		},
		"count": float64(3),
		"flag":  true,
		"empty": nil,
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"simple field", "Hello {{ user.name }}!", "Hello Ada!"},
		{"array index", "First tag: {{ user.tags[0] }}", "First tag: admin"},
		{"number", "Count: {{ count }}", "Count: 3"},
		{"bool", "Flag: {{ flag }}", "Flag: true"},
		{"null renders literal null", "Value: {{ empty }}", "Value: null"},
		{"missing path left as-is", "Missing: {{ user.missing }}", "Missing: {{ user.missing }}"},
		{"no expressions", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Interpolate(tt.body, vars); got != tt.want {
				t.Errorf("Interpolate(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestInterpolateLeavesRenderCallsAlone(t *testing.T) {
	body := "{{ xnovu_render('header', {name: 'Ada'}) }}"
	got := Interpolate(body, nil)
	if got != body {
		t.Errorf("Interpolate() should not touch xnovu_render calls, got %q", got)
	}
}
