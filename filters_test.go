package vellum

import (
	"strings"
	"testing"
	"time"
)

func TestStringFilters(t *testing.T) {
	cases := []struct {
		src  string
		ctx  map[string]any
		want string
	}{
		{`{{ v|upper }}`, map[string]any{"v": "abc"}, "ABC"},
		{`{{ v|lower }}`, map[string]any{"v": "ABC"}, "abc"},
		{`{{ v|capitalize }}`, map[string]any{"v": "hello WORLD"}, "Hello world"},
		{`{{ v|title }}`, map[string]any{"v": "hello world"}, "Hello World"},
		{`{{ v|trim }}`, map[string]any{"v": "  x  "}, "x"},
		{`{{ v|replace("a", "o") }}`, map[string]any{"v": "banana"}, "bonono"},
		{`{{ v|url_encode }}`, map[string]any{"v": "a b&c"}, "a+b%26c"},
	}
	for _, tc := range cases {
		if got := render(t, tc.src, tc.ctx); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.src, tc.want, got)
		}
	}
}

func TestSequenceFilters(t *testing.T) {
	ctx := map[string]any{"items": []any{"b", "a", "c"}}
	cases := []struct {
		src  string
		want string
	}{
		{`{{ items|length }}`, "3"},
		{`{{ items|first }}`, "b"},
		{`{{ items|last }}`, "c"},
		{`{{ items|join("-") }}`, "b-a-c"},
		{`{{ items|sort|join }}`, "abc"},
		{`{{ items|reverse|join }}`, "cab"},
	}
	for _, tc := range cases {
		if got := render(t, tc.src, ctx); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.src, tc.want, got)
		}
	}
}

func TestLengthOfString(t *testing.T) {
	if got := render(t, `{{ v|length }}`, map[string]any{"v": "héllo"}); got != "5" {
		t.Errorf("expected rune length 5, got %q", got)
	}
}

func TestDefaultFilter(t *testing.T) {
	if got := render(t, `{{ v|default("fallback") }}`, map[string]any{}); got != "fallback" {
		t.Errorf("missing value: expected fallback, got %q", got)
	}
	if got := render(t, `{{ v|default("fallback") }}`, map[string]any{"v": "set"}); got != "set" {
		t.Errorf("present value: expected set, got %q", got)
	}
}

func TestJSONFilter(t *testing.T) {
	got := render(t, `{{ v|json|safe }}`, map[string]any{"v": map[string]any{"a": 1}})
	if got != `{"a":1}` {
		t.Errorf("expected JSON, got %q", got)
	}
}

func TestEscapeFilterIsSafe(t *testing.T) {
	// The filter escapes by itself; the output stage must not escape
	// a second time.
	got := render(t, `{{ v|escape }}`, map[string]any{"v": "<x>"})
	if got != "&lt;x&gt;" {
		t.Errorf("expected single escaping, got %q", got)
	}
}

func TestEscapeFilterJSMode(t *testing.T) {
	got := render(t, `{{ v|escape("js") }}`, map[string]any{"v": `a"b`})
	if got != `a\"b` {
		t.Errorf("expected JS escaping, got %q", got)
	}
}

func TestDateFilter(t *testing.T) {
	ts := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	got := render(t, `{{ v|date("2006-01-02") }}`, map[string]any{"v": ts})
	if got != "2026-08-31" {
		t.Errorf("expected 2026-08-31, got %q", got)
	}
}

func TestDateFilterUnixTimestamp(t *testing.T) {
	got := render(t, `{{ v|date("2006") }}`, map[string]any{"v": 0})
	if got != "1970" {
		t.Errorf("expected 1970, got %q", got)
	}
}

func TestMarkdownFilter(t *testing.T) {
	got := render(t, `{{ v|markdown }}`, map[string]any{"v": "# Title"})
	if !strings.Contains(got, "<h1>Title</h1>") {
		t.Errorf("expected an h1, got %q", got)
	}
	if strings.Contains(got, "&lt;") {
		t.Errorf("markdown output must not be escaped again: %q", got)
	}
}

func TestFilterChaining(t *testing.T) {
	got := render(t, `{{ v|trim|upper }}`, map[string]any{"v": " ok "})
	if got != "OK" {
		t.Errorf("expected OK, got %q", got)
	}
}

func TestFilterErrorAbortsRender(t *testing.T) {
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString(`{{ v|replace("a") }}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := tmpl.Render(map[string]any{"v": "x"}); err == nil {
		t.Fatal("expected the filter error to surface")
	}
}
