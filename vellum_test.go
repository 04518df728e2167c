package vellum

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func render(t *testing.T, src string, ctx any) string {
	t.Helper()
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	out, err := tmpl.Render(ctx)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	return out
}

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestBasicRender(t *testing.T) {
	got := render(t, "Hello {{ name }}!", map[string]any{"name": "World"})
	if got != "Hello World!" {
		t.Errorf("expected 'Hello World!', got %q", got)
	}
}

func TestRenderString(t *testing.T) {
	got, err := RenderString("{{ a }}+{{ b }}", map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "1+2" {
		t.Errorf("expected '1+2', got %q", got)
	}
}

func TestMissingVariableRendersEmpty(t *testing.T) {
	got := render(t, "[{{ ghost }}]", map[string]any{})
	if got != "[]" {
		t.Errorf("expected '[]', got %q", got)
	}
}

func TestMissingPathRendersEmpty(t *testing.T) {
	got := render(t, "[{{ a.b.c }}]", map[string]any{"a": map[string]any{}})
	if got != "[]" {
		t.Errorf("expected '[]', got %q", got)
	}
}

func TestDottedPath(t *testing.T) {
	got := render(t, "{{ a.b }}", map[string]any{"a": map[string]any{"b": "hi"}})
	if got != "hi" {
		t.Errorf("expected 'hi', got %q", got)
	}
}

func TestNilRendersEmpty(t *testing.T) {
	got := render(t, "[{{ x }}]", map[string]any{"x": nil})
	if got != "[]" {
		t.Errorf("expected '[]', got %q", got)
	}
}

func TestIfElse(t *testing.T) {
	src := "{% if ok %}A{% else %}B{% endif %}"
	if got := render(t, src, map[string]any{"ok": true}); got != "A" {
		t.Errorf("true branch: expected A, got %q", got)
	}
	if got := render(t, src, map[string]any{"ok": false}); got != "B" {
		t.Errorf("false branch: expected B, got %q", got)
	}
	if got := render(t, src, map[string]any{}); got != "B" {
		t.Errorf("missing condition: expected B, got %q", got)
	}
}

func TestIfWithoutElse(t *testing.T) {
	src := "{% if ok %}A{% endif %}"
	if got := render(t, src, map[string]any{}); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

func TestForLoop(t *testing.T) {
	got := render(t, "{% for item in items %}{{ item }}{% endfor %}",
		map[string]any{"items": []string{"a", "b", "c"}})
	if got != "abc" {
		t.Errorf("expected 'abc', got %q", got)
	}
}

func TestForLoopIndexes(t *testing.T) {
	got := render(t,
		"{% for item in items %}{{ loop.index }}:{{ loop.index0 }}:{{ loop.revindex }} {% endfor %}",
		map[string]any{"items": []int{10, 20, 30}})
	if got != "1:0:3 2:1:2 3:2:1 " {
		t.Errorf("unexpected loop bookkeeping: %q", got)
	}
}

func TestForLoopFirstLast(t *testing.T) {
	got := render(t,
		"{% for x in items %}{% if loop.first %}[{% endif %}{{ x }}{% if loop.last %}]{% else %},{% endif %}{% endfor %}",
		map[string]any{"items": []int{1, 2, 3}})
	if got != "[1,2,3]" {
		t.Errorf("expected '[1,2,3]', got %q", got)
	}
}

func TestForLoopReversedFilter(t *testing.T) {
	got := render(t,
		"{% for n in items|reverse %}({{ loop.index0 }},{{ n }}){% endfor %}",
		map[string]any{"items": []int{1, 2, 3}})
	if got != "(0,3)(1,2)(2,1)" {
		t.Errorf("expected '(0,3)(1,2)(2,1)', got %q", got)
	}
}

func TestEmptyLoopRendersNothing(t *testing.T) {
	got := render(t, "a{% for x in items %}X{% endfor %}b", map[string]any{"items": []int{}})
	if got != "ab" {
		t.Errorf("expected 'ab', got %q", got)
	}
	got = render(t, "a{% for x in items %}X{% endfor %}b", map[string]any{})
	if got != "ab" {
		t.Errorf("missing iterable: expected 'ab', got %q", got)
	}
}

func TestForLoopOverMapSortsKeys(t *testing.T) {
	got := render(t, "{% for k, v in m %}{{ k }}={{ v }};{% endfor %}",
		map[string]any{"m": map[string]any{"b": 2, "a": 1, "c": 3}})
	if got != "a=1;b=2;c=3;" {
		t.Errorf("expected sorted map keys, got %q", got)
	}
}

func TestForLoopKeyViaLoopBinding(t *testing.T) {
	got := render(t, "{% for v in m %}{{ loop.key }}:{{ v }} {% endfor %}",
		map[string]any{"m": map[string]any{"x": 1}})
	if got != "x:1 " {
		t.Errorf("expected 'x:1 ', got %q", got)
	}
}

func TestObjectLiteralLoopKeepsOrder(t *testing.T) {
	got := render(t, "{% for k, v in {one: 1, two: 2, three: 3} %}{{ k }},{% endfor %}", nil)
	if got != "one,two,three," {
		t.Errorf("expected insertion order, got %q", got)
	}
}

func TestForLoopOverString(t *testing.T) {
	got := render(t, "{% for c in word %}{{ c }}.{% endfor %}", map[string]any{"word": "abc"})
	if got != "a.b.c." {
		t.Errorf("expected 'a.b.c.', got %q", got)
	}
}

func TestNestedLoopShadowRestore(t *testing.T) {
	src := "{% for x in outer %}{% for x in inner %}{{ x }}{% endfor %}{{ x }}{% endfor %}"
	got := render(t, src, map[string]any{
		"outer": []string{"O1", "O2"},
		"inner": []string{"i"},
	})
	if got != "iO1iO2" {
		t.Errorf("expected the outer binding restored, got %q", got)
	}
}

func TestLoopShadowsContextEntry(t *testing.T) {
	src := "{% for x in items %}{{ x }}{% endfor %}{{ x }}"
	got := render(t, src, map[string]any{"x": "ctx", "items": []string{"a"}})
	if got != "actx" {
		t.Errorf("expected the context entry back after the loop, got %q", got)
	}
}

func TestLoopBindingShadowsLoopVar(t *testing.T) {
	src := "{% for a in outer %}{{ loop.index }}{% for b in inner %}{{ loop.index }}{% endfor %}{{ loop.index }}{% endfor %}"
	got := render(t, src, map[string]any{
		"outer": []int{0, 0},
		"inner": []int{0, 0, 0},
	})
	if got != "11231" + "21232" {
		t.Errorf("expected the outer loop state restored, got %q", got)
	}
}

func TestRenderDoesNotMutateCallerContext(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("partial.html", "{% for y in list %}{{ y }}{% endfor %}")
	tmpl, err := env.TemplateFromString(
		`{% for x in items %}{{ x }}{% include "partial.html" with sub %}{% endfor %}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	sub := map[string]any{"list": []int{1, 2}}
	ctx := map[string]any{"items": []string{"a", "b"}, "sub": sub}
	got, err := tmpl.Render(ctx)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "a12b12" {
		t.Errorf("expected 'a12b12', got %q", got)
	}

	for _, name := range []string{"x", "loop"} {
		if _, ok := ctx[name]; ok {
			t.Errorf("loop binding %q leaked into the caller's context map", name)
		}
	}
	for _, name := range []string{"y", "loop"} {
		if _, ok := sub[name]; ok {
			t.Errorf("include loop binding %q leaked into the with map", name)
		}
	}
}

func TestConcurrentRendersShareContext(t *testing.T) {
	env := NewEnvironment()
	tmpl, err := env.TemplateFromString("{% for x in items %}{{ x }}{% endfor %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	ctx := map[string]any{"items": []int{1, 2, 3}}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, err := tmpl.Render(ctx)
				if err != nil {
					errs <- err
					return
				}
				if got != "123" {
					errs <- fmt.Errorf("expected '123', got %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestHTMLEscapingByDefault(t *testing.T) {
	got := render(t, "{{ v }}", map[string]any{"v": `<b>&"</b>`})
	if got != "&lt;b&gt;&amp;&quot;&lt;/b&gt;" {
		t.Errorf("unexpected escaping: %q", got)
	}
}

func TestSafeFilterSkipsEscaping(t *testing.T) {
	got := render(t, "{{ v|safe }}", map[string]any{"v": "<b>"})
	if got != "<b>" {
		t.Errorf("expected raw output, got %q", got)
	}
}

func TestFunctionCallSkipsEscaping(t *testing.T) {
	env := NewEnvironment()
	env.AddFunction("markup", func() string { return "<hr>" })
	tmpl, err := env.TemplateFromString("{{ markup() }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	got, err := tmpl.Render(nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "<hr>" {
		t.Errorf("expected raw markup, got %q", got)
	}
}

func TestAutoescapeRegions(t *testing.T) {
	got := render(t, `{% autoescape false %}{{ v }}{% endautoescape %}|{{ v }}`,
		map[string]any{"v": "<x>"})
	if got != "<x>|&lt;x&gt;" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestAutoescapeJS(t *testing.T) {
	got := render(t, `{% autoescape "js" %}{{ v }}{% endautoescape %}`,
		map[string]any{"v": `a"b` + "\n"})
	if got != `a\"b\n` {
		t.Errorf("unexpected JS escaping: %q", got)
	}
}

func TestIncludeSharesContext(t *testing.T) {
	env := NewEnvironment()
	if err := env.AddTemplate("partial.html", "p:{{ name }}"); err != nil {
		t.Fatalf("add partial: %v", err)
	}
	if err := env.AddTemplate("main.html", `{% include "partial.html" %}`); err != nil {
		t.Fatalf("add main: %v", err)
	}
	tmpl, _ := env.GetTemplate("main.html")
	got, err := tmpl.Render(map[string]any{"name": "x"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "p:x" {
		t.Errorf("expected 'p:x', got %q", got)
	}
}

func TestIncludeWithScopedContext(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("partial.html", "{{ title }}")
	env.AddTemplate("main.html", `{% include "partial.html" with sub %}`)
	tmpl, _ := env.GetTemplate("main.html")
	got, err := tmpl.Render(map[string]any{"sub": map[string]any{"title": "T"}})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "T" {
		t.Errorf("expected 'T', got %q", got)
	}
}

func TestIncludeOnlyRestrictsScope(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("partial.html", "[{{ outerVar }}]")
	env.AddTemplate("with.html", `{% for outerVar in items %}{% include "partial.html" with sub %}{% endfor %}`)
	env.AddTemplate("only.html", `{% for outerVar in items %}{% include "partial.html" with sub only %}{% endfor %}`)

	ctx := map[string]any{
		"items": []string{"seen"},
		"sub":   map[string]any{},
	}

	tmpl, _ := env.GetTemplate("with.html")
	got, err := tmpl.Render(ctx)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "[seen]" {
		t.Errorf("without only: expected '[seen]', got %q", got)
	}

	tmpl, _ = env.GetTemplate("only.html")
	got, err = tmpl.Render(ctx)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "[]" {
		t.Errorf("with only: expected '[]', got %q", got)
	}
}

func TestIncludeMissingFails(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("main.html", `{% include "nope.html" %}`)
	tmpl, _ := env.GetTemplate("main.html")
	_, err := tmpl.Render(nil)
	if err == nil {
		t.Fatal("expected a missing template error")
	}
	e, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Kind != ErrTemplateNotFound {
		t.Errorf("expected ErrTemplateNotFound, got %v", e.Kind)
	}
}

func TestIncludeIgnoreMissing(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("main.html", `a{% include "nope.html" ignore missing %}b`)
	tmpl, _ := env.GetTemplate("main.html")
	got, err := tmpl.Render(nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "ab" {
		t.Errorf("expected 'ab', got %q", got)
	}
}

func TestIncludeVariableTarget(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("partial.html", "P")
	env.AddTemplate("main.html", `{% include target %}`)
	tmpl, _ := env.GetTemplate("main.html")
	got, err := tmpl.Render(map[string]any{"target": "partial.html"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "P" {
		t.Errorf("expected 'P', got %q", got)
	}
}

func TestExtendsBlockOverride(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("base.html", "H{% block body %}default{% endblock %}F")
	env.AddTemplate("page.html", `{% extends "base.html" %}{% block body %}override{% endblock %}`)
	tmpl, _ := env.GetTemplate("page.html")
	got, err := tmpl.Render(nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "HoverrideF" {
		t.Errorf("expected 'HoverrideF', got %q", got)
	}
}

func TestExtendsKeepsParentDefault(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("base.html", "{% block a %}A{% endblock %}{% block b %}B{% endblock %}")
	env.AddTemplate("page.html", `{% extends "base.html" %}{% block a %}X{% endblock %}`)
	tmpl, _ := env.GetTemplate("page.html")
	got, _ := tmpl.Render(nil)
	if got != "XB" {
		t.Errorf("expected 'XB', got %q", got)
	}
}

func TestExtendsChain(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("grand.html", "<{% block x %}G{% endblock %}>")
	env.AddTemplate("parent.html", `{% extends "grand.html" %}{% block x %}P{% endblock %}`)
	env.AddTemplate("child.html", `{% extends "parent.html" %}{% block x %}C{% endblock %}`)
	tmpl, _ := env.GetTemplate("child.html")
	got, err := tmpl.Render(nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "<C>" {
		t.Errorf("expected '<C>', got %q", got)
	}
}

func TestCircularExtends(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("a.html", `{% extends "b.html" %}`)
	env.AddTemplate("b.html", `{% extends "a.html" %}`)
	tmpl, _ := env.GetTemplate("a.html")
	_, err := tmpl.Render(nil)
	if err == nil {
		t.Fatal("expected a circular extends error")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != ErrCircularExtends {
		t.Errorf("expected ErrCircularExtends, got %v", err)
	}
}

func TestExtendsNotFirstFails(t *testing.T) {
	env := NewEnvironment()
	env.AddTemplate("base.html", "B")
	env.AddTemplate("bad.html", `text{% extends "base.html" %}`)
	tmpl, _ := env.GetTemplate("bad.html")
	if _, err := tmpl.Render(nil); err == nil {
		t.Fatal("expected an error for a late extends tag")
	}
}

func TestConditionOperators(t *testing.T) {
	cases := []struct {
		src  string
		ctx  map[string]any
		want string
	}{
		{"{% if a == b %}y{% endif %}", map[string]any{"a": 1, "b": 1}, "y"},
		{"{% if a != b %}y{% endif %}", map[string]any{"a": 1, "b": 2}, "y"},
		{"{% if a > b and a > c %}y{% endif %}", map[string]any{"a": 5, "b": 1, "c": 2}, "y"},
		{"{% if a or b %}y{% endif %}", map[string]any{"a": false, "b": true}, "y"},
		{"{% if not a %}y{% endif %}", map[string]any{"a": false}, "y"},
		{`{% if "x" in items %}y{% endif %}`, map[string]any{"items": []string{"x"}}, "y"},
	}
	for _, tc := range cases {
		if got := render(t, tc.src, tc.ctx); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.src, tc.want, got)
		}
	}
}

func TestGlobalsAndFunctions(t *testing.T) {
	env := NewEnvironment()
	env.AddGlobal("site", "Vellum")
	env.AddFunction("twice", func(s string) string { return s + s })
	tmpl, err := env.TemplateFromString("{{ site }} {{ twice(site) }}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	got, err := tmpl.Render(nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if got != "Vellum VellumVellum" {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestContextWinsOverGlobal(t *testing.T) {
	env := NewEnvironment()
	env.AddGlobal("name", "global")
	tmpl, _ := env.TemplateFromString("{{ name }}")
	got, _ := tmpl.Render(map[string]any{"name": "ctx"})
	if got != "ctx" {
		t.Errorf("expected 'ctx', got %q", got)
	}
}

func TestRangeFunction(t *testing.T) {
	got := render(t, "{% for n in range(3) %}{{ n }}{% endfor %}", nil)
	if got != "012" {
		t.Errorf("expected '012', got %q", got)
	}
}

func TestFuelLimit(t *testing.T) {
	env := NewEnvironment()
	env.SetFuel(10)
	tmpl, err := env.TemplateFromString("{% for n in range(100) %}{{ n }}{% endfor %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	_, err = tmpl.Render(nil)
	if err == nil {
		t.Fatal("expected an out of fuel error")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != ErrOutOfFuel {
		t.Errorf("expected ErrOutOfFuel, got %v", err)
	}
}

func TestStructContext(t *testing.T) {
	type User struct {
		Name  string
		Admin bool
	}
	got := render(t, "{{ user.name }}{% if user.admin %}!{% endif %}",
		map[string]any{"user": User{Name: "Ada", Admin: true}})
	if got != "Ada!" {
		t.Errorf("expected 'Ada!', got %q", got)
	}
}

func TestMethodCallOnContextValue(t *testing.T) {
	got := render(t, `{{ word.repeat(2) }}`, map[string]any{
		"word": map[string]any{
			"repeat": func(n float64) string { return strings.Repeat("ab", int(n)) },
		},
	})
	if got != "abab" {
		t.Errorf("expected 'abab', got %q", got)
	}
}

func TestSyntaxErrorSurfacesFromAddTemplate(t *testing.T) {
	env := NewEnvironment()
	err := env.AddTemplate("bad.html", "{% if %}{% endif %}")
	if err == nil {
		t.Fatal("expected a syntax error")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != ErrSyntax {
		t.Errorf("expected ErrSyntax, got %v", err)
	}
}
