// Package vellum provides a token-driven template engine for Go.
//
// Templates mix literal text with output expressions and control
// tags:
//
//	Variables: {{ user.name }}
//	Filters:   {{ title|upper }}
//	Tags:      {% if admin %}...{% else %}...{% endif %}
//	Comments:  {# not rendered #}
//
// # Quick Start
//
//	env := vellum.NewEnvironment()
//	env.AddTemplate("hello", "Hello {{ name }}!")
//	tmpl, _ := env.GetTemplate("hello")
//	result, _ := tmpl.Render(map[string]any{"name": "World"})
//	fmt.Println(result) // Output: Hello World!
//
// # Resolution
//
// Dotted paths resolve against the rendering context first and fall
// back to loop bindings, globals and registered functions. Resolution
// never fails: a path that leads nowhere renders as the empty string,
// so templates stay robust against missing data.
//
// # Escaping
//
// Output is HTML-escaped by default. Filters registered as safe
// (markdown, safe, raw) and any function or method call switch the
// expression to raw output; the autoescape tag changes the default
// for a region of the template:
//
//	{% autoescape "js" %}var name = "{{ name }}";{% endautoescape %}
//
// # Extending the engine
//
// Filters are plain functions taking the piped value and optional
// arguments:
//
//	env.AddFilter("shout", compiler.Filter{
//	    Apply: func(val any, args ...any) (any, error) {
//	        return strings.ToUpper(compiler.Stringify(val)) + "!", nil
//	    },
//	})
//
// Custom control tags implement the parser.Tag interface: a parse
// phase that consumes the tag's argument tokens, optionally hooking
// individual token kinds before the expression grammar sees them, and
// a compile phase that emits a statement node once the tag's body is
// complete.
//
// # Inheritance and partials
//
// Templates compose through {% include %}, with optional scoped
// context, and through {% extends %} with {% block %} overrides:
//
//	{% extends "base.html" %}
//	{% block body %}<h1>Hello</h1>{% endblock %}
package vellum

// Version is the library version.
const Version = "0.1.0"

// RenderString compiles source against a fresh default environment
// and renders it with ctx. Convenience for one-off templates; reuse
// an Environment when rendering repeatedly.
func RenderString(source string, ctx any) (string, error) {
	tmpl, err := NewEnvironment().TemplateFromString(source)
	if err != nil {
		return "", err
	}
	return tmpl.Render(ctx)
}
