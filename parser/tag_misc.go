package parser

import (
	"github.com/vellumtpl/vellum/compiler"
	"github.com/vellumtpl/vellum/lexer"
)

// extendsTag implements `{% extends "parent.html" %}`. The renderer
// requires it to be the first node of the template.
type extendsTag struct{}

func (extendsTag) Name() string      { return "extends" }
func (extendsTag) RequiresEnd() bool { return false }

func (t extendsTag) Parse(tp *TagParse) error {
	args := tp.NonWhitespace()
	if len(args) != 1 || args[0].Kind != lexer.TokenString {
		return tp.Errorf("takes a single string argument")
	}
	tp.SetState(args[0].Value)
	return nil
}

func (t extendsTag) Compile(tc *TagCompile) (Node, error) {
	return &ExtendsNode{
		Path: tc.Frame.State.(string),
		From: tc.File,
		line: tc.Frame.Line,
	}, nil
}

// blockTag implements `{% block name %}...{% endblock %}`.
type blockTag struct{}

func (blockTag) Name() string      { return "block" }
func (blockTag) RequiresEnd() bool { return true }

func (t blockTag) Parse(tp *TagParse) error {
	args := tp.NonWhitespace()
	if len(args) != 1 || args[0].Kind != lexer.TokenVar {
		return tp.Errorf("takes a single name argument")
	}
	for _, enc := range tp.Blocks.Frames() {
		if enc.Name == "block" {
			return tp.Errorf("blocks cannot be nested")
		}
	}
	tp.SetState(args[0].Value)
	return nil
}

func (t blockTag) Compile(tc *TagCompile) (Node, error) {
	return &BlockNode{
		Name: tc.Frame.State.(string),
		Body: tc.Frame.Children,
		line: tc.Frame.Line,
	}, nil
}

// autoescapeTag sets the compile-time escape default for its body:
// `{% autoescape false %}`, `{% autoescape "js" %}`. The effect is
// entirely compile-time, so compiling emits a plain fragment.
type autoescapeTag struct{}

func (autoescapeTag) Name() string      { return "autoescape" }
func (autoescapeTag) RequiresEnd() bool { return true }

func (t autoescapeTag) Parse(tp *TagParse) error {
	args := tp.NonWhitespace()
	if len(args) != 1 {
		return tp.Errorf("takes a single argument")
	}
	var mode compiler.EscapeMode
	switch {
	case args[0].Kind == lexer.TokenBool && args[0].Value == "true":
		mode = compiler.EscapeHTML
	case args[0].Kind == lexer.TokenBool && args[0].Value == "false":
		mode = compiler.EscapeNone
	case args[0].Kind == lexer.TokenString && args[0].Value == "html":
		mode = compiler.EscapeHTML
	case args[0].Kind == lexer.TokenString && args[0].Value == "js":
		mode = compiler.EscapeJS
	default:
		return tp.Errorf("argument must be true, false, \"html\" or \"js\"")
	}
	tp.SetChildEscape(mode)
	return nil
}

func (t autoescapeTag) Compile(tc *TagCompile) (Node, error) {
	return &Fragment{Body: tc.Frame.Children, line: tc.Frame.Line}, nil
}

// DefaultTags returns the builtin tag registry. Callers may copy and
// extend it with their own tags before parsing.
func DefaultTags() map[string]Tag {
	return map[string]Tag{
		"for":        forTag{},
		"if":         ifTag{},
		"else":       elseTag{},
		"include":    includeTag{},
		"extends":    extendsTag{},
		"block":      blockTag{},
		"autoescape": autoescapeTag{},
	}
}
