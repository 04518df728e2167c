package parser

import (
	"fmt"
	"strings"

	"github.com/vellumtpl/vellum/compiler"
	"github.com/vellumtpl/vellum/lexer"
)

// Config carries what the parser needs from the environment: the
// filter table for expression compilation, the tag registry, and the
// template's escape default.
type Config struct {
	Filters compiler.Filters
	Tags    map[string]Tag
	Escape  compiler.EscapeMode
}

// Parser walks raw template source once, handing each output
// expression and tag argument list to a fresh expression compiler
// session.
type Parser struct {
	src    string
	name   string
	pos    int
	line   int
	cfg    Config
	escape compiler.EscapeMode
	blocks *BlockStack
	root   []Node
}

// Parse compiles template source into a node tree.
func Parse(source, name string, cfg Config) (*Template, error) {
	p := &Parser{
		src:    source,
		name:   name,
		line:   1,
		cfg:    cfg,
		escape: cfg.Escape,
		blocks: &BlockStack{},
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	return &Template{Name: name, Nodes: p.root}, nil
}

func (p *Parser) errf(line int, format string, args ...any) error {
	return &compiler.Error{Message: fmt.Sprintf(format, args...), Line: line, Name: p.name}
}

func (p *Parser) run() error {
	for p.pos < len(p.src) {
		start := p.findMarker()
		if start < 0 {
			p.emitText(p.src[p.pos:])
			p.pos = len(p.src)
			break
		}
		if start > p.pos {
			p.emitText(p.src[p.pos:start])
			p.pos = start
		}
		var err error
		switch p.src[p.pos+1] {
		case '{':
			err = p.parseOutput()
		case '%':
			err = p.parseTag()
		case '#':
			err = p.parseComment()
		}
		if err != nil {
			return err
		}
	}

	if top := p.blocks.Top(); top != nil {
		return p.errf(top.Line, "unterminated tag %q, missing {%% end%s %%}", top.Name, top.Name)
	}
	return nil
}

// findMarker locates the next {{, {% or {# from the current position.
func (p *Parser) findMarker() int {
	for i := p.pos; i+1 < len(p.src); i++ {
		if p.src[i] != '{' {
			continue
		}
		switch p.src[i+1] {
		case '{', '%', '#':
			return i
		}
	}
	return -1
}

func (p *Parser) emitText(text string) {
	if text == "" {
		return
	}
	p.append(&Text{Raw: text, line: p.line})
	p.line += strings.Count(text, "\n")
}

func (p *Parser) append(n Node) {
	if top := p.blocks.Top(); top != nil {
		top.add(n)
		return
	}
	p.root = append(p.root, n)
}

// consumeUntil returns the text between the current marker and its
// closing delimiter, advancing position and line count past both.
// The scan skips over string literals so a close marker inside one,
// as in {{ "}}" }}, does not cut the expression short.
func (p *Parser) consumeUntil(close string, what string) (string, int, error) {
	line := p.line
	end := p.findClose(close)
	if end < 0 {
		return "", line, p.errf(line, "unclosed %s", what)
	}
	inner := p.src[p.pos+2 : p.pos+end]
	p.line += strings.Count(p.src[p.pos:p.pos+end+len(close)], "\n")
	p.pos += end + len(close)
	return inner, line, nil
}

// findClose locates the closing delimiter outside any quoted string,
// returning its offset from the current position or -1.
func (p *Parser) findClose(close string) int {
	var quote byte
	for i := p.pos + 2; i+len(close) <= len(p.src); i++ {
		c := p.src[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		default:
			if p.src[i:i+len(close)] == close {
				return i - p.pos
			}
		}
	}
	return -1
}

// parseComment scans raw: comment text is prose, where an apostrophe
// must not open a string.
func (p *Parser) parseComment() error {
	end := strings.Index(p.src[p.pos:], "#}")
	if end < 2 {
		return p.errf(p.line, "unclosed comment")
	}
	p.line += strings.Count(p.src[p.pos:p.pos+end+2], "\n")
	p.pos += end + 2
	return nil
}

func (p *Parser) parseOutput() error {
	inner, line, err := p.consumeUntil("}}", "output expression")
	if err != nil {
		return err
	}
	tokens, err := lexer.Tokenize(inner, line)
	if err != nil {
		return p.wrapLexErr(err)
	}
	expr, mode, err := compiler.Compile(tokens, p.cfg.Filters, p.escape, line, p.name)
	if err != nil {
		return err
	}
	p.append(&Output{Expr: expr, Escape: mode, line: line})
	return nil
}

func (p *Parser) parseTag() error {
	inner, line, err := p.consumeUntil("%}", "tag")
	if err != nil {
		return err
	}
	inner = strings.TrimSpace(inner)
	name := inner
	rest := ""
	if i := strings.IndexAny(inner, " \t\n\r"); i >= 0 {
		name, rest = inner[:i], inner[i+1:]
	}
	if name == "" {
		return p.errf(line, "missing tag name")
	}
	if strings.HasPrefix(name, "end") && len(name) > 3 {
		return p.parseEndTag(name, rest, line)
	}

	tag, ok := p.cfg.Tags[name]
	if !ok {
		return p.errf(line, "unknown tag %q", name)
	}

	tokens, err := lexer.Tokenize(rest, line)
	if err != nil {
		return p.wrapLexErr(err)
	}

	frame := &Frame{Tag: tag, Name: name, Line: line}
	tp := &TagParse{
		TagName: name,
		Line:    line,
		File:    p.name,
		Tokens:  tokens,
		Blocks:  p.blocks,
		frame:   frame,
		c:       compiler.New(p.cfg.Filters, p.escape, line, p.name),
	}
	if err := tag.Parse(tp); err != nil {
		return p.asSyntaxErr(err, name, line)
	}

	if tag.RequiresEnd() {
		p.blocks.Push(frame)
		if frame.childEscape != nil {
			frame.savedEscape = p.escape
			p.escape = *frame.childEscape
		}
		return nil
	}

	node, err := tag.Compile(&TagCompile{Frame: frame, File: p.name, Enclosing: p.blocks.Frames()})
	if err != nil {
		return p.asSyntaxErr(err, name, line)
	}
	if node != nil {
		p.append(node)
	}
	return nil
}

func (p *Parser) parseEndTag(name, rest string, line int) error {
	if strings.TrimSpace(rest) != "" {
		return p.errf(line, "%s takes no arguments", name)
	}
	want := name[len("end"):]
	frame := p.blocks.Top()
	if frame == nil {
		return p.errf(line, "unexpected {%% %s %%}, no tag is open", name)
	}
	if frame.Name != want {
		return p.errf(line, "unexpected {%% %s %%}, expected {%% end%s %%}", name, frame.Name)
	}

	p.blocks.Pop()
	if frame.childEscape != nil {
		p.escape = frame.savedEscape
	}

	node, err := frame.Tag.Compile(&TagCompile{Frame: frame, File: p.name, Enclosing: p.blocks.Frames()})
	if err != nil {
		return p.asSyntaxErr(err, frame.Name, line)
	}
	if node != nil {
		p.append(node)
	}
	return nil
}

func (p *Parser) wrapLexErr(err error) error {
	if le, ok := err.(*lexer.Error); ok {
		return &compiler.Error{Message: le.Message, Line: le.Line, Name: p.name}
	}
	return err
}

// asSyntaxErr keeps already-attributed parse errors as they are and
// wraps anything else with the tag name and line.
func (p *Parser) asSyntaxErr(err error, tag string, line int) error {
	if _, ok := err.(*compiler.Error); ok {
		return err
	}
	return &compiler.Error{
		Message: fmt.Sprintf("%s: %v", tag, err),
		Line:    line,
		Name:    p.name,
	}
}
