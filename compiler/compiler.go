package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vellumtpl/vellum/lexer"
)

// EscapeMode selects how an emitted expression's output is sanitized.
type EscapeMode int

const (
	EscapeNone EscapeMode = iota
	EscapeHTML
	EscapeJS
)

// FilterFunc transforms a piped value. The first argument is the value
// being filtered, the rest are the explicit filter arguments.
type FilterFunc func(val any, args ...any) (any, error)

// Filter is a registered filter. A Safe filter declares its output
// pre-sanitized, which permanently disables auto-escaping for any
// expression it appears in.
type Filter struct {
	Apply FilterFunc
	Safe  bool
}

// Filters resolves filter names. Lookup happens at compile time so an
// unknown filter is a syntax error, not a render failure.
type Filters interface {
	Filter(name string) (Filter, bool)
}

// Error is a structural parse error attributed to a line and template.
type Error struct {
	Message string
	Line    int
	Name    string
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s (at %s line %d)", e.Message, e.Name, e.Line)
	}
	return fmt.Sprintf("%s (line %d)", e.Message, e.Line)
}

// Hook is a per-token-kind handler a tag installs to extend the
// expression grammar for its argument list. Returning consumed=false
// falls through to the default handling.
type Hook func(tok lexer.Token) (consumed bool, err error)

type frameKind int

const (
	frameRoot frameKind = iota
	frameParen
	frameIndex
	frameArray
	frameObject
	frameCall
	frameFilter
)

func (k frameKind) String() string {
	switch k {
	case frameParen:
		return "parenthesis"
	case frameIndex, frameArray:
		return "bracket"
	case frameObject:
		return "object literal"
	case frameCall:
		return "call"
	case frameFilter:
		return "filter"
	default:
		return "expression"
	}
}

// frame is one open construct. Its cur slot is the filter-insertion
// point for that nesting level: a filter token always wraps exactly
// the sub-expression completed there.
type frame struct {
	kind   frameKind
	line   int
	name   string // call or filter name
	target Expr   // index target or piped filter value
	items  []Expr // completed comma-separated items
	keys   []string
	values []Expr
	onVal  bool // object literal: a colon was seen, cur is the value
	left   Expr
	op     string
	not    bool
	cur    Expr
}

// Compiler is a single-expression compile session. A fresh session is
// created per expression; nothing is shared between compiles.
type Compiler struct {
	filters   Filters
	escape    EscapeMode
	escapeOff bool
	name      string
	line      int
	frames    []*frame
	hooks     map[lexer.Kind]Hook
	prev      *lexer.Token // previous non-whitespace token
}

// New creates a compile session for an expression starting at line in
// the named template.
func New(filters Filters, escape EscapeMode, line int, name string) *Compiler {
	return &Compiler{
		filters: filters,
		escape:  escape,
		name:    name,
		line:    line,
		frames:  []*frame{{kind: frameRoot, line: line}},
	}
}

// Compile runs a whole token stream through a fresh session.
func Compile(tokens []lexer.Token, filters Filters, escape EscapeMode, line int, name string) (Expr, EscapeMode, error) {
	c := New(filters, escape, line, name)
	for _, tok := range tokens {
		if err := c.Feed(tok); err != nil {
			return nil, EscapeNone, err
		}
	}
	return c.Finish()
}

// OnKind installs a token hook. The dispatch table belongs to this
// session only.
func (c *Compiler) OnKind(kind lexer.Kind, hook Hook) {
	if c.hooks == nil {
		c.hooks = make(map[lexer.Kind]Hook)
	}
	c.hooks[kind] = hook
}

// Prev returns the previous non-whitespace token seen by the session.
func (c *Compiler) Prev() *lexer.Token {
	return c.prev
}

func (c *Compiler) errf(format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...), Line: c.line, Name: c.name}
}

func (c *Compiler) top() *frame {
	return c.frames[len(c.frames)-1]
}

func (c *Compiler) push(f *frame) {
	c.frames = append(c.frames, f)
}

// pop removes the top frame and hands its finished expression to the
// parent's operand slot. The root frame is never popped; a closing
// token with nothing open is a structural error caught by the callers.
func (c *Compiler) pop(result Expr) error {
	c.frames = c.frames[:len(c.frames)-1]
	return c.operand(result)
}

// Feed processes one token.
func (c *Compiler) Feed(tok lexer.Token) error {
	if tok.Line > c.line {
		c.line = tok.Line
	}
	if tok.Kind == lexer.TokenWhitespace {
		return nil
	}
	if hook, ok := c.hooks[tok.Kind]; ok {
		consumed, err := hook(tok)
		if err != nil {
			return err
		}
		if consumed {
			c.setPrev(tok)
			return nil
		}
	}
	err := c.feedDefault(tok)
	if err != nil {
		return err
	}
	c.setPrev(tok)
	return nil
}

func (c *Compiler) setPrev(tok lexer.Token) {
	t := tok
	c.prev = &t
}

func (c *Compiler) feedDefault(tok lexer.Token) error {
	switch tok.Kind {
	case lexer.TokenString:
		return c.operand(&Literal{Value: tok.Value, line: tok.Line})

	case lexer.TokenNumber:
		n, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return c.errf("invalid number literal %q", tok.Value)
		}
		return c.operand(&Literal{Value: n, line: tok.Line})

	case lexer.TokenBool:
		return c.operand(&Literal{Value: tok.Value == "true", line: tok.Line})

	case lexer.TokenVar:
		return c.operand(&Path{Segments: strings.Split(tok.Value, "."), line: tok.Line})

	case lexer.TokenDotKey:
		return c.dotKey(tok.Value)

	case lexer.TokenFilter:
		return c.openFilter(tok)

	case lexer.TokenFilterEmpty:
		return c.applyEmptyFilter(tok)

	case lexer.TokenFunction:
		if c.top().cur != nil {
			return c.errf("unexpected call %q", tok.Value)
		}
		c.push(&frame{kind: frameCall, name: tok.Value, line: tok.Line})
		return nil

	case lexer.TokenFunctionEmpty:
		c.escapeOff = true
		return c.operand(makeCall(tok.Value, nil, tok.Line))

	case lexer.TokenParenOpen:
		if c.top().cur != nil {
			return c.errf("unexpected `(`")
		}
		c.push(&frame{kind: frameParen, line: tok.Line})
		return nil

	case lexer.TokenParenClose:
		return c.closeParen()

	case lexer.TokenBracketOpen:
		return c.openBracket(tok)

	case lexer.TokenBracketClose:
		return c.closeBracket()

	case lexer.TokenBraceOpen:
		if c.top().cur != nil {
			return c.errf("unexpected `{`")
		}
		c.push(&frame{kind: frameObject, line: tok.Line})
		return nil

	case lexer.TokenBraceClose:
		return c.closeBrace()

	case lexer.TokenColon:
		return c.colon()

	case lexer.TokenComma:
		return c.comma()

	case lexer.TokenOperator, lexer.TokenLogic:
		return c.operator(tok.Value)

	case lexer.TokenNot:
		f := c.top()
		if f.cur != nil {
			return c.errf("unexpected `!`")
		}
		f.not = !f.not
		return nil
	}
	return c.errf("unexpected token %s", tok.Kind)
}

// operand places a completed sub-expression into the current frame.
func (c *Compiler) operand(e Expr) error {
	f := c.top()
	if f.cur != nil {
		return c.errf("unexpected expression, operator expected")
	}
	if f.not {
		e = &Not{Expr: e, line: e.Line()}
		f.not = false
	}
	f.cur = e
	return nil
}

func (c *Compiler) operator(op string) error {
	f := c.top()
	if f.cur == nil {
		return c.errf("operator `%s` with no left operand", op)
	}
	if f.op != "" {
		f.left = &BinOp{Op: f.op, Left: f.left, Right: f.cur, line: c.line}
	} else {
		f.left = f.cur
	}
	f.op = op
	f.cur = nil
	return nil
}

// finalize folds any pending binary operator and empties the frame's
// operand slot. A nil result means the level held no expression.
func (c *Compiler) finalize(f *frame) (Expr, error) {
	if f.not {
		return nil, c.errf("`!` with no operand")
	}
	if f.op != "" {
		if f.cur == nil {
			return nil, c.errf("operator `%s` with no right operand", f.op)
		}
		e := &BinOp{Op: f.op, Left: f.left, Right: f.cur, line: c.line}
		f.left, f.op, f.cur = nil, "", nil
		return e, nil
	}
	e := f.cur
	f.cur = nil
	return e, nil
}

func (c *Compiler) dotKey(name string) error {
	f := c.top()
	if f.cur == nil {
		return c.errf("unexpected `.%s`", name)
	}
	if p, ok := f.cur.(*Path); ok {
		p.Segments = append(p.Segments, name)
		return nil
	}
	f.cur = &Attr{Target: f.cur, Name: name, line: c.line}
	return nil
}

func (c *Compiler) openFilter(tok lexer.Token) error {
	flt, ok := c.filters.Filter(tok.Value)
	if !ok {
		return c.errf("unknown filter %q", tok.Value)
	}
	f := c.top()
	piped, err := c.finalize(f)
	if err != nil {
		return err
	}
	if piped == nil {
		return c.errf("filter %q applied to nothing", tok.Value)
	}
	if flt.Safe {
		c.escapeOff = true
	}
	c.push(&frame{kind: frameFilter, name: tok.Value, target: piped, line: tok.Line})
	return nil
}

func (c *Compiler) applyEmptyFilter(tok lexer.Token) error {
	flt, ok := c.filters.Filter(tok.Value)
	if !ok {
		return c.errf("unknown filter %q", tok.Value)
	}
	f := c.top()
	piped, err := c.finalize(f)
	if err != nil {
		return err
	}
	if piped == nil {
		return c.errf("filter %q applied to nothing", tok.Value)
	}
	if flt.Safe {
		c.escapeOff = true
	}
	f.cur = &FilterCall{Name: tok.Value, Args: []Expr{piped}, line: tok.Line}
	return nil
}

// openBracket decides between index access and an array literal from
// the previous non-whitespace token, as addressable things end in a
// path segment, a closing bracket or a closing paren.
func (c *Compiler) openBracket(tok lexer.Token) error {
	f := c.top()
	if c.prev != nil && f.cur != nil {
		switch c.prev.Kind {
		case lexer.TokenVar, lexer.TokenDotKey, lexer.TokenBracketClose,
			lexer.TokenParenClose, lexer.TokenFunctionEmpty:
			target := f.cur
			f.cur = nil
			c.push(&frame{kind: frameIndex, target: target, line: tok.Line})
			return nil
		}
	}
	if f.cur != nil {
		return c.errf("unexpected `[`")
	}
	c.push(&frame{kind: frameArray, line: tok.Line})
	return nil
}

func (c *Compiler) closeParen() error {
	f := c.top()
	switch f.kind {
	case frameParen:
		e, err := c.finalize(f)
		if err != nil {
			return err
		}
		if e == nil {
			return c.errf("empty parentheses")
		}
		return c.pop(e)
	case frameCall:
		e, err := c.finalize(f)
		if err != nil {
			return err
		}
		if e != nil {
			f.items = append(f.items, e)
		} else if len(f.items) > 0 {
			return c.errf("trailing comma in call to %q", f.name)
		}
		c.escapeOff = true
		return c.pop(makeCall(f.name, f.items, f.line))
	case frameFilter:
		e, err := c.finalize(f)
		if err != nil {
			return err
		}
		if e != nil {
			f.items = append(f.items, e)
		}
		args := append([]Expr{f.target}, f.items...)
		return c.pop(&FilterCall{Name: f.name, Args: args, line: f.line})
	}
	return c.errf("unexpected `)`, nothing is open")
}

func (c *Compiler) closeBracket() error {
	f := c.top()
	switch f.kind {
	case frameIndex:
		e, err := c.finalize(f)
		if err != nil {
			return err
		}
		if e == nil {
			return c.errf("empty index subscript")
		}
		return c.pop(&Index{Target: f.target, Key: e, line: f.line})
	case frameArray:
		e, err := c.finalize(f)
		if err != nil {
			return err
		}
		if e != nil {
			f.items = append(f.items, e)
		}
		return c.pop(&ArrayLit{Items: f.items, line: f.line})
	}
	return c.errf("unexpected `]`, no bracket is open")
}

func (c *Compiler) closeBrace() error {
	f := c.top()
	if f.kind != frameObject {
		return c.errf("unexpected `}`, no object literal is open")
	}
	e, err := c.finalize(f)
	if err != nil {
		return err
	}
	if e != nil {
		if !f.onVal {
			return c.errf("expected `:` in object literal")
		}
		f.values = append(f.values, e)
		f.onVal = false
	} else if f.onVal {
		return c.errf("object literal key %q has no value", f.keys[len(f.keys)-1])
	}
	if len(f.keys) != len(f.values) {
		return c.errf("unbalanced object literal")
	}
	entries := make([]ObjectEntry, len(f.keys))
	for i, k := range f.keys {
		entries[i] = ObjectEntry{Key: k, Value: f.values[i]}
	}
	return c.pop(&ObjectLit{Entries: entries, line: f.line})
}

func (c *Compiler) colon() error {
	f := c.top()
	if f.kind != frameObject || f.onVal {
		return c.errf("unexpected `:` outside an object literal")
	}
	key, err := c.finalize(f)
	if err != nil {
		return err
	}
	if key == nil {
		return c.errf("object literal `:` with no key")
	}
	name, ok := objectKey(key)
	if !ok {
		return c.errf("invalid object literal key")
	}
	f.keys = append(f.keys, name)
	f.onVal = true
	return nil
}

func (c *Compiler) comma() error {
	f := c.top()
	e, err := c.finalize(f)
	if err != nil {
		return err
	}
	switch f.kind {
	case frameCall, frameFilter, frameArray:
		if e == nil {
			return c.errf("unexpected `,`")
		}
		f.items = append(f.items, e)
		return nil
	case frameObject:
		if e == nil || !f.onVal {
			return c.errf("unexpected `,` in object literal")
		}
		f.values = append(f.values, e)
		f.onVal = false
		return nil
	}
	return c.errf("unexpected `,` outside an argument list or literal")
}

// EndExpr finalizes the expression built so far and resets the session
// for another one. Tags with multi-part argument lists use this to cut
// the stream into independent expressions.
func (c *Compiler) EndExpr() (Expr, error) {
	if len(c.frames) > 1 {
		return nil, c.errf("unclosed %s", c.top().kind)
	}
	e, err := c.finalize(c.top())
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, c.errf("empty expression")
	}
	c.prev = nil
	return e, nil
}

// Finish validates end-of-stream state and returns the compiled
// expression together with the escape mode the emitter must apply.
func (c *Compiler) Finish() (Expr, EscapeMode, error) {
	e, err := c.EndExpr()
	if err != nil {
		return nil, EscapeNone, err
	}
	mode := c.escape
	if c.escapeOff {
		mode = EscapeNone
	}
	return e, mode, nil
}

// Pending reports whether the session holds unfinalized expression
// state. Tags that forbid trailing arguments check this after the
// stream runs out.
func (c *Compiler) Pending() bool {
	if len(c.frames) > 1 {
		return true
	}
	f := c.top()
	return f.cur != nil || f.op != "" || f.not
}

// Escape returns the session's effective escape mode so far.
func (c *Compiler) Escape() EscapeMode {
	if c.escapeOff {
		return EscapeNone
	}
	return c.escape
}

func makeCall(name string, args []Expr, line int) Expr {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		prefix := &Path{Segments: strings.Split(name[:i], "."), line: line}
		return &MethodCall{Target: prefix, Name: name[i+1:], Args: args, line: line}
	}
	return &FuncCall{Name: name, Args: args, line: line}
}

func objectKey(e Expr) (string, bool) {
	switch k := e.(type) {
	case *Literal:
		switch v := k.Value.(type) {
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	case *Path:
		if len(k.Segments) == 1 {
			return k.Segments[0], true
		}
	}
	return "", false
}
