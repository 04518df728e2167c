package parser

import (
	"fmt"

	"github.com/vellumtpl/vellum/compiler"
	"github.com/vellumtpl/vellum/lexer"
)

// Tag is the protocol every control tag implements. Parse consumes the
// tag's argument token stream (optionally extending the expression
// grammar with token hooks) and validates nesting against the open
// block stack; Compile is a pure function of the collected frame that
// emits the tag's statement node once its body is complete.
type Tag interface {
	Name() string
	// RequiresEnd declares whether a matching end tag is mandatory.
	RequiresEnd() bool
	Parse(tp *TagParse) error
	Compile(tc *TagCompile) (Node, error)
}

// Frame is one in-progress tag on the open-block stack.
type Frame struct {
	Tag   Tag
	Name  string
	Line  int
	Args  []compiler.Expr
	State any
	// Children collects body nodes; Else collects them after a
	// nested else tag flips the frame.
	Children []Node
	Else     []Node
	inElse   bool

	childEscape *compiler.EscapeMode
	savedEscape compiler.EscapeMode
}

// BeginElse diverts subsequent body nodes into the else branch. Only
// the else tag calls this, after validating it is directly inside a
// conditional.
func (f *Frame) BeginElse() error {
	if f.inElse {
		return fmt.Errorf("duplicate else")
	}
	f.inElse = true
	return nil
}

// InElse reports whether the frame is collecting its else branch.
func (f *Frame) InElse() bool {
	return f.inElse
}

func (f *Frame) add(n Node) {
	if f.inElse {
		f.Else = append(f.Else, n)
	} else {
		f.Children = append(f.Children, n)
	}
}

// BlockStack matches opening tags to their closing counterparts. One
// stack exists per template compile; it must be empty when the source
// runs out.
type BlockStack struct {
	frames []*Frame
}

func (s *BlockStack) Push(f *Frame) {
	s.frames = append(s.frames, f)
}

func (s *BlockStack) Pop() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f
}

// Top returns the innermost open frame without popping it.
func (s *BlockStack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func (s *BlockStack) Len() int {
	return len(s.frames)
}

// Frames returns the open frames, outermost first. The slice is
// shared; treat it as read-only.
func (s *BlockStack) Frames() []*Frame {
	return s.frames
}

// TagParse carries everything a tag's parse phase may touch: the raw
// argument tokens, a fresh expression compiler session with its hook
// table, and the open-block stack.
type TagParse struct {
	TagName string
	Line    int
	File    string
	Tokens  []lexer.Token
	Blocks  *BlockStack

	frame *Frame
	c     *compiler.Compiler
}

// OnKind installs a per-token-kind hook consulted before the default
// expression grammar.
func (tp *TagParse) OnKind(kind lexer.Kind, hook compiler.Hook) {
	tp.c.OnKind(kind, hook)
}

// Run feeds the argument tokens through the hooks and the expression
// compiler.
func (tp *TagParse) Run() error {
	for _, tok := range tp.Tokens {
		if err := tp.c.Feed(tok); err != nil {
			return err
		}
	}
	return nil
}

// EndArg finalizes the expression built so far and appends it to the
// frame's argument list, resetting the session for the next one.
func (tp *TagParse) EndArg() error {
	e, err := tp.c.EndExpr()
	if err != nil {
		return err
	}
	tp.frame.Args = append(tp.frame.Args, e)
	return nil
}

// Pending reports whether the expression session holds unfinalized
// state, meaning tokens arrived after the last EndArg cut.
func (tp *TagParse) Pending() bool {
	return tp.c.Pending()
}

// NonWhitespace returns the argument tokens with whitespace dropped.
func (tp *TagParse) NonWhitespace() []lexer.Token {
	var out []lexer.Token
	for _, tok := range tp.Tokens {
		if tok.Kind != lexer.TokenWhitespace {
			out = append(out, tok)
		}
	}
	return out
}

// SetState stashes tag-specific parse artifacts on the frame for the
// compile phase.
func (tp *TagParse) SetState(state any) {
	tp.frame.State = state
}

// SetChildEscape overrides the compile-time escape default for the
// tag's body. The parser restores the previous default when the
// matching end tag pops the frame.
func (tp *TagParse) SetChildEscape(mode compiler.EscapeMode) {
	tp.frame.childEscape = &mode
}

// Errorf builds a syntax error naming the tag and line.
func (tp *TagParse) Errorf(format string, args ...any) error {
	return &compiler.Error{
		Message: fmt.Sprintf("%s: ", tp.TagName) + fmt.Sprintf(format, args...),
		Line:    tp.Line,
		Name:    tp.File,
	}
}

// TagCompile is the input of a tag's compile phase.
type TagCompile struct {
	Frame *Frame
	File  string
	// Enclosing is the chain of still-open outer frames, outermost
	// first, captured after this tag's own frame was popped.
	Enclosing []*Frame
}
