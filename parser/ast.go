// Package parser splits raw template source into literal, output and
// tag segments and drives the pluggable tag protocol that turns them
// into an executable node tree.
package parser

import "github.com/vellumtpl/vellum/compiler"

// Node is the interface implemented by all statement nodes.
type Node interface {
	node()
	Line() int
}

// Template is the root of a parsed template.
type Template struct {
	Name  string
	Nodes []Node
}

// Text outputs raw template text.
type Text struct {
	Raw  string
	line int
}

func (t *Text) node()     {}
func (t *Text) Line() int { return t.line }

// Output emits an expression result, escaped per the mode the
// expression compiler settled on.
type Output struct {
	Expr   compiler.Expr
	Escape compiler.EscapeMode
	line   int
}

func (o *Output) node()     {}
func (o *Output) Line() int { return o.line }

// ForNode is a compiled loop tag. Key is empty for the single-name
// form.
type ForNode struct {
	Key  string
	Val  string
	Iter compiler.Expr
	Body []Node
	line int
}

func (f *ForNode) node()     {}
func (f *ForNode) Line() int { return f.line }

// IfNode is a compiled conditional with an optional else branch.
type IfNode struct {
	Cond compiler.Expr
	Then []Node
	Else []Node
	line int
}

func (i *IfNode) node()     {}
func (i *IfNode) Line() int { return i.line }

// IncludeNode is a compiled partial-inclusion tag. From is the source
// file of the including template, used for relative resolution.
type IncludeNode struct {
	File          compiler.Expr
	With          compiler.Expr // nil without a with clause
	Only          bool
	IgnoreMissing bool
	From          string
	line          int
}

func (i *IncludeNode) node()     {}
func (i *IncludeNode) Line() int { return i.line }

// ExtendsNode names the parent template of an inheriting template.
type ExtendsNode struct {
	Path string
	From string
	line int
}

func (e *ExtendsNode) node()     {}
func (e *ExtendsNode) Line() int { return e.line }

// BlockNode is an overridable inheritance block.
type BlockNode struct {
	Name string
	Body []Node
	line int
}

func (b *BlockNode) node()     {}
func (b *BlockNode) Line() int { return b.line }

// Fragment groups nodes without any render semantics of its own. Tags
// whose effect is purely compile-time (autoescape) emit one.
type Fragment struct {
	Body []Node
	line int
}

func (f *Fragment) node()     {}
func (f *Fragment) Line() int { return f.line }
