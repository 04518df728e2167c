// Package compiler turns a flat expression token stream into a typed,
// escaping-aware expression tree and evaluates that tree at render time.
package compiler

// Expr is the interface implemented by all expression nodes.
type Expr interface {
	expr()
	Line() int
}

// Literal is a string, number or boolean constant.
type Literal struct {
	Value any // string, float64 or bool
	line  int
}

func (l *Literal) expr()     {}
func (l *Literal) Line() int { return l.line }

// Path is a dotted identifier path resolved with the two-scope
// existence-guarded fallback: the rendering context first, the bare
// scope (locals and globals) second. Resolution never fails; a missing
// or nil result renders as empty output.
type Path struct {
	Segments []string
	line     int
}

func (p *Path) expr()     {}
func (p *Path) Line() int { return p.line }

// Attr dereferences a single attribute on a non-path target, such as
// `list[0].name`.
type Attr struct {
	Target Expr
	Name   string
	line   int
}

func (a *Attr) expr()     {}
func (a *Attr) Line() int { return a.line }

// Index is a bracket subscript on a target expression.
type Index struct {
	Target Expr
	Key    Expr
	line   int
}

func (i *Index) expr()     {}
func (i *Index) Line() int { return i.line }

// ArrayLit is a bracketed array literal.
type ArrayLit struct {
	Items []Expr
	line  int
}

func (a *ArrayLit) expr()     {}
func (a *ArrayLit) Line() int { return a.line }

// ObjectEntry is one key:value pair of an object literal.
type ObjectEntry struct {
	Key   string
	Value Expr
}

// ObjectLit is a braced object literal. Entry order is preserved
// through to iteration.
type ObjectLit struct {
	Entries []ObjectEntry
	line    int
}

func (o *ObjectLit) expr()     {}
func (o *ObjectLit) Line() int { return o.line }

// FilterCall applies a named filter. Args[0] is the piped value, the
// rest are the explicit arguments.
type FilterCall struct {
	Name string
	Args []Expr
	line int
}

func (f *FilterCall) expr()     {}
func (f *FilterCall) Line() int { return f.line }

// FuncCall invokes a bare identifier as a function. The callee
// resolves at render time against the context first, the bare scope
// second, and degrades to a no-op when neither holds a callable.
type FuncCall struct {
	Name string
	Args []Expr
	line int
}

func (f *FuncCall) expr()     {}
func (f *FuncCall) Line() int { return f.line }

// MethodCall invokes Name on the object that the dotted prefix
// resolves to.
type MethodCall struct {
	Target Expr // prefix path
	Name   string
	Args   []Expr
	line   int
}

func (m *MethodCall) expr()     {}
func (m *MethodCall) Line() int { return m.line }

// BinOp is a binary arithmetic, comparison, membership or
// short-circuit logic operation. Operands fold left to right; the
// source language has no precedence levels.
type BinOp struct {
	Op    string // + - * / % == != < <= > >= && || in
	Left  Expr
	Right Expr
	line  int
}

func (b *BinOp) expr()     {}
func (b *BinOp) Line() int { return b.line }

// Not negates the truthiness of its operand.
type Not struct {
	Expr Expr
	line int
}

func (n *Not) expr()     {}
func (n *Not) Line() int { return n.line }
