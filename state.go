package vellum

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vellumtpl/vellum/compiler"
	"github.com/vellumtpl/vellum/parser"
)

const maxRecursion = 100

// State is the per-render evaluation state. It implements the
// expression evaluator's environment: the context root plus the bare
// scope chain of loop bindings, globals and functions.
type State struct {
	env    *Environment
	name   string
	ctx    any
	scope  map[string]any
	parent *State // include fallback chain, nil with `only`
	blocks map[string][]parser.Node
	out    *strings.Builder
	fuel   *fuelTracker
	depth  int
}

func newState(env *Environment, name string, ctx any) *State {
	s := &State{
		env:    env,
		name:   name,
		ctx:    ownedContext(ctx),
		scope:  make(map[string]any),
		blocks: make(map[string][]parser.Node),
		out:    &strings.Builder{},
	}
	if env.fuel > 0 {
		s.fuel = newFuelTracker(env.fuel)
	}
	return s
}

// ContextRoot returns the active rendering context.
func (s *State) ContextRoot() any {
	return s.ctx
}

// Lookup resolves a name in the bare scope: bindings of this state
// and any enclosing include states, then globals, then functions.
func (s *State) Lookup(name string) (any, bool) {
	for st := s; st != nil; st = st.parent {
		if v, ok := st.scope[name]; ok {
			return v, true
		}
		if m := st.ctxMap(); m != nil {
			if v, ok := m[name]; ok {
				return v, true
			}
		}
	}
	if v, ok := s.env.globals[name]; ok {
		return v, true
	}
	if f, ok := s.env.functions[name]; ok {
		return f, true
	}
	return nil, false
}

// Filter returns a filter by name.
func (s *State) Filter(name string) (compiler.Filter, bool) {
	return s.env.Filter(name)
}

// LoopState holds information about the current loop iteration.
type LoopState struct {
	Index     int  // 1-based index
	Index0    int  // 0-based index
	RevIndex  int  // reverse 1-based index
	RevIndex0 int  // reverse 0-based index
	First     bool // is first iteration
	Last      bool // is last iteration
	Length    int  // total length
	Key       any  // map key or element index
}

// ToMap converts the loop state to the value bound as `loop`.
func (l *LoopState) ToMap() map[string]any {
	return map[string]any{
		"index":     l.Index,
		"index0":    l.Index0,
		"revindex":  l.RevIndex,
		"revindex0": l.RevIndex0,
		"first":     l.First,
		"last":      l.Last,
		"length":    l.Length,
		"key":       l.Key,
	}
}

// shadowFrame remembers what the loop bindings displaced so the outer
// values reappear when the loop ends.
type shadowFrame struct {
	names   []string
	vals    []any
	present []bool
	inCtx   bool
}

// ctxMap returns the context root as a mutable map, or nil. Loop
// bindings shadow same-named context entries only when the context is
// a plain map.
func (s *State) ctxMap() map[string]any {
	m, _ := s.ctx.(map[string]any)
	return m
}

// ownedContext shallow-copies a map context. Loop bindings write into
// the state's context map, so the render must own it exclusively; the
// caller's map stays untouched and stays safe to share across
// concurrent renders.
func ownedContext(ctx any) any {
	m, ok := ctx.(map[string]any)
	if !ok {
		return ctx
	}
	owned := make(map[string]any, len(m))
	for k, v := range m {
		owned[k] = v
	}
	return owned
}

func (s *State) saveShadow(names ...string) *shadowFrame {
	f := &shadowFrame{names: names}
	if m := s.ctxMap(); m != nil {
		f.inCtx = true
		for _, name := range names {
			v, ok := m[name]
			f.vals = append(f.vals, v)
			f.present = append(f.present, ok)
		}
		return f
	}
	for _, name := range names {
		v, ok := s.scope[name]
		f.vals = append(f.vals, v)
		f.present = append(f.present, ok)
	}
	return f
}

func (s *State) restoreShadow(f *shadowFrame) {
	target := s.scope
	if f.inCtx {
		target = s.ctxMap()
	}
	for i, name := range f.names {
		if f.present[i] {
			target[name] = f.vals[i]
		} else {
			delete(target, name)
		}
	}
}

// bind sets a loop binding in whichever scope saveShadow captured.
func (s *State) bind(shadow *shadowFrame, name string, val any) {
	if shadow.inCtx {
		s.ctxMap()[name] = val
		return
	}
	s.scope[name] = val
}

// eval renders a whole template. A template whose first significant
// node is an extends marker renders through its inheritance chain
// instead of top to bottom.
func (s *State) eval(tmpl *parser.Template) (string, error) {
	if ext := extendsOf(tmpl.Nodes); ext != nil {
		if err := s.evalExtends(tmpl, ext); err != nil {
			return "", err
		}
		return s.out.String(), nil
	}
	for _, n := range tmpl.Nodes {
		if err := s.evalNode(n); err != nil {
			return "", err
		}
	}
	return s.out.String(), nil
}

// extendsOf returns the template's extends marker if it leads the
// node list. Whitespace-only text before it is tolerated.
func extendsOf(nodes []parser.Node) *parser.ExtendsNode {
	for _, n := range nodes {
		switch t := n.(type) {
		case *parser.Text:
			if strings.TrimSpace(t.Raw) != "" {
				return nil
			}
		case *parser.ExtendsNode:
			return t
		default:
			return nil
		}
	}
	return nil
}

func (s *State) evalNode(n parser.Node) error {
	if s.fuel != nil {
		if err := s.fuel.consume(1); err != nil {
			return err.WithName(s.name).WithLine(n.Line())
		}
	}

	switch t := n.(type) {
	case *parser.Text:
		s.out.WriteString(t.Raw)
		return nil

	case *parser.Output:
		val, err := compiler.Eval(t.Expr, s)
		if err != nil {
			return err
		}
		s.writeValue(val, t.Escape)
		return nil

	case *parser.IfNode:
		return s.evalIf(t)

	case *parser.ForNode:
		return s.evalFor(t)

	case *parser.IncludeNode:
		return s.evalInclude(t)

	case *parser.BlockNode:
		return s.evalBlock(t)

	case *parser.Fragment:
		for _, child := range t.Body {
			if err := s.evalNode(child); err != nil {
				return err
			}
		}
		return nil

	case *parser.ExtendsNode:
		return NewError(ErrSyntax, "extends must be the first tag in the template").
			WithName(s.name).WithLine(t.Line())
	}
	return NewError(ErrRender, fmt.Sprintf("unsupported node %T", n)).WithName(s.name)
}

func (s *State) evalIf(n *parser.IfNode) error {
	cond, err := compiler.Eval(n.Cond, s)
	if err != nil {
		return err
	}
	body := n.Else
	if compiler.Truthy(cond) {
		body = n.Then
	}
	for _, child := range body {
		if err := s.evalNode(child); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) evalFor(n *parser.ForNode) error {
	iter, err := compiler.Eval(n.Iter, s)
	if err != nil {
		return err
	}
	items := iterate(iter)
	if len(items) == 0 {
		return nil
	}

	s.depth++
	if s.depth > maxRecursion {
		return NewError(ErrRender, "recursion limit exceeded").WithName(s.name).WithLine(n.Line())
	}
	defer func() { s.depth-- }()

	names := []string{n.Val, "loop"}
	if n.Key != "" {
		names = append(names, n.Key)
	}
	shadow := s.saveShadow(names...)
	defer s.restoreShadow(shadow)

	for i, item := range items {
		loop := &LoopState{
			Index:     i + 1,
			Index0:    i,
			RevIndex:  len(items) - i,
			RevIndex0: len(items) - i - 1,
			First:     i == 0,
			Last:      i == len(items)-1,
			Length:    len(items),
			Key:       item.key,
		}
		s.bind(shadow, n.Val, item.val)
		s.bind(shadow, "loop", loop.ToMap())
		if n.Key != "" {
			s.bind(shadow, n.Key, item.key)
		}
		for _, child := range n.Body {
			if err := s.evalNode(child); err != nil {
				return err
			}
		}
	}
	return nil
}

type loopItem struct {
	key any
	val any
}

// iterate normalizes a value into an ordered item list. Ordered maps
// keep insertion order, plain maps iterate in sorted key order, and
// non-iterable values yield nothing.
func iterate(v any) []loopItem {
	switch t := v.(type) {
	case nil:
		return nil
	case *compiler.Dict:
		items := make([]loopItem, 0, t.Len())
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			items = append(items, loopItem{key: k, val: val})
		}
		return items
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]loopItem, 0, len(t))
		for _, k := range keys {
			items = append(items, loopItem{key: k, val: t[k]})
		}
		return items
	case string:
		items := make([]loopItem, 0, len(t))
		for i, r := range []rune(t) {
			items = append(items, loopItem{key: i, val: string(r)})
		}
		return items
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]loopItem, rv.Len())
		for i := range items {
			items[i] = loopItem{key: i, val: rv.Index(i).Interface()}
		}
		return items
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		byKey := make(map[string]any, rv.Len())
		for _, k := range rv.MapKeys() {
			ks := fmt.Sprint(k.Interface())
			keys = append(keys, ks)
			byKey[ks] = rv.MapIndex(k).Interface()
		}
		sort.Strings(keys)
		items := make([]loopItem, 0, len(keys))
		for _, k := range keys {
			items = append(items, loopItem{key: k, val: byKey[k]})
		}
		return items
	}
	return nil
}

func (s *State) evalInclude(n *parser.IncludeNode) error {
	fileVal, err := compiler.Eval(n.File, s)
	if err != nil {
		return err
	}
	name, ok := fileVal.(string)
	if !ok || name == "" {
		if n.IgnoreMissing {
			return nil
		}
		return NewError(ErrBadInclude, "include target did not resolve to a template name").
			WithName(s.name).WithLine(n.Line())
	}

	tmpl, err := s.env.getTemplate(name, n.From)
	if err != nil {
		if n.IgnoreMissing {
			s.env.log.WithField("template", name).Debug("ignoring missing include")
			return nil
		}
		return wrapErr(err, ErrTemplateNotFound, s.name)
	}

	s.depth++
	if s.depth > maxRecursion {
		return NewError(ErrRender, "recursion limit exceeded").WithName(s.name).WithLine(n.Line())
	}
	defer func() { s.depth-- }()

	ctx := s.ctx
	if n.With != nil {
		v, err := compiler.Eval(n.With, s)
		if err != nil {
			return err
		}
		// The with expression usually resolves to a map inside the
		// caller's data, which this render must not mutate.
		ctx = ownedContext(v)
	}

	child := &State{
		env:    s.env,
		name:   tmpl.compiled.name,
		ctx:    ctx,
		scope:  make(map[string]any),
		blocks: make(map[string][]parser.Node),
		out:    s.out,
		fuel:   s.fuel,
		depth:  s.depth,
	}
	if !n.Only {
		child.parent = s
	}
	_, err = child.eval(tmpl.compiled.ast)
	return err
}

func (s *State) evalExtends(tmpl *parser.Template, ext *parser.ExtendsNode) error {
	visited := map[string]bool{s.name: true}
	cur := tmpl

	for ext != nil {
		// Child-most override wins, so only record blocks the chain
		// has not claimed yet.
		for _, n := range cur.Nodes {
			if b, ok := n.(*parser.BlockNode); ok {
				if _, exists := s.blocks[b.Name]; !exists {
					s.blocks[b.Name] = b.Body
				}
			}
		}

		parent, err := s.env.getTemplate(ext.Path, ext.From)
		if err != nil {
			return wrapErr(err, ErrTemplateNotFound, s.name)
		}
		if visited[parent.compiled.name] {
			return NewError(ErrCircularExtends,
				fmt.Sprintf("template %q already appears in the inheritance chain", parent.compiled.name)).
				WithName(s.name).WithLine(ext.Line())
		}
		visited[parent.compiled.name] = true
		cur = parent.compiled.ast
		ext = extendsOf(cur.Nodes)
	}

	for _, n := range cur.Nodes {
		if err := s.evalNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) evalBlock(n *parser.BlockNode) error {
	body := n.Body
	if override, ok := s.blocks[n.Name]; ok {
		body = override
	}
	for _, child := range body {
		if err := s.evalNode(child); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) writeValue(v any, mode compiler.EscapeMode) {
	str := compiler.Stringify(v)
	switch mode {
	case compiler.EscapeHTML:
		str = escapeHTML(str)
	case compiler.EscapeJS:
		str = escapeJS(str)
	}
	s.out.WriteString(str)
}
