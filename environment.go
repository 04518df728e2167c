package vellum

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vellumtpl/vellum/compiler"
	"github.com/vellumtpl/vellum/parser"
)

// LoaderFunc is a function that loads template source by name.
type LoaderFunc func(name string) (string, error)

// EscapeFunc determines the escape default based on template name.
type EscapeFunc func(name string) compiler.EscapeMode

// Environment holds the configuration and templates.
type Environment struct {
	templates   map[string]*compiledTemplate
	templatesMu sync.RWMutex
	filters     map[string]compiler.Filter
	functions   map[string]any
	globals     map[string]any
	tags        map[string]parser.Tag
	loader      LoaderFunc
	escapeFunc  EscapeFunc
	fuel        uint64 // 0 means unlimited
	log         *logrus.Logger
}

type compiledTemplate struct {
	name   string
	source string
	ast    *parser.Template
}

// NewEnvironment creates a new environment with default settings:
// HTML escaping everywhere, the builtin tag set, and the default
// filters and functions registered.
func NewEnvironment() *Environment {
	env := EmptyEnvironment()
	registerDefaultFilters(env)
	registerDefaultFunctions(env)
	return env
}

// EmptyEnvironment creates an environment with the builtin tags but
// no filters, functions or globals.
func EmptyEnvironment() *Environment {
	return &Environment{
		templates: make(map[string]*compiledTemplate),
		filters:   make(map[string]compiler.Filter),
		functions: make(map[string]any),
		globals:   make(map[string]any),
		tags:      parser.DefaultTags(),
		escapeFunc: func(name string) compiler.EscapeMode {
			return compiler.EscapeHTML
		},
		log: logrus.StandardLogger(),
	}
}

// AddTemplate adds a template from source.
func (e *Environment) AddTemplate(name, source string) error {
	ast, err := parser.Parse(source, name, e.parserConfig(name))
	if err != nil {
		return wrapErr(err, ErrSyntax, name)
	}
	e.log.WithFields(logrus.Fields{"template": name, "nodes": len(ast.Nodes)}).
		Debug("compiled template")

	e.templatesMu.Lock()
	e.templates[name] = &compiledTemplate{name: name, source: source, ast: ast}
	e.templatesMu.Unlock()
	return nil
}

// CompileFile reads, compiles and registers a template from disk. The
// template is registered under the cleaned path.
func (e *Environment) CompileFile(path string) (*Template, error) {
	name := filepath.Clean(path)
	src, err := os.ReadFile(name)
	if err != nil {
		return nil, NewError(ErrTemplateNotFound, name)
	}
	if err := e.AddTemplate(name, string(src)); err != nil {
		return nil, err
	}
	return e.GetTemplate(name)
}

// GetTemplate retrieves a template by name, consulting the loader for
// names not yet registered.
func (e *Environment) GetTemplate(name string) (*Template, error) {
	return e.getTemplate(name, "")
}

// getTemplate resolves name, trying it relative to the requesting
// template's directory first when from is set.
func (e *Environment) getTemplate(name, from string) (*Template, error) {
	candidates := []string{name}
	if from != "" {
		candidates = []string{filepath.Join(filepath.Dir(from), name), name}
	}

	for _, cand := range candidates {
		e.templatesMu.RLock()
		compiled, ok := e.templates[cand]
		e.templatesMu.RUnlock()
		if ok {
			return &Template{env: e, compiled: compiled}, nil
		}
	}

	if e.loader != nil {
		for _, cand := range candidates {
			source, err := e.loader(cand)
			if err != nil {
				continue
			}
			if err := e.AddTemplate(cand, source); err != nil {
				return nil, err
			}
			e.templatesMu.RLock()
			compiled := e.templates[cand]
			e.templatesMu.RUnlock()
			return &Template{env: e, compiled: compiled}, nil
		}
	}

	return nil, NewError(ErrTemplateNotFound, name)
}

// TemplateFromString creates a template from source without storing it.
func (e *Environment) TemplateFromString(source string) (*Template, error) {
	return e.TemplateFromNamedString("<string>", source)
}

// TemplateFromNamedString creates a named template from source without
// storing it.
func (e *Environment) TemplateFromNamedString(name, source string) (*Template, error) {
	ast, err := parser.Parse(source, name, e.parserConfig(name))
	if err != nil {
		return nil, wrapErr(err, ErrSyntax, name)
	}
	return &Template{
		env:      e,
		compiled: &compiledTemplate{name: name, source: source, ast: ast},
	}, nil
}

// DirLoader returns a loader that reads templates from root,
// refusing paths that escape it.
func DirLoader(root string) LoaderFunc {
	return func(name string) (string, error) {
		full := filepath.Join(root, filepath.Clean(name))
		rel, err := filepath.Rel(root, full)
		if err != nil || rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
			return "", NewError(ErrTemplateNotFound, name)
		}
		src, err := os.ReadFile(full)
		if err != nil {
			return "", NewError(ErrTemplateNotFound, name)
		}
		return string(src), nil
	}
}

// SetLoader sets the template loader function.
func (e *Environment) SetLoader(loader LoaderFunc) {
	e.loader = loader
}

// SetEscapeFunc sets the per-template escape default callback.
func (e *Environment) SetEscapeFunc(f EscapeFunc) {
	e.escapeFunc = f
}

// SetFuel bounds the number of evaluation steps a single render may
// spend. Zero means unlimited.
func (e *Environment) SetFuel(fuel uint64) {
	e.fuel = fuel
}

// SetLogger replaces the environment's logger.
func (e *Environment) SetLogger(log *logrus.Logger) {
	e.log = log
}

// AddFilter registers a filter.
func (e *Environment) AddFilter(name string, f compiler.Filter) {
	e.filters[name] = f
}

// AddFunction registers a function callable from templates. Any Go
// function works; arguments are converted reflectively and a trailing
// error return is surfaced as a render error.
func (e *Environment) AddFunction(name string, fn any) {
	e.functions[name] = fn
}

// AddGlobal registers a global variable.
func (e *Environment) AddGlobal(name string, v any) {
	e.globals[name] = v
}

// AddTag registers a control tag.
func (e *Environment) AddTag(t parser.Tag) {
	e.tags[t.Name()] = t
}

// Filter returns a filter by name. This satisfies the expression
// compiler's filter table interface.
func (e *Environment) Filter(name string) (compiler.Filter, bool) {
	f, ok := e.filters[name]
	return f, ok
}

func (e *Environment) parserConfig(name string) parser.Config {
	return parser.Config{
		Filters: e,
		Tags:    e.tags,
		Escape:  e.escapeFunc(name),
	}
}

// Template represents a compiled template bound to its environment.
type Template struct {
	env      *Environment
	compiled *compiledTemplate
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.compiled.name
}

// Source returns the original template source.
func (t *Template) Source() string {
	return t.compiled.source
}

// Render evaluates the template against ctx. The context may be a
// map, a struct, or anything else the dotted-path resolver can walk;
// nil renders with an empty context.
func (t *Template) Render(ctx any) (string, error) {
	s := newState(t.env, t.compiled.name, ctx)
	out, err := s.eval(t.compiled.ast)
	if err != nil {
		return "", wrapErr(err, ErrRender, t.compiled.name)
	}
	t.env.log.WithFields(s.debugFields()).Debug("render finished")
	return out, nil
}
