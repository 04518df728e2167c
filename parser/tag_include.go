package parser

import (
	"github.com/vellumtpl/vellum/compiler"
	"github.com/vellumtpl/vellum/lexer"
)

// includePhase tracks which clause of the include grammar the parse
// is inside.
type includePhase int

const (
	phFile includePhase = iota // compiling the file reference
	phWith                     // compiling the with expression
	phTail                     // after only / ignore missing modifiers
)

type includeState struct {
	only          bool
	ignoreMissing bool
}

// includeTag implements
// `{% include <file> [with <expr> [only]] [ignore missing] %}`.
// The clause keywords are ordinary identifier tokens; a hook claims
// them by position and everything else falls through to the
// expression compiler.
type includeTag struct{}

func (includeTag) Name() string      { return "include" }
func (includeTag) RequiresEnd() bool { return false }

func (t includeTag) Parse(tp *TagParse) error {
	phase := phFile
	sawWith := false
	ignorePending := false
	st := &includeState{}

	// cut finalizes the clause currently being compiled.
	cut := func() error {
		if phase == phTail {
			return nil
		}
		if err := tp.EndArg(); err != nil {
			return err
		}
		return nil
	}

	tp.OnKind(lexer.TokenVar, func(tok lexer.Token) (bool, error) {
		switch tok.Value {
		case "with":
			if sawWith {
				return false, tp.Errorf("duplicate `with`")
			}
			if phase != phFile || ignorePending {
				return false, tp.Errorf("`with` out of order")
			}
			if err := cut(); err != nil {
				return false, err
			}
			sawWith = true
			phase = phWith
			return true, nil
		case "only":
			if phase != phWith {
				return false, tp.Errorf("`only` must directly follow the with expression")
			}
			if err := cut(); err != nil {
				return false, err
			}
			st.only = true
			phase = phTail
			return true, nil
		case "ignore":
			if ignorePending || st.ignoreMissing {
				return false, tp.Errorf("duplicate `ignore missing`")
			}
			if err := cut(); err != nil {
				return false, err
			}
			phase = phTail
			ignorePending = true
			return true, nil
		case "missing":
			if !ignorePending {
				return false, tp.Errorf("`missing` without a preceding `ignore`")
			}
			ignorePending = false
			st.ignoreMissing = true
			return true, nil
		}
		return false, nil
	})

	if err := tp.Run(); err != nil {
		return err
	}
	if ignorePending {
		return tp.Errorf("`ignore` must be followed by `missing`")
	}
	if err := cut(); err != nil {
		return err
	}
	if phase == phTail && tp.Pending() {
		return tp.Errorf("unexpected argument after modifiers")
	}

	if len(tp.frame.Args) == 0 {
		return tp.Errorf("missing file reference")
	}
	switch file := tp.frame.Args[0].(type) {
	case *compiler.Literal:
		if _, ok := file.Value.(string); !ok {
			return tp.Errorf("file reference must be a string or a variable")
		}
	case *compiler.Path:
	default:
		return tp.Errorf("file reference must be a string or a variable")
	}

	tp.SetState(st)
	return nil
}

func (t includeTag) Compile(tc *TagCompile) (Node, error) {
	st := tc.Frame.State.(*includeState)
	n := &IncludeNode{
		File:          tc.Frame.Args[0],
		Only:          st.only,
		IgnoreMissing: st.ignoreMissing,
		From:          tc.File,
		line:          tc.Frame.Line,
	}
	if len(tc.Frame.Args) > 1 {
		n.With = tc.Frame.Args[1]
	}
	return n, nil
}
