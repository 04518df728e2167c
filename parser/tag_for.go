package parser

import (
	"strings"

	"github.com/vellumtpl/vellum/lexer"
)

// reservedNames may not be rebound by a loop.
var reservedNames = map[string]bool{
	"loop": true,
	"true": true, "false": true,
	"null": true, "none": true,
	"in": true, "not": true, "and": true, "or": true,
}

// forState is the loop tag's parse artifact.
type forState struct {
	key string
	val string
}

// forTag implements `{% for v in iterable %}` and
// `{% for k, v in iterable %}`.
type forTag struct{}

func (forTag) Name() string      { return "for" }
func (forTag) RequiresEnd() bool { return true }

func (t forTag) Parse(tp *TagParse) error {
	var names []string
	sawIn := false

	tp.OnKind(lexer.TokenVar, func(tok lexer.Token) (bool, error) {
		if sawIn {
			return false, nil
		}
		if len(names) == 2 {
			return false, tp.Errorf("too many loop variables")
		}
		if reservedNames[tok.Value] {
			return false, tp.Errorf("cannot bind reserved name %q", tok.Value)
		}
		if strings.Contains(tok.Value, ".") {
			return false, tp.Errorf("loop variable %q cannot be a path", tok.Value)
		}
		names = append(names, tok.Value)
		return true, nil
	})
	tp.OnKind(lexer.TokenNumber, func(tok lexer.Token) (bool, error) {
		if !sawIn {
			return false, tp.Errorf("loop variable cannot be a number")
		}
		return false, nil
	})
	tp.OnKind(lexer.TokenComma, func(tok lexer.Token) (bool, error) {
		if !sawIn {
			if len(names) == 0 {
				return false, tp.Errorf("unexpected `,` before loop variable")
			}
			return true, nil
		}
		return false, nil
	})
	tp.OnKind(lexer.TokenLogic, func(tok lexer.Token) (bool, error) {
		if !sawIn && tok.Value == "in" {
			if len(names) == 0 {
				return false, tp.Errorf("missing loop variable before `in`")
			}
			sawIn = true
			return true, nil
		}
		return false, nil
	})

	if err := tp.Run(); err != nil {
		return err
	}
	if !sawIn {
		return tp.Errorf("expected `in` followed by an iterable")
	}
	if err := tp.EndArg(); err != nil {
		return err
	}

	st := &forState{val: names[0]}
	if len(names) == 2 {
		st.key, st.val = names[0], names[1]
	}
	tp.SetState(st)
	return nil
}

func (t forTag) Compile(tc *TagCompile) (Node, error) {
	st := tc.Frame.State.(*forState)
	return &ForNode{
		Key:  st.key,
		Val:  st.val,
		Iter: tc.Frame.Args[0],
		Body: tc.Frame.Children,
		line: tc.Frame.Line,
	}, nil
}
