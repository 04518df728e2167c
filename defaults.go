package vellum

import (
	"fmt"
	"time"

	"github.com/vellumtpl/vellum/compiler"
)

func registerDefaultFilters(env *Environment) {
	plain := func(name string, f compiler.FilterFunc) {
		env.AddFilter(name, compiler.Filter{Apply: f})
	}
	safe := func(name string, f compiler.FilterFunc) {
		env.AddFilter(name, compiler.Filter{Apply: f, Safe: true})
	}

	plain("upper", filterUpper)
	plain("lower", filterLower)
	plain("capitalize", filterCapitalize)
	plain("title", filterTitle)
	plain("trim", filterTrim)
	plain("length", filterLength)
	plain("join", filterJoin)
	plain("first", filterFirst)
	plain("last", filterLast)
	plain("reverse", filterReverse)
	plain("sort", filterSort)
	plain("default", filterDefault)
	plain("json", filterJSON)
	plain("url_encode", filterURLEncode)
	plain("replace", filterReplace)
	plain("date", filterDate)

	safe("escape", filterEscape)
	safe("safe", filterSafe)
	safe("raw", filterSafe)
	safe("markdown", filterMarkdown)
}

func registerDefaultFunctions(env *Environment) {
	env.AddFunction("range", fnRange)
	env.AddFunction("now", time.Now)
}

// fnRange mirrors the usual range(stop), range(start, stop) and
// range(start, stop, step) forms.
func fnRange(args ...float64) ([]any, error) {
	var start, stop, step float64 = 0, 0, 1
	switch len(args) {
	case 1:
		stop = args[0]
	case 2:
		start, stop = args[0], args[1]
	case 3:
		start, stop, step = args[0], args[1], args[2]
	default:
		return nil, fmt.Errorf("range takes 1 to 3 arguments")
	}
	if step == 0 {
		return nil, fmt.Errorf("range step cannot be zero")
	}
	var out []any
	if step > 0 {
		for v := start; v < stop; v += step {
			out = append(out, v)
		}
	} else {
		for v := start; v > stop; v += step {
			out = append(out, v)
		}
	}
	return out, nil
}
