package vellum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/yuin/goldmark"

	"github.com/vellumtpl/vellum/compiler"
)

// Builtin filters. Each one follows the filter contract: the piped
// value arrives first, call arguments after it, and returning an
// error aborts the render.

func filterUpper(val any, args ...any) (any, error) {
	return strings.ToUpper(compiler.Stringify(val)), nil
}

func filterLower(val any, args ...any) (any, error) {
	return strings.ToLower(compiler.Stringify(val)), nil
}

func filterCapitalize(val any, args ...any) (any, error) {
	s := compiler.Stringify(val)
	if s == "" {
		return s, nil
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r), nil
}

func filterTitle(val any, args ...any) (any, error) {
	s := strings.ToLower(compiler.Stringify(val))
	var b strings.Builder
	startWord := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			startWord = true
			b.WriteRune(r)
			continue
		}
		if startWord {
			b.WriteRune(unicode.ToUpper(r))
			startWord = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

func filterTrim(val any, args ...any) (any, error) {
	return strings.TrimSpace(compiler.Stringify(val)), nil
}

func filterLength(val any, args ...any) (any, error) {
	switch t := val.(type) {
	case nil:
		return 0, nil
	case string:
		return len([]rune(t)), nil
	case *compiler.Dict:
		return t.Len(), nil
	case map[string]any:
		return len(t), nil
	}
	return len(iterate(val)), nil
}

func filterJoin(val any, args ...any) (any, error) {
	sep := ""
	if len(args) > 0 {
		sep = compiler.Stringify(args[0])
	}
	items := iterate(val)
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = compiler.Stringify(item.val)
	}
	return strings.Join(parts, sep), nil
}

func filterFirst(val any, args ...any) (any, error) {
	items := iterate(val)
	if len(items) == 0 {
		return nil, nil
	}
	return items[0].val, nil
}

func filterLast(val any, args ...any) (any, error) {
	items := iterate(val)
	if len(items) == 0 {
		return nil, nil
	}
	return items[len(items)-1].val, nil
}

func filterReverse(val any, args ...any) (any, error) {
	if s, ok := val.(string); ok {
		r := []rune(s)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r), nil
	}
	items := iterate(val)
	out := make([]any, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item.val
	}
	return out, nil
}

func filterSort(val any, args ...any) (any, error) {
	items := iterate(val)
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item.val
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := compiler.ToFloat(out[i])
		b, bok := compiler.ToFloat(out[j])
		if aok && bok {
			return a < b
		}
		return compiler.Stringify(out[i]) < compiler.Stringify(out[j])
	})
	return out, nil
}

func filterDefault(val any, args ...any) (any, error) {
	if len(args) == 0 {
		return val, nil
	}
	if val == nil || compiler.Stringify(val) == "" {
		return args[0], nil
	}
	return val, nil
}

func filterJSON(val any, args ...any) (any, error) {
	out, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("json filter: %w", err)
	}
	return string(out), nil
}

func filterEscape(val any, args ...any) (any, error) {
	s := compiler.Stringify(val)
	if len(args) > 0 && compiler.Stringify(args[0]) == "js" {
		return escapeJS(s), nil
	}
	return escapeHTML(s), nil
}

func filterSafe(val any, args ...any) (any, error) {
	return val, nil
}

func filterURLEncode(val any, args ...any) (any, error) {
	return url.QueryEscape(compiler.Stringify(val)), nil
}

func filterReplace(val any, args ...any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("replace filter needs a search and a replacement argument")
	}
	s := compiler.Stringify(val)
	old := compiler.Stringify(args[0])
	repl := compiler.Stringify(args[1])
	return strings.ReplaceAll(s, old, repl), nil
}

// filterDate formats a time value with a Go layout string. Numbers
// are treated as Unix timestamps.
func filterDate(val any, args ...any) (any, error) {
	layout := time.RFC3339
	if len(args) > 0 {
		layout = compiler.Stringify(args[0])
	}
	switch t := val.(type) {
	case time.Time:
		return t.Format(layout), nil
	case *time.Time:
		return t.Format(layout), nil
	}
	if n, ok := compiler.ToFloat(val); ok {
		return time.Unix(int64(n), 0).UTC().Format(layout), nil
	}
	return nil, fmt.Errorf("date filter: cannot format %T", val)
}

// filterMarkdown renders a markdown string to HTML. The result is
// already markup, so the filter disables output escaping.
func filterMarkdown(val any, args ...any) (any, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(compiler.Stringify(val)), &buf); err != nil {
		return nil, fmt.Errorf("markdown filter: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
