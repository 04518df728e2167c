package compiler

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// Env is the runtime environment an expression evaluates against.
type Env interface {
	// ContextRoot returns the active rendering context.
	ContextRoot() any
	// Lookup resolves a name in the bare scope: locally bound
	// variables first, then globals and registered functions.
	Lookup(name string) (any, bool)
	Filters
}

// Eval walks the expression tree. Value resolution never fails; only
// filter application and explicit render-time failures surface errors.
func Eval(e Expr, env Env) (any, error) {
	switch n := e.(type) {
	case *Literal:
		return n.Value, nil

	case *Path:
		return evalPath(n.Segments, env), nil

	case *Attr:
		target, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		v, _ := access(target, n.Name)
		return v, nil

	case *Index:
		target, err := Eval(n.Target, env)
		if err != nil {
			return nil, err
		}
		key, err := Eval(n.Key, env)
		if err != nil {
			return nil, err
		}
		return index(target, key), nil

	case *ArrayLit:
		items := make([]any, len(n.Items))
		for i, item := range n.Items {
			v, err := Eval(item, env)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil

	case *ObjectLit:
		d := NewDict()
		for _, entry := range n.Entries {
			v, err := Eval(entry.Value, env)
			if err != nil {
				return nil, err
			}
			d.Set(entry.Key, v)
		}
		return d, nil

	case *FilterCall:
		flt, ok := env.Filter(n.Name)
		if !ok {
			return nil, &Error{Message: fmt.Sprintf("unknown filter %q", n.Name), Line: n.Line()}
		}
		args := make([]any, len(n.Args))
		for i, arg := range n.Args {
			v, err := Eval(arg, env)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return flt.Apply(args[0], args[1:]...)

	case *FuncCall:
		return evalFuncCall(n, env)

	case *MethodCall:
		return evalMethodCall(n, env)

	case *BinOp:
		return evalBinOp(n, env)

	case *Not:
		v, err := Eval(n.Expr, env)
		if err != nil {
			return nil, err
		}
		return !Truthy(v), nil
	}
	return nil, fmt.Errorf("unsupported expression node %T", e)
}

// evalPath performs the two-scope guarded resolution: the context root
// is preferred when the full path exists under it, otherwise the bare
// scope candidate is tried. Neither candidate can raise.
func evalPath(segments []string, env Env) any {
	if v, ok := resolveFrom(env.ContextRoot(), segments); ok {
		return v
	}
	if root, ok := env.Lookup(segments[0]); ok {
		if len(segments) == 1 {
			return root
		}
		if v, ok := resolveFrom(root, segments[1:]); ok {
			return v
		}
	}
	return nil
}

// resolveFrom walks segments level by level, abandoning the candidate
// as soon as an intermediate is missing or nil.
func resolveFrom(root any, segments []string) (any, bool) {
	cur := root
	for _, seg := range segments {
		if cur == nil {
			return nil, false
		}
		next, ok := access(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// access dereferences one attribute on a value: ordered dicts and
// string-keyed maps by key, structs by field name with a
// case-insensitive fallback.
func access(in any, name string) (any, bool) {
	if in == nil {
		return nil, false
	}
	if d, ok := in.(*Dict); ok {
		return d.Get(name)
	}
	if m, ok := in.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}

	rv := reflect.ValueOf(in)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, false
		}
		return access(rv.Elem().Interface(), name)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := rv.MapIndex(reflect.ValueOf(name))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	case reflect.Struct:
		fv := rv.FieldByNameFunc(func(n string) bool {
			return n == name || strings.EqualFold(n, name)
		})
		if fv.IsValid() && fv.CanInterface() {
			return fv.Interface(), true
		}
	}
	return nil, false
}

func index(target, key any) any {
	if target == nil {
		return nil
	}
	if i, ok := toInt(key); ok {
		rv := reflect.ValueOf(target)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.String:
			if i < 0 || i >= rv.Len() {
				return nil
			}
			if rv.Kind() == reflect.String {
				return string(rv.String()[i])
			}
			return rv.Index(i).Interface()
		}
	}
	if s, ok := key.(string); ok {
		v, _ := access(target, s)
		return v
	}
	return nil
}

func evalFuncCall(n *FuncCall, env Env) (any, error) {
	args, err := evalArgs(n.Args, env)
	if err != nil {
		return nil, err
	}
	if fn, ok := access(env.ContextRoot(), n.Name); ok && callable(fn) {
		return callAny(fn, args)
	}
	if fn, ok := env.Lookup(n.Name); ok && callable(fn) {
		return callAny(fn, args)
	}
	// Not a function anywhere: degrade to a no-op, never raise.
	return nil, nil
}

func evalMethodCall(n *MethodCall, env Env) (any, error) {
	prefix, err := Eval(n.Target, env)
	if err != nil {
		return nil, err
	}
	if prefix == nil {
		return nil, nil
	}
	args, err := evalArgs(n.Args, env)
	if err != nil {
		return nil, err
	}
	// An attribute that holds a callable wins over a Go method.
	if fn, ok := access(prefix, n.Name); ok && callable(fn) {
		return callAny(fn, args)
	}
	rv := reflect.ValueOf(prefix)
	m := rv.MethodByName(n.Name)
	if !m.IsValid() {
		m = rv.MethodByName(exportedName(n.Name))
	}
	if m.IsValid() {
		return callReflect(m, args)
	}
	return nil, nil
}

// exportedName upper-cases the first rune so template-side lowercase
// method names reach exported Go methods.
func exportedName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func evalArgs(exprs []Expr, env Env) ([]any, error) {
	args := make([]any, len(exprs))
	for i, e := range exprs {
		v, err := Eval(e, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func callable(v any) bool {
	return v != nil && reflect.ValueOf(v).Kind() == reflect.Func
}

// callAny invokes an arbitrary Go function with loosely typed
// arguments, converting numbers where the signature requires it.
func callAny(fn any, args []any) (any, error) {
	return callReflect(reflect.ValueOf(fn), args)
}

func callReflect(fn reflect.Value, args []any) (any, error) {
	t := fn.Type()
	in := make([]reflect.Value, 0, len(args))
	for i, arg := range args {
		var want reflect.Type
		switch {
		case t.IsVariadic() && i >= t.NumIn()-1:
			want = t.In(t.NumIn() - 1).Elem()
		case i < t.NumIn():
			want = t.In(i)
		default:
			return nil, fmt.Errorf("too many arguments in call")
		}
		in = append(in, convertArg(arg, want))
	}
	if !t.IsVariadic() && len(in) < t.NumIn() {
		return nil, fmt.Errorf("not enough arguments in call")
	}

	out := fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if err, ok := out[0].Interface().(error); ok {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		var err error
		if e, ok := out[len(out)-1].Interface().(error); ok {
			err = e
		}
		return out[0].Interface(), err
	}
}

func convertArg(arg any, want reflect.Type) reflect.Value {
	if arg == nil {
		return reflect.Zero(want)
	}
	rv := reflect.ValueOf(arg)
	if rv.Type().AssignableTo(want) {
		return rv
	}
	if rv.Type().ConvertibleTo(want) {
		return rv.Convert(want)
	}
	return rv
}

func evalBinOp(n *BinOp, env Env) (any, error) {
	// Short-circuit logic returns operand values, not booleans.
	switch n.Op {
	case "&&":
		left, err := Eval(n.Left, env)
		if err != nil {
			return nil, err
		}
		if !Truthy(left) {
			return left, nil
		}
		return Eval(n.Right, env)
	case "||":
		left, err := Eval(n.Left, env)
		if err != nil {
			return nil, err
		}
		if Truthy(left) {
			return left, nil
		}
		return Eval(n.Right, env)
	}

	left, err := Eval(n.Left, env)
	if err != nil {
		return nil, err
	}
	right, err := Eval(n.Right, env)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "+":
		if lf, ok := ToFloat(left); ok {
			if rf, ok := ToFloat(right); ok {
				return lf + rf, nil
			}
		}
		return Stringify(left) + Stringify(right), nil
	case "-", "*", "/", "%":
		lf, lok := ToFloat(left)
		rf, rok := ToFloat(right)
		if !lok || !rok {
			return nil, nil
		}
		switch n.Op {
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			if rf == 0 {
				return nil, nil
			}
			return lf / rf, nil
		case "%":
			if rf == 0 {
				return nil, nil
			}
			return float64(int64(lf) % int64(rf)), nil
		}
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case "<", "<=", ">", ">=":
		cmp, ok := compare(left, right)
		if !ok {
			return false, nil
		}
		switch n.Op {
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		}
	case "in":
		return contains(right, left), nil
	}
	return nil, fmt.Errorf("unknown operator %q", n.Op)
}

func looseEqual(a, b any) bool {
	if af, ok := ToFloat(a); ok {
		if bf, ok := ToFloat(b); ok {
			return af == bf
		}
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b any) (int, bool) {
	if af, ok := ToFloat(a); ok {
		if bf, ok := ToFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func contains(container, item any) bool {
	switch c := container.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(c, Stringify(item))
	case *Dict:
		_, ok := c.Get(Stringify(item))
		return ok
	}
	rv := reflect.ValueOf(container)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if looseEqual(rv.Index(i).Interface(), item) {
				return true
			}
		}
	case reflect.Map:
		mv := rv.MapIndex(reflect.ValueOf(Stringify(item)))
		return mv.IsValid()
	}
	return false
}

// Truthy reports template truthiness: nil, false, zero numbers, empty
// strings and empty containers are all falsy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case *Dict:
		return t.Len() > 0
	}
	if f, ok := ToFloat(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// ToFloat coerces any numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// toInt coerces a numeric value to int for subscripting.
func toInt(v any) (int, bool) {
	f, ok := ToFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Stringify renders a value the way output statements do: nil becomes
// the empty string, sequences join their elements with commas, maps
// encode as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case *Dict:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	case error:
		return t.Error()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts[i] = Stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	case reflect.Map:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
