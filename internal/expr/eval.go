// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmapper/internal/typeinfo"
)

// MethodFilter decides whether an expression may call the method name on a
// value of type recv.
type MethodFilter func(recv reflect.Type, name string) bool

// AllowAllMethods permits every exported method.
func AllowAllMethods(reflect.Type, string) bool { return true }

// DenyAllMethods refuses all method calls.
func DenyAllMethods(reflect.Type, string) bool { return false }

// AllowMethods returns a filter permitting only the named methods, matched
// case insensitively.
func AllowMethods(names ...string) MethodFilter {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[strings.ToLower(n)] = true
	}
	return func(_ reflect.Type, name string) bool {
		return allowed[strings.ToLower(name)]
	}
}

// Env is the environment an expression is evaluated in.
type Env struct {
	// Context is the caller supplied parameter value.
	Context any
	// Bindings shadow the context. They hold foreach item and index names.
	Bindings map[string]any
	// Methods restricts method calls. A nil filter allows all exported
	// methods.
	Methods MethodFilter
}

// Eval evaluates e in env.
func (e *Expr) Eval(env *Env) (any, error) {
	if env == nil {
		env = &Env{}
	}
	v, err := e.root.eval(env)
	if err != nil {
		return nil, &EvalError{Expr: e.source, Err: err}
	}
	return v, nil
}

// Truthy evaluates e in env and reports the truth value of the result.
func (e *Expr) Truthy(env *Env) (bool, error) {
	v, err := e.Eval(env)
	if err != nil {
		return false, err
	}
	return IsTruthy(v), nil
}

// RootName returns the name of the first segment of the property path the
// expression starts with, if any.
func (e *Expr) RootName() (string, bool) {
	n := e.root
	for {
		switch v := n.(type) {
		case *ident:
			return v.name, true
		case *member:
			n = v.recv
		case *index:
			n = v.recv
		case *methodCall:
			if v.recv == nil {
				return "", false
			}
			n = v.recv
		default:
			return "", false
		}
	}
}

func (n *literal) eval(*Env) (any, error) {
	return n.val, nil
}

// eval resolves a root name. Bindings win over the context. A scalar context
// is the value of every name that is not bound.
func (n *ident) eval(env *Env) (any, error) {
	if v, ok := env.Bindings[n.name]; ok {
		return v, nil
	}
	if isScalar(env.Context) {
		return env.Context, nil
	}
	v, _ := typeinfo.Get(env.Context, n.name)
	return v, nil
}

// isScalar reports whether v has no members to look names up in.
func isScalar(v any) bool {
	if v == nil {
		return false
	}
	rv := typeinfo.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Struct, reflect.Slice, reflect.Array:
		return false
	}
	return true
}

func (n *member) eval(env *Env) (any, error) {
	recv, err := n.recv.eval(env)
	if err != nil {
		return nil, err
	}
	v, _ := typeinfo.Get(recv, n.name)
	return v, nil
}

func (n *index) eval(env *Env) (any, error) {
	recv, err := n.recv.eval(env)
	if err != nil {
		return nil, err
	}
	key, err := n.key.eval(env)
	if err != nil {
		return nil, err
	}
	v, _ := typeinfo.Get(recv, normalize(key))
	return v, nil
}

func (n *builtinCall) eval(env *Env) (any, error) {
	args, err := evalArgs(env, n.args)
	if err != nil {
		return nil, err
	}
	return n.fn.call(args), nil
}

func evalArgs(env *Env, nodes []exprNode) ([]any, error) {
	args := make([]any, len(nodes))
	for i, a := range nodes {
		v, err := a.eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func (n *methodCall) eval(env *Env) (any, error) {
	var recv any
	if n.recv == nil {
		recv = env.Context
	} else {
		v, err := n.recv.eval(env)
		if err != nil {
			return nil, err
		}
		recv = v
	}
	args, err := evalArgs(env, n.args)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(recv)
	if !rv.IsValid() {
		return nil, errors.Errorf("cannot call method %s on null", n.name)
	}
	m, name := findMethod(rv, n.name)
	if !m.IsValid() {
		return nil, errors.Errorf("type %s has no method %s", rv.Type(), n.name)
	}
	filter := env.Methods
	if filter == nil {
		filter = AllowAllMethods
	}
	if !filter(rv.Type(), name) {
		return nil, errors.Errorf("method %s of type %s not allowed", name, rv.Type())
	}
	return callMethod(m, name, args)
}

// findMethod looks up name, then name with its first letter capitalised, on
// v and on a pointer to v.
func findMethod(v reflect.Value, name string) (reflect.Value, string) {
	candidates := []string{name}
	if r, size := utf8.DecodeRuneInString(name); unicode.IsLower(r) {
		candidates = append(candidates, string(unicode.ToUpper(r))+name[size:])
	}
	for _, c := range candidates {
		if m := v.MethodByName(c); m.IsValid() {
			return m, c
		}
		if v.Kind() != reflect.Pointer && v.Kind() != reflect.Interface {
			p := reflect.New(v.Type())
			p.Elem().Set(v)
			if m := p.MethodByName(c); m.IsValid() {
				return m, c
			}
		}
	}
	return reflect.Value{}, ""
}

func callMethod(m reflect.Value, name string, args []any) (any, error) {
	mt := m.Type()
	if mt.IsVariadic() {
		if len(args) < mt.NumIn()-1 {
			return nil, errors.Errorf("method %s takes at least %d argument(s), got %d", name, mt.NumIn()-1, len(args))
		}
	} else if len(args) != mt.NumIn() {
		return nil, errors.Errorf("method %s takes %d argument(s), got %d", name, mt.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var t reflect.Type
		if mt.IsVariadic() && i >= mt.NumIn()-1 {
			t = mt.In(mt.NumIn() - 1).Elem()
		} else {
			t = mt.In(i)
		}
		v := reflect.New(t).Elem()
		if err := typeinfo.Assign(v, a); err != nil {
			return nil, errors.Wrapf(err, "argument %d of method %s", i+1, name)
		}
		in[i] = v
	}
	out := m.Call(in)
	if len(out) > 0 && mt.Out(len(out)-1) == errorType {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return nil, errors.Wrapf(errv.Interface().(error), "method %s", name)
		}
		out = out[:len(out)-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	}
	results := make([]any, len(out))
	for i, o := range out {
		results[i] = o.Interface()
	}
	return results, nil
}

func (n *unary) eval(env *Env) (any, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		return !IsTruthy(x), nil
	case "-":
		return arithmetic("-", int64(0), x)
	}
	return nil, errors.Errorf("unknown operator %q", n.op)
}

func (n *binary) eval(env *Env) (any, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return nil, err
	}
	// Logical operators short circuit.
	switch n.op {
	case "&&":
		if !IsTruthy(x) {
			return false, nil
		}
		y, err := n.y.eval(env)
		if err != nil {
			return nil, err
		}
		return IsTruthy(y), nil
	case "||":
		if IsTruthy(x) {
			return true, nil
		}
		y, err := n.y.eval(env)
		if err != nil {
			return nil, err
		}
		return IsTruthy(y), nil
	}
	y, err := n.y.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "==":
		return looseEqual(x, y), nil
	case "!=":
		return !looseEqual(x, y), nil
	case "===":
		return strictEqual(x, y), nil
	case "!==":
		return !strictEqual(x, y), nil
	case "<":
		return compare(x, y) < 0, nil
	case ">":
		return compare(x, y) > 0, nil
	case "<=":
		return compare(x, y) <= 0, nil
	case ">=":
		return compare(x, y) >= 0, nil
	case ".":
		return ToString(x) + ToString(y), nil
	}
	return arithmetic(n.op, x, y)
}

func (n *conditional) eval(env *Env) (any, error) {
	c, err := n.cond.eval(env)
	if err != nil {
		return nil, err
	}
	if IsTruthy(c) {
		return n.then.eval(env)
	}
	return n.otherwise.eval(env)
}
