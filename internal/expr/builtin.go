// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"reflect"
	"unicode/utf8"
)

type builtin struct {
	name  string
	arity int
	call  func(args []any) any
}

// builtins are the only plain function calls resolved at compile time. Any
// other call is dispatched as a method on the context.
var builtins = map[string]*builtin{
	"empty":     {name: "empty", arity: 1, call: builtinEmpty},
	"count":     {name: "count", arity: 1, call: builtinCount},
	"strlen":    {name: "strlen", arity: 1, call: builtinStrlen},
	"mb_strlen": {name: "mb_strlen", arity: 1, call: builtinMbStrlen},
}

func builtinEmpty(args []any) any {
	return !IsTruthy(args[0])
}

// builtinCount returns the length of an aggregate, 0 for null and 1 for any
// other value.
func builtinCount(args []any) any {
	if args[0] == nil {
		return int64(0)
	}
	rv := reflect.ValueOf(args[0])
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return int64(0)
		}
		rv = rv.Elem()
	}
	if isAggregate(rv) {
		return int64(rv.Len())
	}
	return int64(1)
}

// builtinStrlen counts bytes.
func builtinStrlen(args []any) any {
	return int64(len(ToString(args[0])))
}

// builtinMbStrlen counts characters.
func builtinMbStrlen(args []any) any {
	return int64(utf8.RuneCountInString(ToString(args[0])))
}
