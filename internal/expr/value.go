// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// IsTruthy reports the truth value of v. Null, false, zero numbers, the empty
// string, the string "0", nil pointers and empty slices, arrays and maps are
// false. Everything else is true.
func IsTruthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "0"
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return IsTruthy(rv.Elem().Interface())
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.String:
		return IsTruthy(rv.String())
	case reflect.Bool:
		return rv.Bool()
	case reflect.Chan, reflect.Func:
		return !rv.IsNil()
	}
	if n, ok := toNumber(rv); ok {
		return n.f != 0
	}
	return true
}

// ToString renders v the way it appears when concatenated or substituted into
// SQL text. Null and false render as the empty string, true as "1".
func ToString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return ""
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return ToString(rv.Elem().Interface())
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return ToString(rv.Bool())
	}
	if n, ok := toNumber(rv); ok {
		return n.String()
	}
	return fmt.Sprint(v)
}

// number holds a numeric value. Integers are kept exactly in i.
type number struct {
	isInt bool
	i     int64
	f     float64
}

func intNumber(i int64) number {
	return number{isInt: true, i: i, f: float64(i)}
}

func floatNumber(f float64) number {
	return number{f: f}
}

func (n number) value() any {
	if n.isInt {
		return n.i
	}
	return n.f
}

func (n number) String() string {
	if n.isInt {
		return strconv.FormatInt(n.i, 10)
	}
	return strconv.FormatFloat(n.f, 'f', -1, 64)
}

// toNumber converts Go numeric kinds to a number.
func toNumber(rv reflect.Value) (number, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intNumber(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return floatNumber(float64(u)), true
		}
		return intNumber(int64(u)), true
	case reflect.Float32, reflect.Float64:
		return floatNumber(rv.Float()), true
	}
	return number{}, false
}

// parseNumeric parses a numeric string. Surrounding blanks are allowed.
func parseNumeric(s string) (number, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return number{}, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return intNumber(i), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return floatNumber(f), true
	}
	return number{}, false
}

// numericValue returns the number held by v, accepting numeric strings.
// Booleans count as 0 and 1 and null as 0.
func numericValue(v any) (number, bool) {
	switch v := v.(type) {
	case nil:
		return intNumber(0), true
	case bool:
		if v {
			return intNumber(1), true
		}
		return intNumber(0), true
	case string:
		return parseNumeric(v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return intNumber(0), true
		}
		return numericValue(rv.Elem().Interface())
	}
	if rv.Kind() == reflect.String {
		return parseNumeric(rv.String())
	}
	return toNumber(rv)
}

// isNumeric reports whether v is a Go number or a numeric string.
func isNumeric(v any) bool {
	switch v.(type) {
	case nil, bool:
		return false
	}
	_, ok := numericValue(v)
	return ok
}

func isStringLike(v any) bool {
	if v == nil {
		return false
	}
	return reflect.ValueOf(v).Kind() == reflect.String
}

func isAggregate(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}

// normalize reduces named and sized types to the canonical set of dynamic
// values: nil, bool, string, int64, float64 or the original value.
func normalize(v any) any {
	switch v.(type) {
	case nil, bool, string, int64, float64:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	}
	if n, ok := toNumber(rv); ok {
		return n.value()
	}
	return v
}

// looseEqual implements "==". Values of different types are compared after
// conversion: booleans by truth value, numbers and numeric strings by numeric
// value. Null equals the empty string and, compared with anything else, any
// false value.
func looseEqual(x, y any) bool {
	x, y = normalize(x), normalize(y)
	if x == nil || y == nil {
		if x == nil && y == nil {
			return true
		}
		other := x
		if other == nil {
			other = y
		}
		if s, ok := other.(string); ok {
			return s == ""
		}
		return !IsTruthy(other)
	}
	_, xb := x.(bool)
	_, yb := y.(bool)
	if xb || yb {
		return IsTruthy(x) == IsTruthy(y)
	}
	xs, xIsStr := x.(string)
	ys, yIsStr := y.(string)
	if xIsStr && yIsStr {
		if xn, ok := parseNumeric(xs); ok {
			if yn, ok := parseNumeric(ys); ok {
				return compareNumbers(xn, yn) == 0
			}
		}
		return xs == ys
	}
	if isNumeric(x) && isNumeric(y) {
		xn, _ := numericValue(x)
		yn, _ := numericValue(y)
		return compareNumbers(xn, yn) == 0
	}
	if xIsStr || yIsStr {
		return ToString(x) == ToString(y)
	}
	return reflect.DeepEqual(x, y)
}

// strictEqual implements "===". Both type and value must match, where all
// integer types count as one type and all float types as another.
func strictEqual(x, y any) bool {
	x, y = normalize(x), normalize(y)
	switch xv := x.(type) {
	case nil:
		return y == nil
	case int64:
		yv, ok := y.(int64)
		return ok && xv == yv
	case float64:
		yv, ok := y.(float64)
		return ok && xv == yv
	case bool:
		yv, ok := y.(bool)
		return ok && xv == yv
	case string:
		yv, ok := y.(string)
		return ok && xv == yv
	}
	if y == nil {
		return false
	}
	if reflect.TypeOf(x) != reflect.TypeOf(y) {
		return false
	}
	return reflect.DeepEqual(x, y)
}

func compareNumbers(x, y number) int {
	if x.isInt && y.isInt {
		switch {
		case x.i < y.i:
			return -1
		case x.i > y.i:
			return 1
		}
		return 0
	}
	switch {
	case x.f < y.f:
		return -1
	case x.f > y.f:
		return 1
	}
	return 0
}

// compare orders x and y numerically when both are numeric or null and as
// strings otherwise.
func compare(x, y any) int {
	if (x == nil || isNumeric(x)) && (y == nil || isNumeric(y)) {
		xn, _ := numericValue(x)
		yn, _ := numericValue(y)
		return compareNumbers(xn, yn)
	}
	return strings.Compare(ToString(x), ToString(y))
}

var errDivisionByZero = errors.New("division by zero")

// arithmetic applies one of + - * / % to x and y.
func arithmetic(op string, x, y any) (any, error) {
	xn, ok := numericValue(x)
	if !ok {
		return nil, errors.Errorf("unsupported operand %s for %q", describe(x), op)
	}
	yn, ok := numericValue(y)
	if !ok {
		return nil, errors.Errorf("unsupported operand %s for %q", describe(y), op)
	}
	if xn.isInt && yn.isInt {
		a, b := xn.i, yn.i
		switch op {
		case "+":
			return a + b, nil
		case "-":
			return a - b, nil
		case "*":
			return a * b, nil
		case "/":
			if b == 0 {
				return nil, errDivisionByZero
			}
			if a%b == 0 {
				return a / b, nil
			}
			return float64(a) / float64(b), nil
		case "%":
			if b == 0 {
				return nil, errDivisionByZero
			}
			return a % b, nil
		}
	}
	a, b := xn.f, yn.f
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, errDivisionByZero
		}
		return a / b, nil
	case "%":
		ai, bi := int64(a), int64(b)
		if bi == 0 {
			return nil, errDivisionByZero
		}
		return ai % bi, nil
	}
	return nil, errors.Errorf("unknown operator %q", op)
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("of type %T", v)
}
