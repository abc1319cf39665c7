// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"reflect"

	"github.com/pkg/errors"
	. "gopkg.in/check.v1"
)

type EvalSuite struct{}

var _ = Suite(&EvalSuite{})

type M map[string]any

type greeter struct {
	Prefix string
}

func (g greeter) Hello(name string) string {
	return g.Prefix + " " + name
}

func (g *greeter) Double(n int) int {
	return n * 2
}

func (g greeter) Fail() (int, error) {
	return 0, errors.New("boom")
}

func (g greeter) Join(sep string, parts ...string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

type account struct {
	ID    int64  `db:"account_id"`
	Owner string `db:"owner"`
	Tags  []string
}

var evalTests = []struct {
	summary  string
	input    string
	context  any
	bindings map[string]any
	expected any
}{{
	"null is not different from null",
	"a != null",
	M{"a": nil},
	nil,
	false,
}, {
	"zero is empty",
	"!empty(a)",
	M{"a": 0},
	nil,
	false,
}, {
	"zero loosely equals zero",
	"a == 0",
	M{"a": 0},
	nil,
	true,
}, {
	"zero is not null",
	"a == null",
	M{"a": 0},
	nil,
	false,
}, {
	"empty string is not null",
	"a != null",
	M{"a": ""},
	nil,
	true,
}, {
	"missing key is null",
	"a == null",
	M{},
	nil,
	true,
}, {
	"nested maps",
	"a.b.c",
	M{"a": M{"b": map[string]int{"c": 5}}},
	nil,
	5,
}, {
	"missing path",
	"missing.x.y",
	M{},
	nil,
	nil,
}, {
	"slice subscript",
	"list[1]",
	M{"list": []string{"x", "y"}},
	nil,
	"y",
}, {
	"computed subscript",
	"list[i + 1]",
	M{"list": []string{"x", "y"}, "i": 0},
	nil,
	"y",
}, {
	"dot index into slice",
	"list.0",
	M{"list": []int{5, 6}},
	nil,
	5,
}, {
	"dot index then member",
	"rows.1.name",
	M{"rows": []M{{"name": "a"}, {"name": "b"}}},
	nil,
	"b",
}, {
	"dot index into map with integer keys",
	"m.2",
	M{"m": map[int]string{2: "two"}},
	nil,
	"two",
}, {
	"dot index after subscript",
	"grid[1].0",
	M{"grid": [][]int{{1, 2}, {3, 4}}},
	nil,
	3,
}, {
	"spaced dot before digits concatenates",
	"a . 0",
	M{"a": "x"},
	nil,
	"x0",
}, {
	"angle brackets mean not equal",
	"a <> 1",
	M{"a": 2},
	nil,
	true,
}, {
	"angle brackets on equal values",
	"a <> 1",
	M{"a": 1},
	nil,
	false,
}, {
	"null does not equal the string zero",
	"a == '0'",
	M{"a": nil},
	nil,
	false,
}, {
	"null equals the empty string",
	"'' == a",
	M{},
	nil,
	true,
}, {
	"null equals false",
	"a == false",
	M{},
	nil,
	true,
}, {
	"struct by tag",
	"acct.account_id",
	M{"acct": &account{ID: 9}},
	nil,
	int64(9),
}, {
	"struct by field name",
	"owner",
	account{Owner: "ann"},
	nil,
	"ann",
}, {
	"count of a slice",
	"count(list)",
	M{"list": []int{1, 2, 3}},
	nil,
	int64(3),
}, {
	"count of null",
	"count(nothing)",
	M{},
	nil,
	int64(0),
}, {
	"count of a scalar",
	"count(x)",
	M{"x": "abc"},
	nil,
	int64(1),
}, {
	"strlen counts bytes",
	"strlen('héllo')",
	nil,
	nil,
	int64(6),
}, {
	"mb_strlen counts characters",
	"mb_strlen('héllo')",
	nil,
	nil,
	int64(5),
}, {
	"arithmetic precedence",
	"1 + 2 * 3",
	nil,
	nil,
	int64(7),
}, {
	"inexact division",
	"7 / 2",
	nil,
	nil,
	3.5,
}, {
	"exact division",
	"6 / 3",
	nil,
	nil,
	int64(2),
}, {
	"modulo",
	"7 % 3",
	nil,
	nil,
	int64(1),
}, {
	"numeric string arithmetic",
	"'4' * 2.5",
	nil,
	nil,
	10.0,
}, {
	"unary minus",
	"-a",
	M{"a": 3},
	nil,
	int64(-3),
}, {
	"concatenation",
	"'a' . 1 . true . null . false . 1.5",
	nil,
	nil,
	"a111.5",
}, {
	"keyword range",
	"a lt 10 and a gte 0",
	M{"a": 5},
	nil,
	true,
}, {
	"or short circuit",
	"a or b.c()",
	M{"a": 1},
	nil,
	true,
}, {
	"and short circuit",
	"a and b.c()",
	M{"a": 0},
	nil,
	false,
}, {
	"conditional",
	"n > 2 ? 'big' : 'small'",
	M{"n": 3},
	nil,
	"big",
}, {
	"numeric string equals number",
	"'10' == 10",
	nil,
	nil,
	true,
}, {
	"numeric string is not identical to number",
	"'10' === 10",
	nil,
	nil,
	false,
}, {
	"int and float are loosely equal",
	"1 == 1.0",
	nil,
	nil,
	true,
}, {
	"int and float are not identical",
	"1 === 1.0",
	nil,
	nil,
	false,
}, {
	"all integer types are identical",
	"a === 1",
	M{"a": uint8(1)},
	nil,
	true,
}, {
	"eq is strict",
	"a eq '1'",
	M{"a": 1},
	nil,
	false,
}, {
	"numeric strings compare numerically",
	"'1e1' == '10'",
	nil,
	nil,
	true,
}, {
	"strings compare lexically",
	"'abc' < 'abd'",
	nil,
	nil,
	true,
}, {
	"numbers compare numerically",
	"'9' < 10",
	nil,
	nil,
	true,
}, {
	"bool compares by truth",
	"flag == 'yes'",
	M{"flag": true},
	nil,
	true,
}, {
	"bindings shadow the context",
	"item",
	M{"item": "context"},
	map[string]any{"item": "bound"},
	"bound",
}, {
	"binding path",
	"item.x",
	M{},
	map[string]any{"item": M{"x": 7}},
	7,
}, {
	"scalar context answers every name",
	"anything",
	42,
	nil,
	42,
}, {
	"scalar context in arithmetic",
	"value + 1",
	int32(41),
	nil,
	int64(42),
}, {
	"scalar context has no members",
	"value.x",
	"abc",
	nil,
	nil,
}, {
	"bindings win over a scalar context",
	"i",
	"abc",
	map[string]any{"i": 2},
	2,
}, {
	"method on a path",
	"g.hello('Bob')",
	M{"g": greeter{Prefix: "Hi"}},
	nil,
	"Hi Bob",
}, {
	"pointer receiver method",
	"g.double(2)",
	M{"g": greeter{}},
	nil,
	4,
}, {
	"method on the context",
	"Hello('Ann')",
	greeter{Prefix: "Yo"},
	nil,
	"Yo Ann",
}, {
	"variadic method",
	"g.join(', ', 'a', 'b')",
	M{"g": greeter{}},
	nil,
	"a, b",
}, {
	"method argument conversion",
	"g.double('21')",
	M{"g": &greeter{}},
	nil,
	42,
}}

func (s *EvalSuite) TestEval(c *C) {
	for i, test := range evalTests {
		e, err := Compile(test.input)
		if err != nil {
			c.Errorf("test %d failed (Compile):\nsummary: %s\ninput: %s\nerr: %s\n", i, test.summary, test.input, err)
			continue
		}
		v, err := e.Eval(&Env{Context: test.context, Bindings: test.bindings})
		if err != nil {
			c.Errorf("test %d failed (Eval):\nsummary: %s\ninput: %s\nerr: %s\n", i, test.summary, test.input, err)
			continue
		}
		if !reflect.DeepEqual(v, test.expected) {
			c.Errorf("test %d failed (Eval):\nsummary: %s\ninput: %s\nexpected: %#v\nactual:   %#v\n", i, test.summary, test.input, test.expected, v)
		}
	}
}

var evalErrorTests = []struct {
	summary string
	input   string
	context any
	methods MethodFilter
	err     string
}{{
	"division by zero",
	"1 / a",
	M{"a": 0},
	nil,
	`cannot evaluate expression "1 / a": division by zero`,
}, {
	"modulo by zero",
	"1 % 0",
	nil,
	nil,
	`cannot evaluate expression "1 % 0": division by zero`,
}, {
	"non numeric operand",
	"'abc' + 1",
	nil,
	nil,
	`cannot evaluate expression "'abc' \+ 1": unsupported operand "abc" for "\+"`,
}, {
	"method on null",
	"a.m()",
	M{},
	nil,
	`cannot evaluate expression "a.m\(\)": cannot call method m on null`,
}, {
	"unknown method",
	"g.missing()",
	M{"g": greeter{}},
	nil,
	`cannot evaluate expression "g.missing\(\)": type expr.greeter has no method missing`,
}, {
	"method arity",
	"g.hello()",
	M{"g": greeter{}},
	nil,
	`cannot evaluate expression "g.hello\(\)": method Hello takes 1 argument\(s\), got 0`,
}, {
	"method error",
	"g.fail()",
	M{"g": greeter{}},
	nil,
	`cannot evaluate expression "g.fail\(\)": method Fail: boom`,
}, {
	"methods denied",
	"g.hello('x')",
	M{"g": greeter{}},
	DenyAllMethods,
	`cannot evaluate expression "g.hello\('x'\)": method Hello of type expr.greeter not allowed`,
}, {
	"method not in allow list",
	"g.hello('x')",
	M{"g": greeter{}},
	AllowMethods("double"),
	`.*method Hello of type expr.greeter not allowed`,
}}

func (s *EvalSuite) TestEvalErrors(c *C) {
	for _, test := range evalErrorTests {
		e := MustCompile(test.input)
		_, err := e.Eval(&Env{Context: test.context, Methods: test.methods})
		c.Check(err, ErrorMatches, test.err, Commentf(test.summary))
		c.Check(errors.Is(err, ErrEval), Equals, true, Commentf(test.summary))
	}
}

func (s *EvalSuite) TestAllowMethods(c *C) {
	e := MustCompile("g.HELLO('x')")
	_, err := e.Eval(&Env{Context: M{"g": greeter{}}, Methods: AllowMethods("hello")})
	// Method lookup is case sensitive apart from the first letter.
	c.Assert(err, ErrorMatches, ".*has no method HELLO")

	e = MustCompile("g.hello('x')")
	v, err := e.Eval(&Env{Context: M{"g": greeter{}}, Methods: AllowMethods("Hello")})
	c.Assert(err, IsNil)
	c.Assert(v, Equals, " x")
}

func (s *EvalSuite) TestEvalDoesNotMutate(c *C) {
	ctx := M{"a": M{"b": 1}}
	bindings := map[string]any{"item": 2}
	_, err := MustCompile("a.b + item + a.c.d").Eval(&Env{Context: ctx, Bindings: bindings})
	c.Assert(err, IsNil)
	c.Assert(ctx, DeepEquals, M{"a": M{"b": 1}})
	c.Assert(bindings, DeepEquals, map[string]any{"item": 2})
}

func (s *EvalSuite) TestNilEnv(c *C) {
	v, err := MustCompile("1 + 1").Eval(nil)
	c.Assert(err, IsNil)
	c.Assert(v, Equals, int64(2))
}

func (s *EvalSuite) TestTruthy(c *C) {
	ok, err := MustCompile("list").Truthy(&Env{Context: M{"list": []int{}}})
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)

	ok, err = MustCompile("name").Truthy(&Env{Context: M{"name": "x"}})
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)

	_, err = MustCompile("1 / 0").Truthy(nil)
	c.Assert(errors.Is(err, ErrEval), Equals, true)
}

func (s *EvalSuite) TestIsTruthy(c *C) {
	var nilPtr *int
	one := 1
	tests := []struct {
		value any
		truth bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0, false},
		{int8(0), false},
		{uint(3), true},
		{-1, true},
		{0.0, false},
		{0.5, true},
		{"", false},
		{"0", false},
		{"0.0", true},
		{"a", true},
		{" ", true},
		{[]int{}, false},
		{[]int{0}, true},
		{map[string]int{}, false},
		{map[string]int{"a": 0}, true},
		{[0]int{}, false},
		{nilPtr, false},
		{&one, true},
		{struct{}{}, true},
	}
	for _, test := range tests {
		c.Check(IsTruthy(test.value), Equals, test.truth, Commentf("%#v", test.value))
	}
}

func (s *EvalSuite) TestToString(c *C) {
	tests := []struct {
		value any
		str   string
	}{
		{nil, ""},
		{true, "1"},
		{false, ""},
		{int64(3), "3"},
		{uint16(7), "7"},
		{1.5, "1.5"},
		{2.0, "2"},
		{"x", "x"},
		{[]byte("b"), "b"},
		{errors.New("e"), "e"},
	}
	for _, test := range tests {
		c.Check(ToString(test.value), Equals, test.str, Commentf("%#v", test.value))
	}
}
