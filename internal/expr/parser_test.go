// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"testing"

	"github.com/pkg/errors"
	. "gopkg.in/check.v1"
)

func TestExpr(t *testing.T) { TestingT(t) }

type ParserSuite struct{}

var _ = Suite(&ParserSuite{})

var parseTests = []struct {
	summary  string
	input    string
	expected string
}{{
	"bare identifier",
	"a",
	"a",
}, {
	"member chain",
	"a.b.c",
	"a.b.c",
}, {
	"integer subscript",
	"a[1]",
	"a[1]",
}, {
	"string subscript then member",
	"a['x'].y",
	`a["x"].y`,
}, {
	"nested subscripts",
	"a.b[c.d[0]]",
	"a.b[c.d[0]]",
}, {
	"loose null comparison becomes strict",
	"a == null",
	"(a === null)",
}, {
	"null on the left",
	"NULL != a",
	"(null !== a)",
}, {
	"eq keyword is strict",
	"a eq 1",
	"(a === 1)",
}, {
	"and binds tighter than or",
	"a and b or c",
	"((a && b) || c)",
}, {
	"or then and",
	"a || b && c",
	"(a || (b && c))",
}, {
	"upper case keywords",
	"a AND b OR c",
	"((a && b) || c)",
}, {
	"negation",
	"!a",
	"(!a)",
}, {
	"double negation",
	"!!a",
	"(!(!a))",
}, {
	"unary minus and arithmetic precedence",
	"-1 + 2 * 3",
	"((-1) + (2 * 3))",
}, {
	"left associative",
	"a - b - c",
	"((a - b) - c)",
}, {
	"parentheses",
	"(a + 1) * 2",
	"((a + 1) * 2)",
}, {
	"concatenation",
	"a . 'x'",
	`(a . "x")`,
}, {
	"concatenation below arithmetic",
	"'n' . 1 + 2",
	`("n" . (1 + 2))`,
}, {
	"relational keywords",
	"a lte 1.5 and b gt 0 and c lt 1 and d gte 2",
	"((((a <= 1.5) && (b > 0)) && (c < 1)) && (d >= 2))",
}, {
	"relational binds tighter than equality",
	"a < b == c > d",
	"((a < b) == (c > d))",
}, {
	"builtin",
	"empty(a)",
	"empty(a)",
}, {
	"builtin in comparison",
	"count(list) gt 0",
	"(count(list) > 0)",
}, {
	"multibyte length",
	"mb_strlen(name) <= 10",
	"(mb_strlen(name) <= 10)",
}, {
	"method on a path",
	"a.format('Y', 2)",
	`a.format("Y", 2)`,
}, {
	"method on the context",
	"isAdmin()",
	"isAdmin()",
}, {
	"method on a method result",
	"a.b().c",
	"a.b().c",
}, {
	"conditional",
	"a ? 'y' : 'n'",
	`(a ? "y" : "n")`,
}, {
	"nested conditional",
	"a ? b : c ? d : e",
	"(a ? b : (c ? d : e))",
}, {
	"boolean literals",
	"TRUE || false",
	"(true || false)",
}, {
	"escaped quotes",
	`'it\'s' . "say \"hi\""`,
	`("it's" . "say \"hi\"")`,
}, {
	"float literal",
	"0.25",
	"0.25",
}, {
	"strict operators",
	"a === 1 && b !== '1'",
	`((a === 1) && (b !== "1"))`,
}, {
	"modulo",
	"a % 2 == 0",
	"((a % 2) == 0)",
}, {
	"blanks everywhere",
	"  a  .b  ",
	"a.b",
}}

func (s *ParserSuite) TestRound(c *C) {
	for i, test := range parseTests {
		e, err := parse(test.input)
		if err != nil {
			c.Errorf("test %d failed (parse):\nsummary: %s\ninput: %s\nexpected: %s\nerr: %s\n", i, test.summary, test.input, test.expected, err)
		} else if e.String() != test.expected {
			c.Errorf("test %d failed (parse):\nsummary: %s\ninput: %s\nexpected: %s\nactual:   %s\n", i, test.summary, test.input, test.expected, e.String())
		}
	}
}

var syntaxErrorTests = []struct {
	summary string
	input   string
	column  int
	msg     string
}{{
	"assignment",
	"a = 1",
	3,
	"assignment operator not allowed",
}, {
	"compound assignment",
	"a += 1",
	3,
	"assignment operator not allowed",
}, {
	"increment",
	"a++",
	2,
	"assignment operator not allowed",
}, {
	"concatenation assignment",
	"a .= 'x'",
	3,
	"assignment operator not allowed",
}, {
	"tilde assignment",
	"a ~= b",
	3,
	"assignment operator not allowed",
}, {
	"dollar sign",
	"$a",
	1,
	"$ sign not allowed",
}, {
	"dollar sign in a path",
	"a.b[$c]",
	5,
	"$ sign not allowed",
}, {
	"unclosed parenthesis",
	"(a",
	1,
	"missing closing )",
}, {
	"unclosed bracket",
	"a[1",
	2,
	"missing closing ]",
}, {
	"unopened parenthesis",
	"a)",
	2,
	"unexpected ')'",
}, {
	"mismatched brackets",
	"a[1)",
	4,
	"unexpected ')', expected ]",
}, {
	"empty",
	"",
	1,
	"empty expression",
}, {
	"blank",
	"   ",
	1,
	"empty expression",
}, {
	"dangling operator",
	"a +",
	4,
	"unexpected end of expression",
}, {
	"unterminated string",
	"'abc",
	1,
	"missing closing quote in string literal",
}, {
	"builtin arity",
	"strlen(a, b)",
	1,
	"strlen() takes 1 argument(s), got 2",
}, {
	"two operands",
	"a b",
	3,
	`unexpected "b"`,
}, {
	"bad number",
	"1abc",
	1,
	`invalid number "1a"`,
}, {
	"incomplete conditional",
	"a ? b",
	6,
	`expected ":" in conditional expression, got end of expression`,
}, {
	"keyword as operand",
	"and",
	1,
	`unexpected operator "and"`,
}, {
	"missing argument separator",
	"a.m(1 2)",
	7,
	`expected "," or ")" in argument list, got "2"`,
}, {
	"unknown character",
	"a # b",
	3,
	`unexpected '#'`,
}}

func (s *ParserSuite) TestSyntaxErrors(c *C) {
	for _, test := range syntaxErrorTests {
		e, err := Compile(test.input)
		c.Assert(e, IsNil, Commentf(test.summary))
		c.Assert(err, FitsTypeOf, &SyntaxError{}, Commentf(test.summary))
		serr := err.(*SyntaxError)
		c.Check(serr.Msg, Equals, test.msg, Commentf(test.summary))
		c.Check(serr.Column, Equals, test.column, Commentf(test.summary))
		c.Check(serr.Expr, Equals, test.input, Commentf(test.summary))
		c.Check(errors.Is(err, ErrSyntax), Equals, true, Commentf(test.summary))
	}
}

func (s *ParserSuite) TestSyntaxErrorMessage(c *C) {
	_, err := Compile("a = 1")
	c.Assert(err, ErrorMatches, `cannot compile expression "a = 1": column 3: assignment operator not allowed`)
}

func (s *ParserSuite) TestCompileIsCached(c *C) {
	e1, err := Compile("a.b == 1")
	c.Assert(err, IsNil)
	e2, err := Compile("a.b == 1")
	c.Assert(err, IsNil)
	c.Assert(e1 == e2, Equals, true)
	c.Assert(e1.Source(), Equals, "a.b == 1")
	c.Assert(CacheLen() > 0, Equals, true)
}

func (s *ParserSuite) TestCacheDisabled(c *C) {
	SetCacheSize(0)
	defer SetCacheSize(DefaultCacheSize)

	e1 := MustCompile("x")
	e2 := MustCompile("x")
	c.Assert(e1 == e2, Equals, false)
	c.Assert(e1.String(), Equals, e2.String())
	c.Assert(CacheLen(), Equals, 0)
}

func (s *ParserSuite) TestFailuresAreNotCached(c *C) {
	SetCacheSize(DefaultCacheSize)
	_, err := Compile("a = 1")
	c.Assert(err, NotNil)
	c.Assert(CacheLen(), Equals, 0)
}

func (s *ParserSuite) TestMustCompilePanics(c *C) {
	c.Assert(func() { MustCompile("$") }, PanicMatches, `cannot compile expression "\$": column 1: \$ sign not allowed`)
}

func (s *ParserSuite) TestRootName(c *C) {
	tests := []struct {
		input string
		name  string
		ok    bool
	}{
		{"item", "item", true},
		{"item.x.y", "item", true},
		{"a[0].b", "a", true},
		{"a.m().b", "a", true},
		{"empty(a)", "", false},
		{"m()", "", false},
		{"a + 1", "", false},
		{"'x'", "", false},
	}
	for _, test := range tests {
		name, ok := MustCompile(test.input).RootName()
		c.Check(name, Equals, test.name, Commentf(test.input))
		c.Check(ok, Equals, test.ok, Commentf(test.input))
	}
}

func FuzzCompile(f *testing.F) {
	for _, test := range parseTests {
		f.Add(test.input)
	}
	for _, test := range syntaxErrorTests {
		f.Add(test.input)
	}
	f.Fuzz(func(t *testing.T, s string) {
		e, err := parse(s)
		if err != nil {
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("unexpected error type %T", err)
			}
			return
		}
		if _, err := parse(e.String()); err != nil {
			t.Fatalf("canonical form %q of %q does not compile: %s", e.String(), s, err)
		}
	})
}
