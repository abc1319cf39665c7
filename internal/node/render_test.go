// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package node

import (
	"strings"

	"github.com/pkg/errors"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmapper/internal/expr"
)

type RenderSuite struct{}

var _ = Suite(&RenderSuite{})

var named = RenderOptions{ParamPrefix: DefaultParamPrefix}

func (s *RenderSuite) render(c *C, n Node, ctx any) (string, *Params) {
	sql, params, err := Render(n, ctx, named)
	c.Assert(err, IsNil)
	return sql, params
}

func (s *RenderSuite) TestStaticTextIgnoresContext(c *C) {
	n := &Select{Children: []Node{
		text(c, "select * from person"),
		&Where{Children: []Node{text(c, "id = 1")}},
	}}
	for _, ctx := range []any{nil, M{"id": 7}, 42, []int{1, 2}} {
		sql, params := s.render(c, n, ctx)
		c.Check(sql, Equals, "select * from person  where id = 1")
		c.Check(params.Len(), Equals, 0)
	}
}

func (s *RenderSuite) TestTruthiness(c *C) {
	var tests = []struct {
		test     string
		ctx      any
		rendered bool
	}{
		{"a != null", M{"a": nil}, false},
		{"a != null", M{}, false},
		{"a != null", M{"a": 0}, true},
		{"!empty(a)", M{"a": 0}, false},
		{"!empty(a)", M{"a": "0"}, false},
		{"!empty(a)", M{"a": []int{}}, false},
		{"!empty(a)", M{"a": []int{0}}, true},
		{"a == 0", M{"a": 0}, true},
		{"a == null", M{"a": 0}, false},
		{"a", M{"a": ""}, false},
		{"a", M{"a": "x"}, true},
		{"a", M{"a": 0.0}, false},
		{"a and b", M{"a": 1, "b": 1}, true},
		{"a or b", M{"a": 0, "b": 0}, false},
	}
	for _, t := range tests {
		comment := Commentf("test %q with %v", t.test, t.ctx)
		n := ifNode(c, t.test, text(c, "x"))
		sql, _ := s.render(c, n, t.ctx)
		c.Check(sql == "x", Equals, t.rendered, comment)

		w := &Choose{Whens: []*When{when(c, t.test, text(c, "x"))}}
		sql, _ = s.render(c, w, t.ctx)
		c.Check(sql == "x", Equals, t.rendered, comment)
	}
}

func (s *RenderSuite) TestChoose(c *C) {
	n := &Choose{
		Whens: []*When{
			when(c, "a == 1", text(c, "one")),
			when(c, "a >= 1", text(c, "many")),
		},
		Otherwise: &Otherwise{Children: []Node{text(c, "none")}},
	}
	for _, t := range []struct {
		a        any
		expected string
	}{
		{1, "one"},
		{2, "many"},
		{0, "none"},
		{nil, "none"},
	} {
		sql, _ := s.render(c, n, M{"a": t.a})
		c.Check(sql, Equals, t.expected)
	}

	n.Otherwise = nil
	sql, _ := s.render(c, n, M{"a": 0})
	c.Check(sql, Equals, "")
}

func (s *RenderSuite) TestWhere(c *C) {
	var tests = []struct {
		body     string
		expected string
	}{
		{" and x=1 and y=2", " where  x=1 and y=2 "},
		{"AND x=1", " where  x=1 "},
		{"  Or x=1 or y=2", " where  x=1 or y=2 "},
		{"android = 1", " where android = 1 "},
		{"x=1 and y=2", " where x=1 and y=2 "},
		{"   ", ""},
	}
	for _, t := range tests {
		n := &Where{Children: []Node{text(c, t.body)}}
		var b strings.Builder
		st := &state{opts: named, params: NewParams()}
		c.Assert(n.render(st, &b), IsNil)
		c.Check(b.String(), Equals, t.expected, Commentf("body %q", t.body))
	}

	// Conditions that all fail leave no where clause behind.
	n := &Select{Children: []Node{
		text(c, "select * from t"),
		&Where{Children: []Node{
			ifNode(c, "a", text(c, "and a = #{a}")),
			ifNode(c, "b", text(c, "and b = #{b}")),
		}},
	}}
	sql, _ := s.render(c, n, M{})
	c.Check(sql, Equals, "select * from t")
	sql, params := s.render(c, n, M{"b": 2})
	c.Check(sql, Equals, "select * from t  where  b = :b_0")
	c.Check(params.Map(), DeepEquals, map[string]any{":b_0": 2})
}

func (s *RenderSuite) TestSet(c *C) {
	n := &Set{Children: []Node{text(c, " ,a=1, ,b=2,")}}
	sql, _ := s.render(c, n, nil)
	c.Check(sql, Equals, "set a=1, ,b=2")

	upd := &Update{Children: []Node{
		text(c, "update t"),
		&Set{Children: []Node{
			ifNode(c, "a", text(c, "a = #{a},")),
			ifNode(c, "b", text(c, "b = #{b},")),
		}},
		text(c, "where id = #{id}"),
	}}
	sql, params := s.render(c, upd, M{"a": "x", "id": 4})
	c.Check(sql, Equals, "update t set a = :a_0 where id = :id_1")
	c.Check(params.Values(), DeepEquals, []any{"x", 4})

	sql, _ = s.render(c, upd, M{"id": 4})
	c.Check(sql, Equals, "update t where id = :id_0")
}

func (s *RenderSuite) TestForEachEmpty(c *C) {
	n := forEach(c, ForEach{
		Collection: "list",
		Item:       "item",
		Open:       "(",
		Close:      ")",
		Separator:  ",",
		Children:   []Node{text(c, "#{item}")},
	})
	for _, list := range []any{nil, []int{}, map[string]int{}} {
		sql, params := s.render(c, n, M{"list": list})
		c.Check(sql, Equals, "")
		c.Check(params.Len(), Equals, 0)
	}
}

func (s *RenderSuite) TestForEachUniqueParams(c *C) {
	n := forEach(c, ForEach{
		Collection: "list",
		Item:       "item",
		Open:       "(",
		Close:      ")",
		Separator:  ",",
		Children:   []Node{text(c, "#{item.x}")},
	})
	ctx := M{"list": []M{{"x": 10}, {"x": 20}, {"x": 30}}}
	sql, params := s.render(c, n, ctx)
	c.Assert(sql, Equals, "(:item_x_0,:item_x_1,:item_x_2)")
	c.Assert(params.Map(), DeepEquals, map[string]any{
		":item_x_0": 10,
		":item_x_1": 20,
		":item_x_2": 30,
	})
	_, ok := ctx["item"]
	c.Assert(ok, Equals, false)
}

func (s *RenderSuite) TestForEachPositional(c *C) {
	n := &Select{Children: []Node{
		text(c, "select * from t where a = #{a} and id in"),
		forEach(c, ForEach{
			Collection: "ids",
			Item:       "id",
			Open:       "(",
			Close:      ")",
			Separator:  ", ",
			Children:   []Node{text(c, "#{id}")},
		}),
	}}
	sql, params, err := Render(n, M{"a": "x", "ids": []int{7, 8}}, RenderOptions{})
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "select * from t where a = ? and id in (?, ?)")
	c.Assert(params.Values(), DeepEquals, []any{"x", 7, 8})
	c.Assert(params.Names(), DeepEquals, []string{"a_0", "id_1", "id_2"})
}

func (s *RenderSuite) TestForEachMapIndex(c *C) {
	n := forEach(c, ForEach{
		Collection: "m",
		Item:       "v",
		Index:      "k",
		Separator:  ", ",
		Children:   []Node{text(c, "${k} = #{v}")},
	})
	sql, params := s.render(c, n, M{"m": map[string]int{"b": 2, "a": 1, "c": 3}})
	c.Assert(sql, Equals, "a = :v_0, b = :v_1, c = :v_2")
	c.Assert(params.Values(), DeepEquals, []any{1, 2, 3})

	n = forEach(c, ForEach{
		Collection: "list",
		Index:      "i",
		Separator:  " ",
		Children:   []Node{text(c, "${i}")},
	})
	sql, _ = s.render(c, n, M{"list": [3]string{"x", "y", "z"}})
	c.Assert(sql, Equals, "0 1 2")
}

func (s *RenderSuite) TestForEachRestoresBindings(c *C) {
	n := &Select{Children: []Node{
		forEach(c, ForEach{
			Collection: "outer",
			Item:       "x",
			Separator:  ";",
			Children: []Node{
				forEach(c, ForEach{
					Collection: "x",
					Item:       "x",
					Separator:  ",",
					Children:   []Node{text(c, "${x}")},
				}),
				text(c, "${count(x)}"),
			},
		}),
		text(c, "${x}"),
	}}
	sql, _ := s.render(c, n, M{"x": "ctx", "outer": [][]int{{1, 2}, {3}}})
	c.Assert(sql, Equals, "1,2 2;3 1 ctx")
}

func (s *RenderSuite) TestForEachOverContext(c *C) {
	n := forEach(c, ForEach{
		Item:      "v",
		Separator: ",",
		Children:  []Node{text(c, "#{v}")},
	})
	sql, params := s.render(c, n, []string{"a", "b"})
	c.Assert(sql, Equals, ":v_0,:v_1")
	c.Assert(params.Values(), DeepEquals, []any{"a", "b"})
}

func (s *RenderSuite) TestForEachNotIterable(c *C) {
	n := forEach(c, ForEach{Collection: "n", Item: "v", Children: []Node{text(c, "#{v}")}})
	_, _, err := Render(n, M{"n": 5}, named)
	c.Assert(err, ErrorMatches, `foreach collection "n": cannot iterate over int`)
}

func (s *RenderSuite) TestLiteralSubstitution(c *C) {
	n := text(c, "select * from ${table} limit ${n}")
	sql, params := s.render(c, n, M{"table": "person", "n": nil})
	c.Assert(sql, Equals, "select * from person limit NULL")
	c.Assert(params.Len(), Equals, 0)

	sql, _ = s.render(c, n, M{"table": "person", "n": 10})
	c.Assert(sql, Equals, "select * from person limit 10")
}

func (s *RenderSuite) TestNumericMemberPaths(c *C) {
	n := text(c, "select * from ${tables.0} where id = #{ids.1}")
	sql, params := s.render(c, n, M{"tables": []string{"person", "team"}, "ids": []int{5, 6}})
	c.Assert(sql, Equals, "select * from person where id = :ids_1_0")
	c.Assert(params.Values(), DeepEquals, []any{6})
}

func (s *RenderSuite) TestBindPlaceholders(c *C) {
	n := text(c, "select * from t where a = #{ a } and b = #{a.b} and c = #{ 'x' . a }")
	sql, params := s.render(c, n, M{"a": "q"})
	c.Assert(sql, Equals, "select * from t where a = :a_0 and b = :a_b_1 and c = :p_x____a_2")
	c.Assert(params.Values(), DeepEquals, []any{"q", nil, "xq"})

	sql, params, err := Render(n, M{"a": "q"}, RenderOptions{ParamPrefix: "@"})
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "select * from t where a = @a_0 and b = @a_b_1 and c = @p_x____a_2")
	c.Assert(params.Names(), DeepEquals, []string{"@a_0", "@a_b_1", "@p_x____a_2"})
}

func (s *RenderSuite) TestEvalError(c *C) {
	n := text(c, "#{a.missing()}")
	_, _, err := Render(n, M{}, named)
	c.Assert(err, ErrorMatches, `cannot evaluate expression "a.missing\(\)": cannot call method missing on null`)
	c.Assert(errors.Is(err, expr.ErrEval), Equals, true)
}

type greeter struct{}

func (greeter) Greet(name string) string { return "hello " + name }

func (s *RenderSuite) TestMethodPolicy(c *C) {
	n := text(c, "${g.greet('bob')}")
	ctx := M{"g": greeter{}}

	sql, _ := s.render(c, n, ctx)
	c.Assert(sql, Equals, "hello bob")

	_, _, err := Render(n, ctx, RenderOptions{ParamPrefix: ":", Methods: expr.DenyAllMethods})
	c.Assert(err, ErrorMatches, `.*method Greet of type node.greeter not allowed`)

	sql, _, err = Render(n, ctx, RenderOptions{ParamPrefix: ":", Methods: expr.AllowMethods("Greet")})
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "hello bob")
}

func (s *RenderSuite) TestInclude(c *C) {
	frags := fragments{}
	n := &Select{Children: []Node{
		text(c, "select"),
		&Include{RefID: "ns.cols"},
		text(c, "from t"),
	}}
	opts := RenderOptions{ParamPrefix: ":", Fragments: frags}

	_, _, err := Render(n, nil, opts)
	c.Assert(err, ErrorMatches, `cannot include "ns.cols": no such sql fragment`)
	c.Assert(errors.Is(err, ErrUnresolvedReference), Equals, true)
	var refErr *UnresolvedReferenceError
	c.Assert(errors.As(err, &refErr), Equals, true)
	c.Assert(refErr.Ref, Equals, "ns.cols")

	// Fragments are looked up when rendering, so they may be added after
	// the statement that references them was built.
	frags["ns.cols"] = &Fragment{ID: "ns.cols", Children: []Node{text(c, "id, #{x} as x")}}
	sql, params, err := Render(n, M{"x": 1}, opts)
	c.Assert(err, IsNil)
	c.Assert(sql, Equals, "select id, :x_0 as x from t")
	c.Assert(params.Values(), DeepEquals, []any{1})

	_, _, err = Render(n, nil, RenderOptions{ParamPrefix: ":"})
	c.Assert(errors.Is(err, ErrUnresolvedReference), Equals, true)
}

func (s *RenderSuite) TestIncludeCycle(c *C) {
	frags := fragments{}
	frags["ns.a"] = &Fragment{ID: "ns.a", Children: []Node{text(c, "a"), &Include{RefID: "ns.b"}}}
	frags["ns.b"] = &Fragment{ID: "ns.b", Children: []Node{text(c, "b"), &Include{RefID: "ns.a"}}}
	_, _, err := Render(&Include{RefID: "ns.a"}, nil, RenderOptions{Fragments: frags})
	c.Assert(err, ErrorMatches, `cannot include "ns.[ab]": includes nested deeper than 32`)
}

func (s *RenderSuite) TestInsertExcludesSelectKey(c *C) {
	n := &Insert{
		ID: "ns.add",
		SelectKey: &SelectKey{
			KeyProperty: "id",
			Order:       KeyBefore,
			Children:    []Node{text(c, "select nextval('seq')")},
		},
		Children: []Node{text(c, "insert into t (id, name) values (${id}, #{name})")},
	}
	sql, params := s.render(c, n, M{"id": 9, "name": "x"})
	c.Assert(sql, Equals, "insert into t (id, name) values (9, :name_0)")
	c.Assert(params.Values(), DeepEquals, []any{"x"})

	sql, _ = s.render(c, n.SelectKey, nil)
	c.Assert(sql, Equals, "select nextval('seq')")
}

func (s *RenderSuite) TestRenderDoesNotMutateContext(c *C) {
	n := forEach(c, ForEach{
		Collection: "list",
		Item:       "item",
		Index:      "idx",
		Children:   []Node{text(c, "#{item}")},
	})
	ctx := M{"list": []int{1, 2}}
	_, _ = s.render(c, n, ctx)
	c.Assert(ctx, DeepEquals, M{"list": []int{1, 2}})
}
