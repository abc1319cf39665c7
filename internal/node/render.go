// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package node

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmapper/internal/expr"
	"github.com/canonical/sqlmapper/internal/typeinfo"
)

// DefaultParamPrefix starts bind parameter names unless configured otherwise.
const DefaultParamPrefix = ":"

// maxIncludeDepth bounds nested includes so that a fragment including itself
// fails instead of recursing forever.
const maxIncludeDepth = 32

// FragmentResolver finds the sql fragments referenced by Include nodes.
type FragmentResolver interface {
	Fragment(id string) (*Fragment, bool)
}

// RenderOptions carry the registry wide settings a render needs.
type RenderOptions struct {
	// ParamPrefix starts bind parameter names in the SQL text. When empty,
	// positional "?" placeholders are emitted instead of names.
	ParamPrefix string
	// Fragments resolves Include nodes. It may be nil when the tree has no
	// includes.
	Fragments FragmentResolver
	// Methods restricts method calls in expressions.
	Methods expr.MethodFilter
}

// state is the per-call render state. It is never shared between renders.
type state struct {
	opts   RenderOptions
	env    expr.Env
	params *Params
	// seq numbers bind parameters within one render.
	seq          int
	includeDepth int
}

// Render renders n against context and returns the SQL text, trimmed of
// surrounding blanks, and the bind parameters it references.
func Render(n Node, context any, opts RenderOptions) (string, *Params, error) {
	s := &state{
		opts: opts,
		env: expr.Env{
			Context:  context,
			Bindings: make(map[string]any),
			Methods:  opts.Methods,
		},
		params: NewParams(),
	}
	var b strings.Builder
	if err := n.render(s, &b); err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(b.String()), s.params, nil
}

func renderChildren(s *state, children []Node, b *strings.Builder) error {
	for _, c := range children {
		if err := c.render(s, b); err != nil {
			return err
		}
	}
	return nil
}

// bindParam records v as a new bind parameter for the placeholder source and
// returns the text standing for it in the SQL.
func (s *state) bindParam(source string, v any) string {
	name := sanitize(source) + "_" + strconv.Itoa(s.seq)
	s.seq++
	if s.opts.ParamPrefix == "" {
		s.params.Set(name, v)
		return "?"
	}
	name = s.opts.ParamPrefix + name
	s.params.Set(name, v)
	return name
}

// bind sets a foreach binding and returns a function restoring the previous
// state of the name.
func (s *state) bind(name string, v any) func() {
	if name == "" {
		return func() {}
	}
	prev, had := s.env.Bindings[name]
	s.env.Bindings[name] = v
	return func() {
		if had {
			s.env.Bindings[name] = prev
		} else {
			delete(s.env.Bindings, name)
		}
	}
}

// sanitize replaces everything but ASCII letters, digits and underscores with
// underscores. The result starts with a letter, as drivers require of
// parameter names.
func sanitize(source string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, strings.TrimSpace(source))
	if name == "" || !(name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z') {
		name = "p" + name
	}
	return name
}

// segment is either literal SQL or a placeholder.
type segment struct {
	literal string
	// bind is true for #{} placeholders and false for ${}.
	bind   bool
	source string
	expr   *expr.Expr
}

var placeholderRx = regexp.MustCompile(`([#$])\{([\s\S]+?)\}`)

func parseSegments(sql string) ([]segment, error) {
	var segments []segment
	last := 0
	for _, m := range placeholderRx.FindAllStringSubmatchIndex(sql, -1) {
		if m[0] > last {
			segments = append(segments, segment{literal: sql[last:m[0]]})
		}
		source := strings.TrimSpace(sql[m[4]:m[5]])
		e, err := expr.Compile(source)
		if err != nil {
			return nil, errors.Wrapf(err, "placeholder %s", sql[m[0]:m[1]])
		}
		segments = append(segments, segment{bind: sql[m[2]] == '#', source: source, expr: e})
		last = m[1]
	}
	if last < len(sql) {
		segments = append(segments, segment{literal: sql[last:]})
	}
	return segments, nil
}

func (n *Text) render(s *state, b *strings.Builder) error {
	for _, seg := range n.segments {
		if seg.expr == nil {
			b.WriteString(seg.literal)
			continue
		}
		v, err := seg.expr.Eval(&s.env)
		if err != nil {
			return err
		}
		switch {
		case seg.bind:
			b.WriteString(s.bindParam(seg.source, v))
		case v == nil:
			b.WriteString("NULL")
		default:
			b.WriteString(expr.ToString(v))
		}
	}
	b.WriteString(" ")
	return nil
}

func (n *If) render(s *state, b *strings.Builder) error {
	ok, err := n.test.Truthy(&s.env)
	if err != nil || !ok {
		return err
	}
	return renderChildren(s, n.Children, b)
}

func (n *When) render(s *state, b *strings.Builder) error {
	ok, err := n.test.Truthy(&s.env)
	if err != nil || !ok {
		return err
	}
	return renderChildren(s, n.Children, b)
}

func (n *Otherwise) render(s *state, b *strings.Builder) error {
	return renderChildren(s, n.Children, b)
}

func (n *Choose) render(s *state, b *strings.Builder) error {
	for _, w := range n.Whens {
		ok, err := w.test.Truthy(&s.env)
		if err != nil {
			return err
		}
		if ok {
			return renderChildren(s, w.Children, b)
		}
	}
	if n.Otherwise != nil {
		return renderChildren(s, n.Otherwise.Children, b)
	}
	return nil
}

var leadingBoolRx = regexp.MustCompile(`(?i)^\s*(or|and)\s+`)

func (n *Where) render(s *state, b *strings.Builder) error {
	var inner strings.Builder
	if err := renderChildren(s, n.Children, &inner); err != nil {
		return err
	}
	q := strings.TrimSpace(inner.String())
	if q == "" {
		return nil
	}
	b.WriteString(" where ")
	b.WriteString(leadingBoolRx.ReplaceAllString(q, " "))
	b.WriteString(" ")
	return nil
}

func (n *Set) render(s *state, b *strings.Builder) error {
	var inner strings.Builder
	if err := renderChildren(s, n.Children, &inner); err != nil {
		return err
	}
	q := strings.Trim(inner.String(), ", \t\r\n")
	if q == "" {
		return nil
	}
	b.WriteString("set ")
	b.WriteString(q)
	b.WriteString(" ")
	return nil
}

func (n *ForEach) render(s *state, b *strings.Builder) error {
	coll := s.env.Context
	if n.collection != nil {
		v, err := n.collection.Eval(&s.env)
		if err != nil {
			return err
		}
		coll = v
	}
	entries, err := iterate(coll)
	if err != nil {
		return errors.Wrapf(err, "foreach collection %q", n.Collection)
	}
	if len(entries) == 0 {
		return nil
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		restoreItem := s.bind(n.Item, e.value)
		restoreIndex := s.bind(n.Index, e.key)
		var item strings.Builder
		err := renderChildren(s, n.Children, &item)
		restoreIndex()
		restoreItem()
		if err != nil {
			return err
		}
		parts = append(parts, strings.TrimSpace(item.String()))
	}
	b.WriteString(n.Open)
	b.WriteString(strings.Join(parts, n.Separator))
	b.WriteString(n.Close)
	b.WriteString(" ")
	return nil
}

type entry struct {
	key, value any
}

// iterate lists the entries of a slice, array or map. Map entries are sorted
// by key. Null has no entries.
func iterate(coll any) ([]entry, error) {
	if coll == nil {
		return nil, nil
	}
	rv := typeinfo.Indirect(reflect.ValueOf(coll))
	switch rv.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Slice, reflect.Array:
		entries := make([]entry, rv.Len())
		for i := range entries {
			entries[i] = entry{key: i, value: rv.Index(i).Interface()}
		}
		return entries, nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return lessKey(keys[i], keys[j])
		})
		entries := make([]entry, len(keys))
		for i, k := range keys {
			entries[i] = entry{key: k.Interface(), value: rv.MapIndex(k).Interface()}
		}
		return entries, nil
	}
	return nil, errors.Errorf("cannot iterate over %s", rv.Type())
}

func lessKey(a, b reflect.Value) bool {
	a, b = typeinfo.Indirect(a), typeinfo.Indirect(b)
	switch {
	case a.CanInt() && b.CanInt():
		return a.Int() < b.Int()
	case a.CanUint() && b.CanUint():
		return a.Uint() < b.Uint()
	case a.Kind() == reflect.String && b.Kind() == reflect.String:
		return a.String() < b.String()
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func (n *Include) render(s *state, b *strings.Builder) error {
	if s.opts.Fragments == nil {
		return &UnresolvedReferenceError{Ref: n.RefID}
	}
	f, ok := s.opts.Fragments.Fragment(n.RefID)
	if !ok {
		return &UnresolvedReferenceError{Ref: n.RefID}
	}
	if s.includeDepth >= maxIncludeDepth {
		return errors.Errorf("cannot include %q: includes nested deeper than %d", n.RefID, maxIncludeDepth)
	}
	s.includeDepth++
	defer func() { s.includeDepth-- }()
	return f.render(s, b)
}

func (n *Fragment) render(s *state, b *strings.Builder) error {
	return renderChildren(s, n.Children, b)
}

func (n *Select) render(s *state, b *strings.Builder) error {
	return renderChildren(s, n.Children, b)
}

func (n *SelectKey) render(s *state, b *strings.Builder) error {
	return renderChildren(s, n.Children, b)
}

// render renders the insert body. The SelectKey is not part of it.
func (n *Insert) render(s *state, b *strings.Builder) error {
	return renderChildren(s, n.Children, b)
}

func (n *Update) render(s *state, b *strings.Builder) error {
	return renderChildren(s, n.Children, b)
}

func (n *Delete) render(s *state, b *strings.Builder) error {
	return renderChildren(s, n.Children, b)
}

func describe(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", v)
}
