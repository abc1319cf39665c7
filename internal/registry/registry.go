// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package registry maps statement categories and qualified ids to compiled
// statement trees.
package registry

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmapper/internal/expr"
	"github.com/canonical/sqlmapper/internal/node"
)

// Category is the kind of statement an id is registered under.
type Category string

const (
	CategoryFragment Category = "sql"
	CategorySelect   Category = "select"
	CategoryInsert   Category = "insert"
	CategoryUpdate   Category = "update"
	CategoryDelete   Category = "delete"
)

// Categories lists every category in a fixed order.
var Categories = []Category{CategoryFragment, CategorySelect, CategoryInsert, CategoryUpdate, CategoryDelete}

// ParseCategory returns the category named by s. "fragment" is accepted as
// an alias of "sql".
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryFragment, CategorySelect, CategoryInsert, CategoryUpdate, CategoryDelete:
		return c, nil
	case "fragment":
		return CategoryFragment, nil
	}
	return "", errors.Errorf("unknown statement category %q", s)
}

// CategoryOf returns the category a statement is registered under.
func CategoryOf(st node.Statement) Category {
	switch st.Kind() {
	case node.KindFragment:
		return CategoryFragment
	case node.KindSelect:
		return CategorySelect
	case node.KindInsert:
		return CategoryInsert
	case node.KindUpdate:
		return CategoryUpdate
	case node.KindDelete:
		return CategoryDelete
	}
	panic(fmt.Sprintf("internal error: %s is not a statement", st.Kind()))
}

// ErrNotFound is matched by NotFoundError.
var ErrNotFound = errors.New("statement not found")

// NotFoundError is returned when a lookup names an unknown statement.
type NotFoundError struct {
	Category Category
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cannot find %s statement %q", e.Category, e.ID)
}

// Is allows errors.Is(err, ErrNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type key struct {
	category Category
	id       string
}

// Registry holds compiled statements. It is built by a single goroutine and
// may be read concurrently once it has been handed out; it must not be
// modified after that.
type Registry struct {
	paramPrefix string
	methods     expr.MethodFilter
	statements  map[key]node.Statement
	// order holds the keys in registration order.
	order []key
}

// New returns an empty registry using the default parameter prefix.
func New() *Registry {
	return &Registry{
		paramPrefix: node.DefaultParamPrefix,
		statements:  make(map[key]node.Statement),
	}
}

// SetParamPrefix sets the prefix of bind parameter names. An empty prefix
// selects positional "?" placeholders.
func (r *Registry) SetParamPrefix(prefix string) {
	r.paramPrefix = prefix
}

// ParamPrefix returns the prefix of bind parameter names.
func (r *Registry) ParamPrefix() string {
	return r.paramPrefix
}

// SetMethods restricts the methods that expressions may call. A nil filter
// allows every exported method.
func (r *Registry) SetMethods(f expr.MethodFilter) {
	r.methods = f
}

// Methods returns the method filter used when rendering.
func (r *Registry) Methods() expr.MethodFilter {
	return r.methods
}

// Add registers st under its category and id. Registering the same id twice
// within a category is an error.
func (r *Registry) Add(st node.Statement) error {
	k := key{CategoryOf(st), st.StatementID()}
	if _, ok := r.statements[k]; ok {
		return errors.Errorf("cannot register %s statement %q: id already in use", k.category, k.id)
	}
	r.statements[k] = st
	r.order = append(r.order, k)
	return nil
}

// Merge copies every statement of other into r, replacing statements
// registered under the same category and id. The policy of r is kept.
func (r *Registry) Merge(other *Registry) {
	for _, k := range other.order {
		if _, ok := r.statements[k]; !ok {
			r.order = append(r.order, k)
		}
		r.statements[k] = other.statements[k]
	}
}

// Get returns the statement registered under category and id.
func (r *Registry) Get(category Category, id string) (node.Statement, error) {
	st, ok := r.statements[key{category, id}]
	if !ok {
		return nil, &NotFoundError{Category: category, ID: id}
	}
	return st, nil
}

// Fragment returns the sql fragment registered under id. It makes the
// registry usable as the fragment resolver of a render.
func (r *Registry) Fragment(id string) (*node.Fragment, bool) {
	st, ok := r.statements[key{CategoryFragment, id}]
	if !ok {
		return nil, false
	}
	f, ok := st.(*node.Fragment)
	return f, ok
}

// Statements returns the registered statements in registration order.
func (r *Registry) Statements() []node.Statement {
	sts := make([]node.Statement, len(r.order))
	for i, k := range r.order {
		sts[i] = r.statements[k]
	}
	return sts
}

// IDs returns the ids registered under category in registration order.
func (r *Registry) IDs(category Category) []string {
	var ids []string
	for _, k := range r.order {
		if k.category == category {
			ids = append(ids, k.id)
		}
	}
	return ids
}

// Len returns the number of registered statements.
func (r *Registry) Len() int {
	return len(r.order)
}

// RenderOptions returns the options a render of one of the registry's nodes
// uses: the registry's policy, with includes resolved against the registry.
func (r *Registry) RenderOptions() node.RenderOptions {
	return node.RenderOptions{
		ParamPrefix: r.paramPrefix,
		Fragments:   r,
		Methods:     r.methods,
	}
}

// RenderNode renders n, which need not be registered, against context.
func (r *Registry) RenderNode(n node.Node, context any) (string, *node.Params, error) {
	return node.Render(n, context, r.RenderOptions())
}

// Render renders the statement registered under category and id.
func (r *Registry) Render(category Category, id string, context any) (string, *node.Params, error) {
	st, err := r.Get(category, id)
	if err != nil {
		return "", nil, err
	}
	sql, params, err := r.RenderNode(st, context)
	if err != nil {
		return "", nil, errors.Wrapf(err, "cannot render %s statement %q", category, id)
	}
	return sql, params, nil
}
