// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package node

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmapper/internal/expr"
)

// Kind identifies a node variant. Kinds are spelled like the markup tags
// they are compiled from.
type Kind string

const (
	KindText      Kind = "text"
	KindIf        Kind = "if"
	KindChoose    Kind = "choose"
	KindWhen      Kind = "when"
	KindOtherwise Kind = "otherwise"
	KindWhere     Kind = "where"
	KindSet       Kind = "set"
	KindForEach   Kind = "foreach"
	KindInclude   Kind = "include"
	KindFragment  Kind = "sql"
	KindSelect    Kind = "select"
	KindSelectKey Kind = "selectKey"
	KindInsert    Kind = "insert"
	KindUpdate    Kind = "update"
	KindDelete    Kind = "delete"
)

// A Node is one element of a compiled statement tree. The set of variants is
// closed: every implementation lives in this package.
type Node interface {
	// Kind returns the node variant.
	Kind() Kind

	// String returns the node's representation for debugging purposes.
	String() string

	render(s *state, b *strings.Builder) error
}

// A Statement is a node that can be registered and looked up by id.
type Statement interface {
	Node
	StatementID() string
}

// Text is literal SQL with #{} and ${} placeholders.
type Text struct {
	SQL      string
	segments []segment
}

// NewText parses the placeholders in sql and compiles their expressions.
func NewText(sql string) (*Text, error) {
	segments, err := parseSegments(sql)
	if err != nil {
		return nil, err
	}
	return &Text{SQL: sql, segments: segments}, nil
}

func (n *Text) Kind() Kind { return KindText }

func (n *Text) String() string {
	return "Text[" + strconv.Quote(n.SQL) + "]"
}

// If renders its children when Test is truthy.
type If struct {
	Test     string
	test     *expr.Expr
	Children []Node
}

func NewIf(test string, children []Node) (*If, error) {
	e, err := compileTest(KindIf, test)
	if err != nil {
		return nil, err
	}
	return &If{Test: test, test: e, Children: children}, nil
}

func (n *If) Kind() Kind { return KindIf }

func (n *If) String() string {
	return "If[" + strconv.Quote(n.Test) + childrenString(n.Children) + "]"
}

// When is a branch of a Choose.
type When struct {
	Test     string
	test     *expr.Expr
	Children []Node
}

func NewWhen(test string, children []Node) (*When, error) {
	e, err := compileTest(KindWhen, test)
	if err != nil {
		return nil, err
	}
	return &When{Test: test, test: e, Children: children}, nil
}

func (n *When) Kind() Kind { return KindWhen }

func (n *When) String() string {
	return "When[" + strconv.Quote(n.Test) + childrenString(n.Children) + "]"
}

// Otherwise is the fallback branch of a Choose.
type Otherwise struct {
	Children []Node
}

func (n *Otherwise) Kind() Kind { return KindOtherwise }

func (n *Otherwise) String() string {
	return "Otherwise[" + strings.TrimPrefix(childrenString(n.Children), " ") + "]"
}

// Choose renders the first When whose test is truthy, or else the Otherwise.
type Choose struct {
	Whens []*When
	// Otherwise may be nil.
	Otherwise *Otherwise
}

func (n *Choose) Kind() Kind { return KindChoose }

func (n *Choose) String() string {
	nodes := make([]Node, 0, len(n.Whens)+1)
	for _, w := range n.Whens {
		nodes = append(nodes, w)
	}
	if n.Otherwise != nil {
		nodes = append(nodes, n.Otherwise)
	}
	return "Choose[" + strings.TrimPrefix(childrenString(nodes), " ") + "]"
}

// Where renders its children as a where clause, dropping a leading "and" or
// "or". Nothing is emitted when the children render to blanks.
type Where struct {
	Children []Node
}

func (n *Where) Kind() Kind { return KindWhere }

func (n *Where) String() string {
	return "Where[" + strings.TrimPrefix(childrenString(n.Children), " ") + "]"
}

// Set renders its children as a set clause, trimming outer commas.
type Set struct {
	Children []Node
}

func (n *Set) Kind() Kind { return KindSet }

func (n *Set) String() string {
	return "Set[" + strings.TrimPrefix(childrenString(n.Children), " ") + "]"
}

// ForEach renders its children once per entry of a collection.
type ForEach struct {
	// Collection is the expression for the collection. When empty the
	// context itself is iterated.
	Collection string
	collection *expr.Expr
	Item       string
	Index      string
	Open       string
	Close      string
	Separator  string
	Children   []Node
}

func NewForEach(f ForEach) (*ForEach, error) {
	n := f
	if strings.TrimSpace(f.Collection) != "" {
		e, err := expr.Compile(f.Collection)
		if err != nil {
			return nil, errors.Wrap(err, "foreach collection")
		}
		n.collection = e
	}
	return &n, nil
}

func (n *ForEach) Kind() Kind { return KindForEach }

func (n *ForEach) String() string {
	return "ForEach[" + strconv.Quote(n.Collection) +
		" item=" + strconv.Quote(n.Item) +
		" index=" + strconv.Quote(n.Index) +
		" open=" + strconv.Quote(n.Open) +
		" close=" + strconv.Quote(n.Close) +
		" separator=" + strconv.Quote(n.Separator) +
		childrenString(n.Children) + "]"
}

// Include renders the fragment named RefID, resolved when rendering.
type Include struct {
	RefID string
}

func (n *Include) Kind() Kind { return KindInclude }

func (n *Include) String() string {
	return "Include[" + strconv.Quote(n.RefID) + "]"
}

// Fragment is a reusable piece of SQL declared with the sql tag.
type Fragment struct {
	ID       string
	Children []Node
}

func (n *Fragment) Kind() Kind          { return KindFragment }
func (n *Fragment) StatementID() string { return n.ID }

func (n *Fragment) String() string {
	return "Fragment[" + strconv.Quote(n.ID) + childrenString(n.Children) + "]"
}

// Select is a query statement.
type Select struct {
	ID         string
	ResultType string
	Children   []Node
}

func (n *Select) Kind() Kind          { return KindSelect }
func (n *Select) StatementID() string { return n.ID }

func (n *Select) String() string {
	return "Select[" + strconv.Quote(n.ID) + " resultType=" + strconv.Quote(n.ResultType) + childrenString(n.Children) + "]"
}

// KeyOrder says when a SelectKey runs relative to its Insert.
type KeyOrder string

const (
	KeyBefore KeyOrder = "before"
	KeyAfter  KeyOrder = "after"
)

// ParseKeyOrder reads the order attribute of a selectKey. The empty string
// means after.
func ParseKeyOrder(s string) (KeyOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "before":
		return KeyBefore, nil
	case "after", "":
		return KeyAfter, nil
	}
	return "", errors.Errorf("invalid selectKey order %q", s)
}

// SelectKey is the query producing the generated key of an Insert. It is
// never rendered as part of the Insert body.
type SelectKey struct {
	KeyProperty string
	Order       KeyOrder
	ResultType  string
	Children    []Node
}

func (n *SelectKey) Kind() Kind { return KindSelectKey }

func (n *SelectKey) String() string {
	return "SelectKey[" + strconv.Quote(n.KeyProperty) + " order=" + string(n.Order) +
		" resultType=" + strconv.Quote(n.ResultType) + childrenString(n.Children) + "]"
}

// Insert is an insert statement.
type Insert struct {
	ID               string
	UseGeneratedKeys bool
	KeyProperty      string
	// SelectKey may be nil.
	SelectKey *SelectKey
	Children  []Node
}

func (n *Insert) Kind() Kind          { return KindInsert }
func (n *Insert) StatementID() string { return n.ID }

func (n *Insert) String() string {
	s := "Insert[" + strconv.Quote(n.ID)
	if n.UseGeneratedKeys {
		s += " useGeneratedKeys keyProperty=" + strconv.Quote(n.KeyProperty)
	}
	if n.SelectKey != nil {
		s += " " + n.SelectKey.String()
	}
	return s + childrenString(n.Children) + "]"
}

// Update is an update statement.
type Update struct {
	ID       string
	Children []Node
}

func (n *Update) Kind() Kind          { return KindUpdate }
func (n *Update) StatementID() string { return n.ID }

func (n *Update) String() string {
	return "Update[" + strconv.Quote(n.ID) + childrenString(n.Children) + "]"
}

// Delete is a delete statement.
type Delete struct {
	ID       string
	Children []Node
}

func (n *Delete) Kind() Kind          { return KindDelete }
func (n *Delete) StatementID() string { return n.ID }

func (n *Delete) String() string {
	return "Delete[" + strconv.Quote(n.ID) + childrenString(n.Children) + "]"
}

func compileTest(kind Kind, test string) (*expr.Expr, error) {
	e, err := expr.Compile(test)
	if err != nil {
		return nil, errors.Wrapf(err, "%s test", kind)
	}
	return e, nil
}

func childrenString(children []Node) string {
	var sb strings.Builder
	for _, c := range children {
		sb.WriteString(" ")
		sb.WriteString(c.String())
	}
	return sb.String()
}
