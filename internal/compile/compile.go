// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package compile turns mapper markup into a registry of statement trees.
//
// A mapper document has a root element carrying a namespace attribute and
// holding sql, select, insert, update and delete elements. Every id and refid
// is qualified with the namespace, so the statement "find" of the mapper
// "user" is registered as "user.find". A refid that already contains a dot is
// taken to be qualified and refers to a fragment of any mapper.
package compile

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/canonical/sqlmapper/internal/markup"
	"github.com/canonical/sqlmapper/internal/node"
	"github.com/canonical/sqlmapper/internal/registry"
)

// Source parses a mapper document from r and compiles it.
func Source(r io.Reader) (*registry.Registry, error) {
	root, err := markup.Parse(r)
	if err != nil {
		return nil, err
	}
	return Document(root)
}

// Bytes is like Source but reads the document from b.
func Bytes(b []byte) (*registry.Registry, error) {
	return Source(bytes.NewReader(b))
}

// Document compiles a parsed mapper document, taking the namespace from the
// namespace attribute of its root element.
func Document(root *markup.Element) (*registry.Registry, error) {
	ns, _ := root.Attr("namespace")
	return Compile(strings.TrimSpace(ns), root)
}

// Compile compiles the statements held by root under namespace. An empty
// namespace leaves ids unqualified.
func Compile(namespace string, root *markup.Element) (*registry.Registry, error) {
	c := &compiler{namespace: namespace}
	reg := registry.New()
	for _, child := range root.Children {
		e, ok := child.(*markup.Element)
		if !ok {
			continue
		}
		st, err := c.statement(e)
		if err != nil {
			return nil, err
		}
		if err := reg.Add(st); err != nil {
			return nil, c.errorf(e, "", "%s", err.Error())
		}
	}
	return reg, nil
}

type compiler struct {
	namespace string
}

func (c *compiler) qualify(id string) string {
	if c.namespace == "" {
		return id
	}
	return c.namespace + "." + id
}

func (c *compiler) qualifyRef(refid string) string {
	if strings.Contains(refid, ".") {
		return refid
	}
	return c.qualify(refid)
}

func (c *compiler) errorf(e *markup.Element, attr, format string, args ...any) *Error {
	err := &Error{Namespace: c.namespace, Attr: attr, Msg: fmt.Sprintf(format, args...)}
	if e != nil {
		err.Line = e.Line
		err.Tag = e.Tag
	}
	return err
}

func (c *compiler) wrap(e *markup.Element, attr string, err error) *Error {
	return &Error{Namespace: c.namespace, Line: e.Line, Tag: e.Tag, Attr: attr, Err: err}
}

func (c *compiler) required(e *markup.Element, attr string) (string, error) {
	v, _ := e.Attr(attr)
	v = strings.TrimSpace(v)
	if v == "" {
		return "", c.errorf(e, attr, "missing required attribute")
	}
	return v, nil
}

// statement compiles a top level element.
func (c *compiler) statement(e *markup.Element) (node.Statement, error) {
	switch e.Tag {
	case "sql", "select", "insert", "update", "delete":
	default:
		if isTag(e.Tag) {
			return nil, c.errorf(e, "", "not allowed at the top level")
		}
		return nil, c.errorf(e, "", "unsupported element")
	}
	id, err := c.required(e, "id")
	if err != nil {
		return nil, err
	}
	id = c.qualify(id)

	switch e.Tag {
	case "sql":
		children, err := c.children(e)
		if err != nil {
			return nil, err
		}
		return &node.Fragment{ID: id, Children: children}, nil
	case "select":
		children, err := c.children(e)
		if err != nil {
			return nil, err
		}
		resultType, _ := e.Attr("resultType")
		return &node.Select{ID: id, ResultType: strings.TrimSpace(resultType), Children: children}, nil
	case "insert":
		return c.insert(id, e)
	case "update":
		children, err := c.children(e)
		if err != nil {
			return nil, err
		}
		return &node.Update{ID: id, Children: children}, nil
	}
	children, err := c.children(e)
	if err != nil {
		return nil, err
	}
	return &node.Delete{ID: id, Children: children}, nil
}

func (c *compiler) insert(id string, e *markup.Element) (*node.Insert, error) {
	n := &node.Insert{ID: id}
	useGeneratedKeys, _ := e.Attr("useGeneratedKeys")
	n.UseGeneratedKeys = strings.EqualFold(strings.TrimSpace(useGeneratedKeys), "true")
	keyProperty, _ := e.Attr("keyProperty")
	n.KeyProperty = strings.TrimSpace(keyProperty)

	var body []*markup.Element
	for _, child := range e.Children {
		ce, ok := child.(*markup.Element)
		if !ok || ce.Tag != "selectKey" {
			continue
		}
		if n.SelectKey != nil {
			return nil, c.errorf(ce, "", "more than one selectKey in insert %q", id)
		}
		if n.UseGeneratedKeys {
			return nil, c.errorf(ce, "", "selectKey cannot be combined with useGeneratedKeys in insert %q", id)
		}
		sk, err := c.selectKey(ce)
		if err != nil {
			return nil, err
		}
		n.SelectKey = sk
		body = append(body, ce)
	}
	children, err := c.childrenExcept(e, body)
	if err != nil {
		return nil, err
	}
	n.Children = children
	return n, nil
}

func (c *compiler) selectKey(e *markup.Element) (*node.SelectKey, error) {
	keyProperty, err := c.required(e, "keyProperty")
	if err != nil {
		return nil, err
	}
	orderAttr, _ := e.Attr("order")
	order, err := node.ParseKeyOrder(orderAttr)
	if err != nil {
		return nil, c.wrap(e, "order", err)
	}
	resultType, _ := e.Attr("resultType")
	children, err := c.children(e)
	if err != nil {
		return nil, err
	}
	return &node.SelectKey{
		KeyProperty: keyProperty,
		Order:       order,
		ResultType:  strings.TrimSpace(resultType),
		Children:    children,
	}, nil
}

func (c *compiler) children(e *markup.Element) ([]node.Node, error) {
	return c.childrenExcept(e, nil)
}

// childrenExcept compiles the children of e in document order, leaving out
// the elements in skip.
func (c *compiler) childrenExcept(e *markup.Element, skip []*markup.Element) ([]node.Node, error) {
	var nodes []node.Node
outer:
	for _, child := range e.Children {
		switch child := child.(type) {
		case *markup.Text:
			sql := strings.TrimSpace(child.Data)
			if sql == "" {
				continue
			}
			t, err := node.NewText(sql)
			if err != nil {
				return nil, c.wrap(e, "", err)
			}
			nodes = append(nodes, t)
		case *markup.Element:
			for _, s := range skip {
				if s == child {
					continue outer
				}
			}
			n, err := c.element(child)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// element compiles an element nested in a statement.
func (c *compiler) element(e *markup.Element) (node.Node, error) {
	switch e.Tag {
	case "if":
		test, err := c.required(e, "test")
		if err != nil {
			return nil, err
		}
		children, err := c.children(e)
		if err != nil {
			return nil, err
		}
		n, err := node.NewIf(test, children)
		if err != nil {
			return nil, c.wrap(e, "test", err)
		}
		return n, nil
	case "choose":
		return c.choose(e)
	case "where":
		children, err := c.children(e)
		if err != nil {
			return nil, err
		}
		return &node.Where{Children: children}, nil
	case "set":
		children, err := c.children(e)
		if err != nil {
			return nil, err
		}
		return &node.Set{Children: children}, nil
	case "foreach":
		return c.forEach(e)
	case "include":
		refid, err := c.required(e, "refid")
		if err != nil {
			return nil, err
		}
		return &node.Include{RefID: c.qualifyRef(refid)}, nil
	case "when", "otherwise":
		return nil, c.errorf(e, "", "only allowed in <choose>")
	case "selectKey":
		return nil, c.errorf(e, "", "only allowed in <insert>")
	}
	if isTag(e.Tag) {
		return nil, c.errorf(e, "", "only allowed at the top level")
	}
	return nil, c.errorf(e, "", "unsupported element")
}

func (c *compiler) choose(e *markup.Element) (*node.Choose, error) {
	n := &node.Choose{}
	for _, child := range e.Children {
		ce, ok := child.(*markup.Element)
		if !ok {
			continue
		}
		switch ce.Tag {
		case "when":
			test, err := c.required(ce, "test")
			if err != nil {
				return nil, err
			}
			children, err := c.children(ce)
			if err != nil {
				return nil, err
			}
			w, err := node.NewWhen(test, children)
			if err != nil {
				return nil, c.wrap(ce, "test", err)
			}
			n.Whens = append(n.Whens, w)
		case "otherwise":
			// Only the first otherwise counts.
			if n.Otherwise != nil {
				continue
			}
			children, err := c.children(ce)
			if err != nil {
				return nil, err
			}
			n.Otherwise = &node.Otherwise{Children: children}
		default:
			return nil, c.errorf(ce, "", "not allowed in <choose>")
		}
	}
	return n, nil
}

func (c *compiler) forEach(e *markup.Element) (*node.ForEach, error) {
	attr := func(name string) string {
		v, _ := e.Attr(name)
		return v
	}
	children, err := c.children(e)
	if err != nil {
		return nil, err
	}
	n, err := node.NewForEach(node.ForEach{
		Collection: strings.TrimSpace(attr("collection")),
		Item:       strings.TrimSpace(attr("item")),
		Index:      strings.TrimSpace(attr("index")),
		Open:       attr("open"),
		Close:      attr("close"),
		Separator:  attr("separator"),
		Children:   children,
	})
	if err != nil {
		return nil, c.wrap(e, "collection", err)
	}
	return n, nil
}

var tags = map[string]bool{
	"sql": true, "select": true, "insert": true, "update": true, "delete": true,
	"selectKey": true, "include": true, "choose": true, "when": true, "otherwise": true,
	"if": true, "set": true, "where": true, "foreach": true,
}

func isTag(tag string) bool {
	return tags[tag]
}
