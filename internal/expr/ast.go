// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"strconv"
	"strings"
)

// An exprNode is one node of a compiled expression tree. Nodes are immutable
// once built and may be evaluated concurrently.
type exprNode interface {
	// String returns a canonical representation of the node for debugging and
	// testing purposes.
	String() string

	eval(env *Env) (any, error)
}

// literal is a constant: a string, an int64, a float64, a bool or nil.
type literal struct {
	val any
}

func (n *literal) String() string {
	switch v := n.val.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	}
	return "?"
}

// ident is the first segment of a property path.
type ident struct {
	name string
}

func (n *ident) String() string {
	return n.name
}

// member is a ".name" accessor on the value of recv.
type member struct {
	recv exprNode
	name string
}

func (n *member) String() string {
	return n.recv.String() + "." + n.name
}

// index is a "[key]" accessor on the value of recv.
type index struct {
	recv exprNode
	key  exprNode
}

func (n *index) String() string {
	return n.recv.String() + "[" + n.key.String() + "]"
}

// builtinCall calls one of the built in functions.
type builtinCall struct {
	fn   *builtin
	args []exprNode
}

func (n *builtinCall) String() string {
	return n.fn.name + "(" + joinNodes(n.args) + ")"
}

// methodCall dispatches name to the receiver value at evaluation time. A nil
// recv means the method is looked up on the evaluation context.
type methodCall struct {
	recv exprNode
	name string
	args []exprNode
}

func (n *methodCall) String() string {
	call := n.name + "(" + joinNodes(n.args) + ")"
	if n.recv == nil {
		return call
	}
	return n.recv.String() + "." + call
}

type unary struct {
	op string
	x  exprNode
}

func (n *unary) String() string {
	return "(" + n.op + n.x.String() + ")"
}

type binary struct {
	op   string
	x, y exprNode
}

func (n *binary) String() string {
	return "(" + n.x.String() + " " + n.op + " " + n.y.String() + ")"
}

type conditional struct {
	cond, then, otherwise exprNode
}

func (n *conditional) String() string {
	return "(" + n.cond.String() + " ? " + n.then.String() + " : " + n.otherwise.String() + ")"
}

func joinNodes(nodes []exprNode) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}
