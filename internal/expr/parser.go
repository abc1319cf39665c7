// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"strings"
)

// Expr is a compiled expression. It is immutable and safe for concurrent use.
type Expr struct {
	source string
	root   exprNode
}

// Source returns the text the expression was compiled from.
func (e *Expr) Source() string {
	return e.source
}

// String returns the canonical form of the parsed expression.
func (e *Expr) String() string {
	return e.root.String()
}

// parse compiles source without consulting the cache.
func parse(source string) (*Expr, error) {
	tokens, err := lex(source)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 1 {
		return nil, &SyntaxError{Expr: source, Column: 1, Msg: "empty expression"}
	}
	p := &parser{source: source, tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorAt(t, "unexpected %s", t)
	}
	return &Expr{source: source, root: root}, nil
}

type parser struct {
	source string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorAt(t token, format string, args ...any) error {
	return &SyntaxError{Expr: p.source, Column: t.pos + 1, Msg: fmt.Sprintf(format, args...)}
}

// skipKind advances over the next token if it has the given kind.
func (p *parser) skipKind(kind tokenKind) bool {
	if p.peek().kind == kind {
		p.advance()
		return true
	}
	return false
}

// skipOperator advances over the next token if it is one of ops, either as an
// operator or as a keyword. Keywords are matched case insensitively. It
// returns the canonical spelling of the operator found.
func (p *parser) skipOperator(ops map[string]string) (string, bool) {
	t := p.peek()
	var key string
	switch t.kind {
	case tokOperator:
		key = t.text
	case tokIdent:
		key = strings.ToLower(t.text)
	default:
		return "", false
	}
	canonical, ok := ops[key]
	if !ok {
		return "", false
	}
	p.advance()
	return canonical, true
}

var (
	orOps       = map[string]string{"or": "||", "||": "||"}
	andOps      = map[string]string{"and": "&&", "&&": "&&"}
	equalityOps = map[string]string{"==": "==", "!=": "!=", "<>": "!=", "===": "===", "!==": "!==", "eq": "==="}
	relationOps = map[string]string{
		"<": "<", ">": ">", "<=": "<=", ">=": ">=",
		"lt": "<", "gt": ">", "lte": "<=", "gte": ">=",
	}
	concatOps   = map[string]string{".": "."}
	additiveOps = map[string]string{"+": "+", "-": "-"}
	multiplyOps = map[string]string{"*": "*", "/": "/", "%": "%"}
	unaryOps    = map[string]string{"!": "!", "-": "-"}
)

// keywords may not start a property path.
var keywords = map[string]bool{
	"and": true, "or": true, "eq": true,
	"lt": true, "gt": true, "lte": true, "gte": true,
}

func (p *parser) parseExpr() (exprNode, error) {
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if !p.skipKind(tokQuestion) {
		return cond, nil
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); !p.skipKind(tokColon) {
		return nil, p.errorAt(t, "expected \":\" in conditional expression, got %s", t)
	}
	otherwise, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &conditional{cond: cond, then: then, otherwise: otherwise}, nil
}

// precedence lists the binary operator levels from lowest to highest.
var precedence = []map[string]string{
	orOps, andOps, equalityOps, relationOps, concatOps, additiveOps, multiplyOps,
}

// parseBinary parses a left associative chain of operators at the given level
// of precedence.
func (p *parser) parseBinary(level int) (exprNode, error) {
	if level == len(precedence) {
		return p.parseUnary()
	}
	x, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.skipOperator(precedence[level])
		if !ok {
			return x, nil
		}
		y, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		x = newBinary(op, x, y)
	}
}

// newBinary builds a binary node. Equality against the null literal is always
// an identity check, so that 0, "" and false are never equal to null.
func newBinary(op string, x, y exprNode) exprNode {
	if op == "==" || op == "!=" {
		if isNullLiteral(x) || isNullLiteral(y) {
			op += "="
		}
	}
	return &binary{op: op, x: x, y: y}
}

func isNullLiteral(n exprNode) bool {
	l, ok := n.(*literal)
	return ok && l.val == nil
}

func (p *parser) parseUnary() (exprNode, error) {
	if op, ok := p.skipOperator(unaryOps); ok {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (exprNode, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch t.kind {
		case tokMember:
			p.advance()
			name := t.text[1:]
			if p.skipKind(tokLParen) {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				x = &methodCall{recv: x, name: name, args: args}
				continue
			}
			x = &member{recv: x, name: name}
		case tokLBracket:
			p.advance()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if t := p.peek(); !p.skipKind(tokRBracket) {
				return nil, p.errorAt(t, "expected \"]\", got %s", t)
			}
			x = &index{recv: x, key: key}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (exprNode, error) {
	t := p.advance()
	switch t.kind {
	case tokNumber, tokString:
		return &literal{val: t.val}, nil
	case tokLParen:
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if t := p.peek(); !p.skipKind(tokRParen) {
			return nil, p.errorAt(t, "expected \")\", got %s", t)
		}
		return x, nil
	case tokIdent:
		return p.parseIdent(t)
	case tokEOF:
		return nil, p.errorAt(t, "unexpected end of expression")
	}
	return nil, p.errorAt(t, "unexpected %s", t)
}

func (p *parser) parseIdent(t token) (exprNode, error) {
	lower := strings.ToLower(t.text)
	switch lower {
	case "null":
		return &literal{val: nil}, nil
	case "true":
		return &literal{val: true}, nil
	case "false":
		return &literal{val: false}, nil
	}
	if keywords[lower] {
		return nil, p.errorAt(t, "unexpected operator %s", t)
	}
	if !p.skipKind(tokLParen) {
		return &ident{name: t.text}, nil
	}
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	if fn, ok := builtins[t.text]; ok {
		if len(args) != fn.arity {
			return nil, p.errorAt(t, "%s() takes %d argument(s), got %d", fn.name, fn.arity, len(args))
		}
		return &builtinCall{fn: fn, args: args}, nil
	}
	return &methodCall{name: t.text, args: args}, nil
}

// parseArgs parses a comma separated argument list. The opening parenthesis
// has already been consumed.
func (p *parser) parseArgs() ([]exprNode, error) {
	var args []exprNode
	if p.skipKind(tokRParen) {
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.skipKind(tokRParen) {
			return args, nil
		}
		if t := p.peek(); !p.skipKind(tokComma) {
			return nil, p.errorAt(t, "expected \",\" or \")\" in argument list, got %s", t)
		}
	}
}
