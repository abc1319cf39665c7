// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	// tokMember is a ".name" accessor. The dot must be directly followed by
	// the name, otherwise it is the concatenation operator. A name of digits,
	// as in "list.0", indexes the value it directly follows.
	tokMember
	tokOperator
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokQuestion
	tokColon
)

type token struct {
	kind tokenKind
	text string
	// val holds the decoded value of number and string literals.
	val any
	pos int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return strconv.Quote(t.text)
}

// operators lists the accepted operators, longest first so that the lexer
// always takes the longest match.
var operators = []string{
	"===", "!==",
	"==", "!=", "<>", "<=", ">=", "&&", "||",
	"<", ">", "+", "-", "*", "/", "%", "!", ".",
}

// assignments are rejected wherever they appear.
var assignments = []string{
	"++", "--", "+=", "-=", "*=", "/=", "%=", ".=", "~=", "=",
}

type lexer struct {
	input string
	pos   int
	// nextPos is start of the next char.
	nextPos int
	// char is the rune starting at pos. char is set to 0 when pos reaches the
	// end of input.
	char rune
	// open holds the unclosed brackets seen so far.
	open   []token
	tokens []token
}

// lex splits input into tokens. It checks that brackets and parentheses are
// balanced and refuses assignment operators and the $ sign.
func lex(input string) ([]token, error) {
	l := &lexer{input: input}
	l.advanceChar()
	for {
		l.skipBlanks()
		if l.pos >= len(l.input) {
			break
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
	if len(l.open) > 0 {
		t := l.open[len(l.open)-1]
		return nil, l.errorAt(t.pos, "missing closing %s", closerOf(t.kind))
	}
	l.tokens = append(l.tokens, token{kind: tokEOF, pos: len(input)})
	return l.tokens, nil
}

func (l *lexer) advanceChar() bool {
	if l.nextPos >= len(l.input) {
		l.char = 0
		l.pos = l.nextPos
		return false
	}
	var size int
	l.char, size = utf8.DecodeRuneInString(l.input[l.nextPos:])
	l.pos = l.nextPos
	l.nextPos += size
	return true
}

// peek returns the rune following the current one.
func (l *lexer) peek() rune {
	if l.nextPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.nextPos:])
	return r
}

func (l *lexer) skipBlanks() {
	for l.pos < len(l.input) && unicode.IsSpace(l.char) {
		l.advanceChar()
	}
}

func (l *lexer) errorAt(pos int, format string, args ...any) error {
	return &SyntaxError{Expr: l.input, Column: pos + 1, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) emit(kind tokenKind, start int, val any) {
	l.tokens = append(l.tokens, token{kind: kind, text: l.input[start:l.pos], val: val, pos: start})
}

func (l *lexer) next() error {
	start := l.pos
	switch c := l.char; {
	case c == '"' || c == '\'':
		return l.lexString()
	case isDigit(c):
		return l.lexNumber()
	case isInitialNameChar(c):
		l.skipName()
		l.emit(tokIdent, start, nil)
		return nil
	case c == '.' && (isInitialNameChar(l.peek()) || isDigit(l.peek()) && l.afterOperand()):
		l.advanceChar()
		l.skipName()
		l.emit(tokMember, start, nil)
		return nil
	case c == '$':
		return l.errorAt(start, "$ sign not allowed")
	case c == '(' || c == '[':
		kind := tokLParen
		if c == '[' {
			kind = tokLBracket
		}
		l.advanceChar()
		l.emit(kind, start, nil)
		l.open = append(l.open, l.tokens[len(l.tokens)-1])
		return nil
	case c == ')' || c == ']':
		kind := tokRParen
		if c == ']' {
			kind = tokRBracket
		}
		if len(l.open) == 0 {
			return l.errorAt(start, "unexpected %q", c)
		}
		opener := l.open[len(l.open)-1]
		if closerOf(opener.kind) != string(c) {
			return l.errorAt(start, "unexpected %q, expected %s", c, closerOf(opener.kind))
		}
		l.open = l.open[:len(l.open)-1]
		l.advanceChar()
		l.emit(kind, start, nil)
		return nil
	case c == ',':
		l.advanceChar()
		l.emit(tokComma, start, nil)
		return nil
	case c == '?':
		l.advanceChar()
		l.emit(tokQuestion, start, nil)
		return nil
	case c == ':':
		l.advanceChar()
		l.emit(tokColon, start, nil)
		return nil
	}
	return l.lexOperator()
}

// afterOperand reports whether the last token ends a value and touches the
// current position, so that a following ".0" is a member and not a number.
func (l *lexer) afterOperand() bool {
	if len(l.tokens) == 0 {
		return false
	}
	last := l.tokens[len(l.tokens)-1]
	if last.pos+len(last.text) != l.pos {
		return false
	}
	switch last.kind {
	case tokIdent:
		return !keywords[strings.ToLower(last.text)]
	case tokMember, tokRParen, tokRBracket:
		return true
	}
	return false
}

func closerOf(kind tokenKind) string {
	if kind == tokLBracket {
		return "]"
	}
	return ")"
}

func (l *lexer) lexOperator() error {
	rest := l.input[l.pos:]
	// An operator that is a prefix of an assignment ("=" of "==") has already
	// been taken by the loop below, so checking assignments second is safe for
	// everything except the assignments themselves.
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			if isAssignment(rest) {
				break
			}
			start := l.pos
			for range op {
				l.advanceChar()
			}
			l.emit(tokOperator, start, nil)
			return nil
		}
	}
	if isAssignment(rest) {
		return l.errorAt(l.pos, "assignment operator not allowed")
	}
	return l.errorAt(l.pos, "unexpected %q", l.char)
}

// isAssignment reports whether s starts with an assignment operator. The
// comparison operators sharing a prefix with assignments are excluded.
func isAssignment(s string) bool {
	for _, cmp := range []string{"===", "!==", "==", "!=", "<=", ">="} {
		if strings.HasPrefix(s, cmp) {
			return false
		}
	}
	for _, op := range assignments {
		if strings.HasPrefix(s, op) {
			return true
		}
	}
	return false
}

func (l *lexer) lexString() error {
	start := l.pos
	quote := l.char
	var sb strings.Builder
	l.advanceChar()
	for l.pos < len(l.input) {
		switch l.char {
		case quote:
			l.advanceChar()
			l.emit(tokString, start, sb.String())
			return nil
		case '\\':
			l.advanceChar()
			if l.pos >= len(l.input) {
				break
			}
			sb.WriteString(unescape(quote, l.char))
		default:
			sb.WriteRune(l.char)
		}
		l.advanceChar()
	}
	return l.errorAt(start, "missing closing quote in string literal")
}

// unescape decodes the character following a backslash. Double quoted strings
// understand the usual control escapes, single quoted strings only escape the
// quote and the backslash.
func unescape(quote, c rune) string {
	if c == quote || c == '\\' {
		return string(c)
	}
	if quote == '"' {
		switch c {
		case 'n':
			return "\n"
		case 't':
			return "\t"
		case 'r':
			return "\r"
		}
	}
	return "\\" + string(c)
}

func (l *lexer) lexNumber() error {
	start := l.pos
	for l.pos < len(l.input) && isDigit(l.char) {
		l.advanceChar()
	}
	isFloat := false
	if l.char == '.' && isDigit(l.peek()) {
		isFloat = true
		l.advanceChar()
		for l.pos < len(l.input) && isDigit(l.char) {
			l.advanceChar()
		}
	}
	if l.pos < len(l.input) && isInitialNameChar(l.char) {
		return l.errorAt(start, "invalid number %q", l.input[start:l.nextPos])
	}
	text := l.input[start:l.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return l.errorAt(start, "invalid number %q", text)
		}
		l.emit(tokNumber, start, f)
		return nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil {
			return l.errorAt(start, "invalid number %q", text)
		}
		l.emit(tokNumber, start, f)
		return nil
	}
	l.emit(tokNumber, start, i)
	return nil
}

func (l *lexer) skipName() {
	for l.pos < len(l.input) && isNameChar(l.char) {
		l.advanceChar()
	}
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}

// isNameChar returns true if the given char can be part of a name. It returns
// false otherwise.
func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// isInitialNameChar returns true if the given char can appear at the start of a
// name. It returns false otherwise.
func isInitialNameChar(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}
