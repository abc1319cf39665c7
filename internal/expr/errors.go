// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrSyntax is matched by every error returned from Compile.
	ErrSyntax = errors.New("expression syntax error")
	// ErrEval is matched by every error returned from Eval and Truthy.
	ErrEval = errors.New("expression evaluation error")
)

// SyntaxError describes why an expression failed to compile.
type SyntaxError struct {
	Expr string
	// Column is the 1-based byte column the error was detected at.
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("cannot compile expression %q: column %d: %s", e.Expr, e.Column, e.Msg)
}

// Is allows errors.Is(err, ErrSyntax).
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

// EvalError describes a failure while evaluating a compiled expression.
type EvalError struct {
	Expr string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("cannot evaluate expression %q: %s", e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrEval).
func (e *EvalError) Is(target error) bool {
	return target == ErrEval
}
