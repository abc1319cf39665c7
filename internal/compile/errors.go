// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package compile

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrCompile is matched by Error.
var ErrCompile = errors.New("mapper compile error")

// Error reports malformed mapper markup.
type Error struct {
	Namespace string
	Line      int
	Tag       string
	// Attr is the attribute at fault, if any.
	Attr string
	Msg  string
	// Err is the underlying error, such as an expression syntax error.
	Err error
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cannot compile mapper %q", e.Namespace)
	if e.Line > 0 {
		fmt.Fprintf(&sb, ": line %d", e.Line)
	}
	if e.Tag != "" {
		fmt.Fprintf(&sb, ": <%s>", e.Tag)
	}
	if e.Attr != "" {
		fmt.Fprintf(&sb, ": attribute %q", e.Attr)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, ErrCompile).
func (e *Error) Is(target error) bool {
	return target == ErrCompile
}
