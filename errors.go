// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmapper

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmapper/internal/compile"
	"github.com/canonical/sqlmapper/internal/expr"
	"github.com/canonical/sqlmapper/internal/node"
	"github.com/canonical/sqlmapper/internal/registry"
)

// Errors returned by the mapper can be matched with errors.Is against these
// values.
var (
	// ErrExpressionSyntax reports a malformed expression in a test,
	// collection or placeholder.
	ErrExpressionSyntax = expr.ErrSyntax
	// ErrExpressionEval reports an expression that failed while rendering.
	ErrExpressionEval = expr.ErrEval
	// ErrCompile reports a malformed mapper document.
	ErrCompile = compile.ErrCompile
	// ErrUnresolvedReference reports an include of an unknown fragment.
	ErrUnresolvedReference = node.ErrUnresolvedReference
	// ErrNotFound reports a lookup of an unknown statement.
	ErrNotFound = registry.ErrNotFound

	ErrNoRows = sql.ErrNoRows

	// ErrNoExecutor is returned by statement calls on a mapper created
	// without an executor.
	ErrNoExecutor = errors.New("mapper has no executor")
)
