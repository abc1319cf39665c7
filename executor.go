// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmapper

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmapper/internal/node"
)

// Row is one row of a query result.
type Row struct {
	Columns []string
	Values  []any
}

// Map returns the row keyed by column name.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, col := range r.Columns {
		m[col] = r.Values[i]
	}
	return m
}

// Executor runs rendered statements. The arguments are those built from the
// bind parameters of the render: sql.NamedArg values when the mapper uses
// named parameters, plain values in order otherwise.
type Executor interface {
	Query(ctx context.Context, query string, args []any) ([]Row, error)
	Exec(ctx context.Context, query string, args []any) (sql.Result, error)
}

// bindArgs converts the bind parameters of a render to executor arguments.
// Named parameters lose the prefix, which is part of the SQL text only.
func bindArgs(params *node.Params, prefix string) []any {
	if prefix == "" {
		return params.Values()
	}
	args := make([]any, 0, params.Len())
	for _, name := range params.Names() {
		v, _ := params.Get(name)
		args = append(args, sql.Named(strings.TrimPrefix(name, prefix), v))
	}
	return args
}

// preparer is an object that queries can be prepared on, e.g. a sql.DB or
// sql.Conn.
type preparer interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// DBExecutor runs statements on a database/sql handle. Every distinct SQL
// text is prepared once and the prepared statement reused until Close.
//
// The mutex must be locked when accessing stmts.
type DBExecutor struct {
	db    preparer
	stmts map[string]*sql.Stmt
	mutex sync.RWMutex
}

// NewDBExecutor returns an executor running statements on db, which is
// usually a *sql.DB or *sql.Conn.
func NewDBExecutor(db preparer) *DBExecutor {
	return &DBExecutor{
		db:    db,
		stmts: map[string]*sql.Stmt{},
	}
}

// prepare returns the prepared statement for query, preparing it if no
// caller has done so yet.
func (e *DBExecutor) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	e.mutex.RLock()
	stmt, ok := e.stmts[query]
	e.mutex.RUnlock()
	if ok {
		return stmt, nil
	}
	stmt, err := e.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "cannot prepare statement")
	}
	e.mutex.Lock()
	defer e.mutex.Unlock()
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if alt, ok := e.stmts[query]; ok {
		stmt.Close()
		return alt, nil
	}
	e.stmts[query] = stmt
	return stmt, nil
}

// Query runs query and reads every row of its result.
func (e *DBExecutor) Query(ctx context.Context, query string, args []any) ([]Row, error) {
	stmt, err := e.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, errors.Wrap(err, "cannot run query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read columns")
	}
	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "cannot scan row")
		}
		result = append(result, Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "cannot read rows")
	}
	return result, nil
}

// Exec runs query without reading rows.
func (e *DBExecutor) Exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	stmt, err := e.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, errors.Wrap(err, "cannot run statement")
	}
	return res, nil
}

// Close closes every prepared statement. The database handle is left open.
func (e *DBExecutor) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	var first error
	for query, stmt := range e.stmts {
		if err := stmt.Close(); err != nil && first == nil {
			first = errors.Wrap(err, "cannot close statement")
		}
		delete(e.stmts, query)
	}
	return first
}
