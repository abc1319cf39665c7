// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmapper

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmapper/internal/node"
	"github.com/canonical/sqlmapper/internal/registry"
	"github.com/canonical/sqlmapper/internal/typeinfo"
)

// Select runs the select statement id and returns its rows shaped by the
// statement's result type:
//
//   - a scalar type of the Convert table gives the converted first column
//     of every row;
//   - the empty type, "array" and "map" give every row as a
//     map[string]any keyed by column;
//   - a type registered with WithResultType gives a pointer to a new value
//     of the type per row.
func (m *Mapper) Select(ctx context.Context, id string, param any) ([]any, error) {
	var result []any
	err := m.call(ctx, CategorySelect, id, func(ctx context.Context, reg *registry.Registry) error {
		st, err := getSelect(reg, id)
		if err != nil {
			return err
		}
		rows, err := m.query(ctx, reg, CategorySelect, id, st, param)
		if err != nil {
			return err
		}
		result = make([]any, 0, len(rows))
		for _, row := range rows {
			v, err := m.shape(st, row)
			if err != nil {
				return err
			}
			result = append(result, v)
		}
		return nil
	})
	return result, err
}

// SelectOne is like Select but returns the first row only, or nil when
// there are no rows.
func (m *Mapper) SelectOne(ctx context.Context, id string, param any) (any, error) {
	var result any
	err := m.call(ctx, CategorySelect, id, func(ctx context.Context, reg *registry.Registry) error {
		st, err := getSelect(reg, id)
		if err != nil {
			return err
		}
		rows, err := m.query(ctx, reg, CategorySelect, id, st, param)
		if err != nil || len(rows) == 0 {
			return err
		}
		result, err = m.shape(st, rows[0])
		return err
	})
	return result, err
}

// SelectInto runs the select statement id and scans its rows into dest,
// ignoring the declared result type. The dest value must be a pointer. A
// pointer to a slice receives every row; any other pointer receives the
// first row, or ErrNoRows if there is none. Rows are scanned into structs by
// column name, into maps by key and into other types from the first column.
func (m *Mapper) SelectInto(ctx context.Context, id string, param any, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return errors.Errorf("cannot select into %T: need a non-nil pointer", dest)
	}
	return m.call(ctx, CategorySelect, id, func(ctx context.Context, reg *registry.Registry) error {
		st, err := getSelect(reg, id)
		if err != nil {
			return err
		}
		rows, err := m.query(ctx, reg, CategorySelect, id, st, param)
		if err != nil {
			return err
		}
		target := dv.Elem()
		if target.Kind() == reflect.Slice && target.Type().Elem().Kind() != reflect.Uint8 {
			slice := reflect.MakeSlice(target.Type(), len(rows), len(rows))
			for i, row := range rows {
				if err := scanInto(slice.Index(i), row); err != nil {
					return errors.Wrapf(err, "row %d", i)
				}
			}
			target.Set(slice)
			return nil
		}
		if len(rows) == 0 {
			return ErrNoRows
		}
		return scanInto(target, rows[0])
	})
}

// Update runs the update statement id.
func (m *Mapper) Update(ctx context.Context, id string, param any) (sql.Result, error) {
	return m.execStatement(ctx, CategoryUpdate, id, param)
}

// Delete runs the delete statement id.
func (m *Mapper) Delete(ctx context.Context, id string, param any) (sql.Result, error) {
	return m.execStatement(ctx, CategoryDelete, id, param)
}

func (m *Mapper) execStatement(ctx context.Context, category Category, id string, param any) (sql.Result, error) {
	var res sql.Result
	err := m.call(ctx, category, id, func(ctx context.Context, reg *registry.Registry) error {
		st, err := reg.Get(category, id)
		if err != nil {
			return err
		}
		res, err = m.exec(ctx, reg, category, id, st, param)
		return err
	})
	return res, err
}

func getSelect(reg *registry.Registry, id string) (*node.Select, error) {
	st, err := reg.Get(CategorySelect, id)
	if err != nil {
		return nil, err
	}
	return st.(*node.Select), nil
}

// query renders n and runs it as a query.
func (m *Mapper) query(ctx context.Context, reg *registry.Registry, category Category, id string, n node.Node, param any) ([]Row, error) {
	text, args, err := m.render(ctx, reg, category, id, n, param)
	if err != nil {
		return nil, err
	}
	rows, err := m.executor.Query(ctx, text, args)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot run %s statement %q", category, id)
	}
	return rows, nil
}

// exec renders n and runs it as a statement returning no rows.
func (m *Mapper) exec(ctx context.Context, reg *registry.Registry, category Category, id string, n node.Node, param any) (sql.Result, error) {
	text, args, err := m.render(ctx, reg, category, id, n, param)
	if err != nil {
		return nil, err
	}
	res, err := m.executor.Exec(ctx, text, args)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot run %s statement %q", category, id)
	}
	return res, nil
}

// shape converts a row to the result type of st.
func (m *Mapper) shape(st *node.Select, row Row) (any, error) {
	switch {
	case isScalarType(st.ResultType):
		var v any
		if len(row.Values) > 0 {
			v = row.Values[0]
		}
		c, err := Convert(st.ResultType, v)
		if err != nil {
			return nil, errors.Wrapf(err, "select %q", st.ID)
		}
		return c, nil
	case isRowType(st.ResultType):
		return row.Map(), nil
	}
	t, ok := m.types[st.ResultType]
	if !ok {
		return nil, errors.Errorf("cannot select %q: result type %q is not registered", st.ID, st.ResultType)
	}
	p := reflect.New(t)
	if err := scanInto(p.Elem(), row); err != nil {
		return nil, errors.Wrapf(err, "select %q", st.ID)
	}
	return p.Interface(), nil
}

// scanInto stores row in dst, allocating pointers as needed.
func scanInto(dst reflect.Value, row Row) error {
	if dst.Kind() == reflect.Pointer {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return scanInto(dst.Elem(), row)
	}
	switch dst.Kind() {
	case reflect.Struct, reflect.Map:
		return typeinfo.ScanRow(dst, row.Columns, row.Values)
	}
	if len(row.Values) == 0 {
		return errors.New("cannot scan a row without columns")
	}
	return typeinfo.Assign(dst, row.Values[0])
}
