// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmapper

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmapper/internal/node"
	"github.com/canonical/sqlmapper/internal/registry"
	"github.com/canonical/sqlmapper/internal/typeinfo"
)

// keyMode is the way an insert obtains its generated key.
type keyMode int

const (
	// keyNone runs the insert alone.
	keyNone keyMode = iota
	// keyBefore runs the selectKey query, stores its result and then runs
	// the insert, which may refer to the key.
	keyBefore
	// keyAfter runs the insert and then the selectKey query.
	keyAfter
	// keyNative runs the insert and stores the id the database generated.
	keyNative
)

func keyModeOf(ins *node.Insert) keyMode {
	switch {
	case ins.SelectKey != nil && ins.SelectKey.Order == node.KeyBefore:
		return keyBefore
	case ins.SelectKey != nil:
		return keyAfter
	case ins.UseGeneratedKeys && ins.KeyProperty != "":
		return keyNative
	}
	return keyNone
}

// Insert runs the insert statement id. When the statement declares a
// generated key, the key is stored in param under its key property, so param
// must then be a map with string keys or a pointer to a struct.
func (m *Mapper) Insert(ctx context.Context, id string, param any) (sql.Result, error) {
	var res sql.Result
	err := m.call(ctx, CategoryInsert, id, func(ctx context.Context, reg *registry.Registry) error {
		st, err := reg.Get(CategoryInsert, id)
		if err != nil {
			return err
		}
		res, err = m.insert(ctx, reg, id, st.(*node.Insert), param)
		return err
	})
	return res, err
}

func (m *Mapper) insert(ctx context.Context, reg *registry.Registry, id string, ins *node.Insert, param any) (sql.Result, error) {
	switch keyModeOf(ins) {
	case keyBefore:
		if err := m.selectKey(ctx, reg, id, ins.SelectKey, param); err != nil {
			return nil, err
		}
		return m.exec(ctx, reg, CategoryInsert, id, ins, param)
	case keyAfter:
		res, err := m.exec(ctx, reg, CategoryInsert, id, ins, param)
		if err != nil {
			return nil, err
		}
		if err := m.selectKey(ctx, reg, id, ins.SelectKey, param); err != nil {
			return nil, err
		}
		return res, nil
	case keyNative:
		res, err := m.exec(ctx, reg, CategoryInsert, id, ins, param)
		if err != nil {
			return nil, err
		}
		key, err := res.LastInsertId()
		if err != nil {
			return nil, errors.Wrapf(err, "cannot get generated key of insert %q", id)
		}
		if err := injectKey(param, ins.KeyProperty, key); err != nil {
			return nil, errors.Wrapf(err, "insert %q", id)
		}
		return res, nil
	}
	return m.exec(ctx, reg, CategoryInsert, id, ins, param)
}

// selectKey runs the selectKey query of insert id and stores its first
// column, converted to the declared result type, in param.
func (m *Mapper) selectKey(ctx context.Context, reg *registry.Registry, id string, sk *node.SelectKey, param any) error {
	rows, err := m.query(ctx, reg, CategoryInsert, id, sk, param)
	if err != nil {
		return errors.Wrap(err, "selectKey")
	}
	var key any
	if len(rows) > 0 && len(rows[0].Values) > 0 {
		key = rows[0].Values[0]
	}
	key, err = Convert(sk.ResultType, key)
	if err != nil {
		return errors.Wrapf(err, "selectKey of insert %q", id)
	}
	if err := injectKey(param, sk.KeyProperty, key); err != nil {
		return errors.Wrapf(err, "insert %q", id)
	}
	return nil
}

// injectKey stores key in param under property. Maps receive a new entry and
// structs have their field set.
func injectKey(param any, property string, key any) error {
	if err := typeinfo.Set(param, property, key); err != nil {
		return errors.Wrapf(err, "cannot store generated key %q", property)
	}
	return nil
}
