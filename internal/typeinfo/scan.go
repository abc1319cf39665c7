// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"

	"github.com/pkg/errors"
)

// ScanRow fills dest from a result row. The dest value must be a settable
// struct or map with string keys. Columns without a matching struct field are
// ignored.
func ScanRow(dest reflect.Value, columns []string, values []any) error {
	if len(columns) != len(values) {
		return errors.Errorf("internal error: %d columns but %d values", len(columns), len(values))
	}
	switch dest.Kind() {
	case reflect.Map:
		if dest.IsNil() {
			dest.Set(reflect.MakeMapWithSize(dest.Type(), len(columns)))
		}
		for i, col := range columns {
			if err := Set(dest.Interface(), col, values[i]); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		info, err := GetTypeInfo(dest.Type())
		if err != nil {
			return err
		}
		for i, col := range columns {
			f, ok := info.Lookup(col)
			if !ok {
				continue
			}
			fv, err := dest.FieldByIndexErr(f.Index)
			if err != nil {
				return errors.Wrapf(err, "column %q", col)
			}
			if err := Assign(fv, values[i]); err != nil {
				return errors.Wrapf(err, "column %q", col)
			}
		}
		return nil
	}
	return errors.Errorf("cannot scan row into %s", dest.Type())
}
