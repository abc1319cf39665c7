// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

// ErrNotAssignable is returned by Set when the target can hold no named values.
var ErrNotAssignable = errors.New("target is not a map or pointer to struct")

// Indirect follows pointers and interfaces until it reaches a concrete value.
// It returns the zero reflect.Value if it meets a nil.
func Indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// Get looks up key in v. Maps are indexed by key, structs are searched for a
// field named key and slices, arrays and strings are indexed by integer keys.
// Get reports false when the key is not present, never an error.
func Get(v any, key any) (any, bool) {
	rv := Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Map:
		k, ok := convertKey(key, rv.Type().Key())
		if !ok {
			return nil, false
		}
		e := rv.MapIndex(k)
		if !e.IsValid() {
			return nil, false
		}
		return e.Interface(), true
	case reflect.Struct:
		name, ok := key.(string)
		if !ok {
			name = fmt.Sprint(key)
		}
		info, err := GetTypeInfo(rv.Type())
		if err != nil {
			return nil, false
		}
		f, ok := info.Lookup(name)
		if !ok {
			return nil, false
		}
		fv, err := rv.FieldByIndexErr(f.Index)
		if err != nil {
			return nil, false
		}
		return fv.Interface(), true
	case reflect.Slice, reflect.Array, reflect.String:
		i, ok := toIndex(key)
		if !ok || i < 0 || i >= rv.Len() {
			return nil, false
		}
		if rv.Kind() == reflect.String {
			return rv.String()[i : i+1], true
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}

// Set stores value under name in target. The target must be a non-nil map
// with string keys or a pointer to a struct with a field called name. The
// value is converted to the type of the map element or struct field.
func Set(target any, name string, value any) error {
	rv := reflect.ValueOf(target)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return errors.Wrap(ErrNotAssignable, "nil map")
		}
		if rv.Type().Key().Kind() != reflect.String {
			return errors.Wrapf(ErrNotAssignable, "map key type %s", rv.Type().Key())
		}
		elem := reflect.New(rv.Type().Elem()).Elem()
		if err := Assign(elem, value); err != nil {
			return errors.Wrapf(err, "key %q", name)
		}
		rv.SetMapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()), elem)
		return nil
	case reflect.Pointer:
		if rv.IsNil() {
			return errors.Wrap(ErrNotAssignable, "nil pointer")
		}
		sv := rv.Elem()
		if sv.Kind() == reflect.Map {
			return Set(sv.Interface(), name, value)
		}
		if sv.Kind() != reflect.Struct {
			return errors.Wrapf(ErrNotAssignable, "pointer to %s", sv.Kind())
		}
		info, err := GetTypeInfo(sv.Type())
		if err != nil {
			return err
		}
		f, ok := info.Lookup(name)
		if !ok {
			return errors.Errorf("struct %q has no field %q", sv.Type().Name(), name)
		}
		fv, err := sv.FieldByIndexErr(f.Index)
		if err != nil {
			return errors.Wrapf(err, "field %q", f.Name)
		}
		if err := Assign(fv, value); err != nil {
			return errors.Wrapf(err, "field %q", f.Name)
		}
		return nil
	}
	return errors.Wrapf(ErrNotAssignable, "got %T", target)
}

// Assign sets dst to value, converting between numeric, string and byte slice
// representations where needed. A nil value sets dst to its zero value.
func Assign(dst reflect.Value, value any) error {
	if !dst.CanSet() {
		return errors.Errorf("cannot set value of type %s", dst.Type())
	}
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(value)
	dt := dst.Type()
	if src.Type().AssignableTo(dt) {
		dst.Set(src)
		return nil
	}
	if dt.Kind() == reflect.Pointer {
		p := reflect.New(dt.Elem())
		if err := Assign(p.Elem(), value); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	if b, ok := value.([]byte); ok {
		value, src = string(b), reflect.ValueOf(string(b))
	}
	switch {
	case isNumberKind(dt.Kind()) && isNumberKind(src.Kind()):
		dst.Set(src.Convert(dt))
		return nil
	case isNumberKind(dt.Kind()) && src.Kind() == reflect.String:
		f, err := strconv.ParseFloat(src.String(), 64)
		if err != nil {
			return errors.Errorf("cannot convert %q to %s", src.String(), dt)
		}
		dst.Set(reflect.ValueOf(f).Convert(dt))
		return nil
	case dt.Kind() == reflect.Bool && isNumberKind(src.Kind()):
		dst.SetBool(!src.IsZero())
		return nil
	case dt.Kind() == reflect.String && src.Kind() != reflect.String:
		dst.SetString(fmt.Sprint(value))
		return nil
	case src.Type().ConvertibleTo(dt) && src.Kind() == dt.Kind():
		dst.Set(src.Convert(dt))
		return nil
	}
	return errors.Errorf("cannot assign %T to %s", value, dt)
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func convertKey(key any, t reflect.Type) (reflect.Value, bool) {
	k := reflect.ValueOf(key)
	if !k.IsValid() {
		return reflect.Value{}, false
	}
	if k.Type().AssignableTo(t) {
		return k, true
	}
	if t.Kind() == reflect.Interface {
		return k, k.Type().Implements(t)
	}
	if t.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(key)).Convert(t), true
	}
	if isNumberKind(t.Kind()) {
		i, ok := toIndex(key)
		if !ok {
			return reflect.Value{}, false
		}
		return reflect.ValueOf(i).Convert(t), true
	}
	return reflect.Value{}, false
}

// toIndex converts integer valued keys, including numeric strings, to int.
func toIndex(key any) (int, bool) {
	v := reflect.ValueOf(key)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	case reflect.String:
		i, err := strconv.Atoi(v.String())
		return i, err == nil
	}
	return 0, false
}
