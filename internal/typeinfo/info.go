// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"strings"
)

// Field represents a single exported field from a struct type.
type Field struct {
	Type reflect.Type

	// Name is the name of the struct field.
	Name string

	// Index is the index sequence for reflect.Value.FieldByIndex. It has more
	// than one entry for fields promoted from embedded structs.
	Index []int

	// Tag is the name given in the "db" tag, if any.
	Tag string

	// OmitEmpty is true when "omitempty" is
	// a property of the field's "db" tag.
	OmitEmpty bool
}

// Info represents reflected information about a struct type.
type Info struct {
	Type reflect.Type

	// Fields lists the visible fields in declaration order.
	Fields []Field

	// Relate tag names to fields.
	TagToField map[string]Field

	// Relate field names to fields.
	NameToField map[string]Field

	// lowerToField relates lower cased field names to fields. When two fields
	// only differ by case the first one declared wins.
	lowerToField map[string]Field
}

// Lookup finds the field called name. The "db" tag takes precedence over the
// field name, which takes precedence over a case insensitive match.
func (info *Info) Lookup(name string) (Field, bool) {
	if f, ok := info.TagToField[name]; ok {
		return f, true
	}
	if f, ok := info.NameToField[name]; ok {
		return f, true
	}
	f, ok := info.lowerToField[strings.ToLower(name)]
	return f, ok
}
