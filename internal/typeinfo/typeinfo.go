// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo will return the Info of the struct type t, generating and
// caching as required. Pointer types are dereferenced.
func GetTypeInfo(t reflect.Type) (*Info, error) {
	if t == nil {
		return nil, errors.New("cannot reflect nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return nil, err
	}

	cacheMutex.Lock()
	cache[t] = info
	cacheMutex.Unlock()

	return info, nil
}

// generate produces and returns reflection information for the struct type
// typ.
func generate(typ reflect.Type) (*Info, error) {
	// Reflection information is only generated for structs.
	if typ.Kind() != reflect.Struct {
		return nil, errors.Errorf("can only reflect struct type, got %s", typ.Kind())
	}

	info := Info{
		Type:         typ,
		TagToField:   make(map[string]Field),
		NameToField:  make(map[string]Field),
		lowerToField: make(map[string]Field),
	}

	for _, field := range reflect.VisibleFields(typ) {
		if field.Anonymous || !field.IsExported() {
			continue
		}
		f := Field{
			Type:  field.Type,
			Name:  field.Name,
			Index: field.Index,
		}
		if tag := field.Tag.Get("db"); tag != "" && tag != "-" {
			name, omitEmpty, err := parseTag(tag)
			if err != nil {
				return nil, errors.Wrapf(err, "field %q of struct %q", field.Name, typ.Name())
			}
			f.Tag = name
			f.OmitEmpty = omitEmpty
			info.TagToField[name] = f
		}
		info.Fields = append(info.Fields, f)
		info.NameToField[f.Name] = f
		lower := strings.ToLower(f.Name)
		if _, ok := info.lowerToField[lower]; !ok {
			info.lowerToField[lower] = f
		}
	}

	return &info, nil
}

var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns its
// name and whether it contains the "omitempty" option.
func parseTag(tag string) (string, bool, error) {
	options := strings.Split(tag, ",")

	var omitEmpty bool
	// Refuse to parse if there are more than 2 items.
	if len(options) > 2 {
		return "", false, errors.New("too many options in 'db' tag")
	}
	if len(options) == 2 {
		if strings.ToLower(options[1]) != "omitempty" {
			return "", false, errors.Errorf("unexpected tag value %q", options[1])
		}
		omitEmpty = true
	}

	name := options[0]
	if len(name) == 0 {
		return "", false, errors.New("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", false, errors.Errorf("invalid column name %q in 'db' tag", name)
	}

	return name, omitEmpty, nil
}
