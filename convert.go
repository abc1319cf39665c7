// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmapper

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmapper/internal/expr"
)

// isScalarType reports whether resultType names one of the scalar types of
// the result type table.
func isScalarType(resultType string) bool {
	switch strings.ToLower(strings.TrimSpace(resultType)) {
	case "bool", "boolean", "int", "integer", "double", "float", "string":
		return true
	}
	return false
}

// isRowType reports whether resultType selects rows as column maps.
func isRowType(resultType string) bool {
	switch strings.ToLower(strings.TrimSpace(resultType)) {
	case "", "array", "map":
		return true
	}
	return false
}

// Convert converts a value read from the database to resultType:
//
//	bool, boolean   bool, false for zero, "" and "0"
//	int, integer    int64, fractions truncated
//	double, float   float64
//	string          string
//
// Any other result type, including the empty one, returns v unchanged.
//
// Conversion is stricter than a cast: null is returned as nil whatever the
// result type, never as false, 0 or "", so that a NULL column stays
// distinguishable. Strings that are not wholly a number, such as "12abc",
// fail to convert to int or double instead of yielding their numeric prefix.
func Convert(resultType string, v any) (any, error) {
	if !isScalarType(resultType) || v == nil {
		return v, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch strings.ToLower(strings.TrimSpace(resultType)) {
	case "bool", "boolean":
		return expr.IsTruthy(v), nil
	case "int", "integer":
		i, err := toInt(v)
		if err != nil {
			return nil, errors.Wrap(err, "cannot convert to int")
		}
		return i, nil
	case "double", "float":
		f, err := toFloat(v)
		if err != nil {
			return nil, errors.Wrap(err, "cannot convert to float")
		}
		return f, nil
	}
	return expr.ToString(v), nil
}

func toInt(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	return int64(math.Trunc(f)), nil
}

func toFloat(v any) (float64, error) {
	switch v := v.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Errorf("%q is not a number", v)
		}
		return f, nil
	}
	return 0, errors.Errorf("%T is not a number", v)
}
