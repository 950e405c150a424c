package skills

import (
	"encoding/json"
	"math"
	"reflect"
	"time"

	"github.com/pkg/errors"
)

// ParameterType is the declared type of a parameter value
type ParameterType string

// Parameter types. Integer and Float are accepted spellings of Number; Integer
// additionally requires a whole value.
const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeFloat   ParameterType = "float"
	TypeBoolean ParameterType = "boolean"
	TypeObject  ParameterType = "object"
	TypeArray   ParameterType = "array"
)

// Valid reports whether t is a known parameter type
func (t ParameterType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeFloat, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}

// Accepts reports whether v type-checks against t. Values decoded from YAML,
// JSON (including json.Number) and Go literals are all recognised.
func (t ParameterType) Accepts(v any) bool {
	if v == nil {
		return false
	}
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber, TypeFloat:
		_, ok := toFloat(v)
		return ok
	case TypeInteger:
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f)
	case TypeArray:
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	case TypeObject:
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Map || rv.Kind() == reflect.Struct
	}
	return false
}

// AsSlice returns the elements of any slice or array value, so callers can
// read an array parameter whether it was decoded from a document or built in Go.
func AsSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

// ParseDuration converts a document timeout into a Duration. Numbers are
// seconds; strings use time.ParseDuration syntax.
func ParseDuration(v any) (Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case Duration:
		return val, nil
	case time.Duration:
		return Duration(val), nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid duration %q", val)
		}
		return Duration(d), nil
	}
	if f, ok := toFloat(v); ok {
		return Duration(f * float64(time.Second)), nil
	}
	return 0, errors.Errorf("invalid duration %v of type %T", v, v)
}
