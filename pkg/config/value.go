package config

import "reflect"

// Value is an immutable view over a decoded configuration tree. Accessors are
// loose: a missing key or a type mismatch yields the supplied default instead
// of an error, so callers validate field by field and keep going.
type Value struct {
	v any
}

var emptyValue = &Value{}

// NewValue wraps a decoded JSON/YAML tree. NewValue(nil) is an empty value.
func NewValue(v any) *Value {
	if v == nil {
		return emptyValue
	}
	return &Value{v: v}
}

func (v *Value) IsNil() bool {
	return v == nil || v.v == nil
}

// Raw exposes the underlying tree. Callers must not mutate it.
func (v *Value) Raw() any {
	if v == nil {
		return nil
	}
	return v.v
}

// At resolves a dotted path inside the value.
func (v *Value) At(path string) *Value {
	cur := v
	for _, key := range splitPath(path) {
		cur = cur.Child(key)
		if cur.IsNil() {
			return emptyValue
		}
	}
	if cur == nil {
		return emptyValue
	}
	return cur
}

// Child returns the named member of an object value, or an empty value.
func (v *Value) Child(key string) *Value {
	obj, ok := v.Object()
	if !ok {
		return emptyValue
	}
	child, ok := obj[key]
	if !ok {
		return emptyValue
	}
	return NewValue(child)
}

func (v *Value) Object() (map[string]any, bool) {
	if v.IsNil() {
		return nil, false
	}
	obj, ok := v.v.(map[string]any)
	return obj, ok
}

func (v *Value) Slice() ([]any, bool) {
	if v.IsNil() {
		return nil, false
	}
	s, ok := v.v.([]any)
	return s, ok
}

func (v *Value) IsString() bool {
	if v.IsNil() {
		return false
	}
	_, ok := v.v.(string)
	return ok
}

func (v *Value) IsBool() bool {
	if v.IsNil() {
		return false
	}
	_, ok := v.v.(bool)
	return ok
}

// IsIntegral reports whether the value holds a whole number. JSON decoding
// yields float64, so whole floats count.
func (v *Value) IsIntegral() bool {
	if v.IsNil() {
		return false
	}
	switch n := v.v.(type) {
	case int, int32, int64, uint, uint32, uint64:
		return true
	case float64:
		return n == float64(int64(n))
	}
	return false
}

func (v *Value) StringOr(def string) string {
	if v.IsNil() {
		return def
	}
	if s, ok := v.v.(string); ok {
		return s
	}
	return def
}

func (v *Value) BoolOr(def bool) bool {
	if v.IsNil() {
		return def
	}
	if b, ok := v.v.(bool); ok {
		return b
	}
	return def
}

func (v *Value) IntOr(def int) int {
	if n, ok := v.intVal(); ok {
		return int(n)
	}
	return def
}

func (v *Value) UintOr(def uint) uint {
	if n, ok := v.intVal(); ok && n >= 0 {
		return uint(n)
	}
	return def
}

func (v *Value) intVal() (int64, bool) {
	if v.IsNil() {
		return 0, false
	}
	switch n := v.v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// Equal compares two values structurally.
func (v *Value) Equal(other *Value) bool {
	return reflect.DeepEqual(v.Raw(), other.Raw())
}
