package vector

import (
	"reflect"
	"slices"
)

// Filter selects records by payload. A nil Filter matches every record.
type Filter func(payload map[string]any) bool

// Match reports whether payload passes f.
func (f Filter) Match(payload map[string]any) bool {
	return f == nil || f(payload)
}

// FieldEquals matches records whose payload[key] equals value.
func FieldEquals(key string, value any) Filter {
	return FieldIn(key, value)
}

// FieldIn matches records whose payload[key] equals one of values. Values
// are compared with ==, so numbers must share the stored Go type.
func FieldIn(key string, values ...any) Filter {
	return func(payload map[string]any) bool {
		v, ok := payload[key]
		if !ok {
			return false
		}
		return slices.ContainsFunc(values, func(want any) bool { return comparableEqual(v, want) })
	}
}

// All matches records that pass every non-nil filter.
func All(filters ...Filter) Filter {
	return func(payload map[string]any) bool {
		for _, f := range filters {
			if !f.Match(payload) {
				return false
			}
		}
		return true
	}
}

func comparableEqual(a, b any) bool {
	ta := reflect.TypeOf(a)
	if ta == nil || reflect.TypeOf(b) != ta {
		return a == nil && b == nil
	}
	// Maps and slices panic under ==.
	if !ta.Comparable() {
		return false
	}
	return a == b
}
