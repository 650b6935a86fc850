package query

import "strings"

// Record is anything the evaluator can read fields from.
type Record interface {
	Get(field string) (any, bool)
}

// Values is a record backed by a map. A dotted field name that is not a
// key descends into nested maps, so joined records can be filtered by
// path.
type Values map[string]any

// Get returns the value stored under field.
func (v Values) Get(field string) (any, bool) {
	if val, ok := v[field]; ok {
		return val, true
	}
	head, rest, found := strings.Cut(field, ".")
	if !found {
		return nil, false
	}
	switch nested := v[head].(type) {
	case Values:
		return nested.Get(rest)
	case map[string]any:
		return Values(nested).Get(rest)
	default:
		return nil, false
	}
}
