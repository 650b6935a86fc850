package query

import (
	"reflect"
	"time"
)

// normalizeValue converts a builder argument into the canonical in-memory
// form: int64 for every integer, float64 for every float, []any for slices
// and arrays, map[string]any for string-keyed maps. Expressions, selections,
// markers, times and durations pass through.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Marker, string, bool, int64, float64, time.Time, time.Duration, Selection:
		return val
	case Query, Compound:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeValue(elem)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalizeValue(iter.Value().Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return v
	}
}

// listValue normalizes the argument of In/NotIn. Selections and
// expressions are deferred sub-queries and pass through; slices become
// []any; anything else becomes a one-element list.
func listValue(v any) any {
	switch val := v.(type) {
	case Selection, Query, Compound:
		return val
	case nil:
		return []any{nil}
	case string, []byte:
		return []any{normalizeValue(val)}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return normalizeValue(v)
	}
	return []any{normalizeValue(v)}
}
