package query

import (
	"fmt"
	"math"
	"time"

	"github.com/orb-framework/orb-sub002/internal/canon"
	"github.com/orb-framework/orb-sub002/internal/schema"
)

// Type tags of the serialized form.
const (
	typeQuery     = "query"
	typeCompound  = "compound"
	typeSelection = "selection"
	typeDatetime  = "datetime"
	typeTimedelta = "timedelta"
	typeMap       = "map"
)

// ToDict serializes an expression into nested maps and lists of JSON-like
// values (string, bool, int64, float64, nil).
func ToDict(e Expr) (map[string]any, error) {
	switch v := e.(type) {
	case Query:
		return queryToDict(v)
	case Compound:
		return compoundToDict(v)
	case nil:
		return nil, fmt.Errorf("to dict: nil expression")
	default:
		return nil, fmt.Errorf("to dict: unsupported expression %T", e)
	}
}

func queryToDict(q Query) (map[string]any, error) {
	funcs := make([]any, len(q.functions))
	for i, f := range q.functions {
		funcs[i] = f.String()
	}

	terms := make([]any, len(q.math))
	for i, term := range q.math {
		val, err := encodeValue(term.Value)
		if err != nil {
			return nil, fmt.Errorf("math[%d]: %w", i, err)
		}
		terms[i] = map[string]any{"op": term.Op.String(), "value": val}
	}

	value, err := encodeValue(q.value)
	if err != nil {
		return nil, fmt.Errorf("query %s: value: %w", q.column, err)
	}

	return map[string]any{
		"type":           typeQuery,
		"model":          q.model,
		"column":         q.column,
		"op":             q.op.String(),
		"case_sensitive": q.caseSensitive,
		"inverted":       q.inverted,
		"functions":      funcs,
		"math":           terms,
		"value":          value,
	}, nil
}

func compoundToDict(c Compound) (map[string]any, error) {
	queries := make([]any, len(c.queries))
	for i, child := range c.queries {
		d, err := ToDict(child)
		if err != nil {
			return nil, fmt.Errorf("queries[%d]: %w", i, err)
		}
		queries[i] = d
	}
	return map[string]any{
		"type":    typeCompound,
		"op":      c.op.String(),
		"queries": queries,
	}, nil
}

func encodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val, nil
	case Marker:
		return string(val), nil
	case int:
		return int64(val), nil
	case time.Time:
		return map[string]any{"type": typeDatetime, "value": val.Format(time.RFC3339Nano)}, nil
	case time.Duration:
		return map[string]any{"type": typeTimedelta, "value": val.Seconds()}, nil
	case Query, Compound:
		return ToDict(val.(Expr))
	case Selection:
		cols := make([]any, len(val.Columns))
		for i, c := range val.Columns {
			cols[i] = c
		}
		var where any
		if val.Where != nil {
			d, err := ToDict(val.Where)
			if err != nil {
				return nil, fmt.Errorf("selection where: %w", err)
			}
			where = d
		}
		return map[string]any{
			"type":    typeSelection,
			"model":   val.Model,
			"columns": cols,
			"where":   where,
		}, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			enc, err := encodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			enc, err := encodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = enc
		}
		return map[string]any{"type": typeMap, "value": out}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// FromDict is the inverse of ToDict. Model names are verified through
// lookup; lookup may be nil only when no model names appear.
func FromDict(data map[string]any, lookup schema.Lookup) (Expr, error) {
	d := decoder{lookup: lookup}
	return d.expr(data)
}

type decoder struct {
	lookup schema.Lookup
}

func (d decoder) expr(data map[string]any) (Expr, error) {
	if data == nil {
		return nil, fmt.Errorf("from dict: nil data")
	}
	raw, ok := data["type"]
	if !ok {
		return nil, fmt.Errorf("from dict: missing \"type\"")
	}
	switch raw {
	case typeQuery:
		return d.query(data)
	case typeCompound:
		return d.compound(data)
	default:
		return nil, fmt.Errorf("from dict: unknown type %v", raw)
	}
}

func (d decoder) query(data map[string]any) (Query, error) {
	var q Query
	var err error

	if q.model, err = d.model(data, "model"); err != nil {
		return Query{}, err
	}
	if q.column, err = optString(data, "column"); err != nil {
		return Query{}, err
	}

	q.op = OpIs
	if raw, ok := data["op"]; ok {
		name, ok := raw.(string)
		if !ok {
			return Query{}, fmt.Errorf("query op: expected string, got %T", raw)
		}
		if q.op, err = ParseOp(name); err != nil {
			return Query{}, fmt.Errorf("query: %w", err)
		}
	}

	if q.caseSensitive, err = optBool(data, "case_sensitive"); err != nil {
		return Query{}, err
	}
	if q.inverted, err = optBool(data, "inverted"); err != nil {
		return Query{}, err
	}

	funcs, err := optList(data, "functions")
	if err != nil {
		return Query{}, err
	}
	for i, raw := range funcs {
		name, ok := raw.(string)
		if !ok {
			return Query{}, fmt.Errorf("functions[%d]: expected string, got %T", i, raw)
		}
		f, err := ParseFunction(name)
		if err != nil {
			return Query{}, fmt.Errorf("functions[%d]: %w", i, err)
		}
		q.functions = append(q.functions, f)
	}

	terms, err := optList(data, "math")
	if err != nil {
		return Query{}, err
	}
	for i, raw := range terms {
		entry, ok := raw.(map[string]any)
		if !ok {
			return Query{}, fmt.Errorf("math[%d]: expected object, got %T", i, raw)
		}
		name, err := optString(entry, "op")
		if err != nil {
			return Query{}, fmt.Errorf("math[%d]: %w", i, err)
		}
		op, err := ParseMathOp(name)
		if err != nil {
			return Query{}, fmt.Errorf("math[%d]: %w", i, err)
		}
		val, err := d.value(entry["value"])
		if err != nil {
			return Query{}, fmt.Errorf("math[%d] value: %w", i, err)
		}
		q.math = append(q.math, MathTerm{Op: op, Value: val})
	}

	if q.value, err = d.value(data["value"]); err != nil {
		return Query{}, fmt.Errorf("query %s value: %w", q.column, err)
	}
	return q, nil
}

func (d decoder) compound(data map[string]any) (Compound, error) {
	name, err := optString(data, "op")
	if err != nil {
		return Compound{}, err
	}
	op, err := ParseCompoundOp(name)
	if err != nil {
		return Compound{}, fmt.Errorf("compound: %w", err)
	}
	raw, err := optList(data, "queries")
	if err != nil {
		return Compound{}, err
	}
	children := make([]Expr, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return Compound{}, fmt.Errorf("queries[%d]: expected object, got %T", i, item)
		}
		child, err := d.expr(obj)
		if err != nil {
			return Compound{}, fmt.Errorf("queries[%d]: %w", i, err)
		}
		children = append(children, child)
	}
	return Compound{op: op, queries: children}, nil
}

func (d decoder) value(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		if m, ok := parseMarker(v); ok {
			return m, nil
		}
		return v, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			dec, err := d.value(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = dec
		}
		return out, nil
	case map[string]any:
		return d.tagged(v)
	default:
		return normalizeValue(raw), nil
	}
}

func (d decoder) tagged(obj map[string]any) (any, error) {
	tag, ok := obj["type"]
	if !ok {
		return nil, fmt.Errorf("object value without \"type\"")
	}
	switch tag {
	case typeQuery, typeCompound:
		return d.expr(obj)
	case typeSelection:
		return d.selection(obj)
	case typeDatetime:
		s, err := optString(obj, "value")
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("datetime: %w", err)
		}
		return t, nil
	case typeTimedelta:
		n, ok := toNumber(obj["value"])
		if !ok {
			return nil, fmt.Errorf("timedelta: expected number, got %T", obj["value"])
		}
		return time.Duration(math.Round(n.float() * float64(time.Second))), nil
	case typeMap:
		inner, ok := obj["value"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("map: expected object, got %T", obj["value"])
		}
		out := make(map[string]any, len(inner))
		for k, elem := range inner {
			dec, err := d.value(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = dec
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value type %v", tag)
	}
}

func (d decoder) selection(obj map[string]any) (Selection, error) {
	model, err := d.model(obj, "model")
	if err != nil {
		return Selection{}, err
	}
	if model == "" {
		return Selection{}, fmt.Errorf("selection: missing model")
	}
	sel := Selection{Model: model}

	cols, err := optList(obj, "columns")
	if err != nil {
		return Selection{}, err
	}
	for i, raw := range cols {
		name, ok := raw.(string)
		if !ok {
			return Selection{}, fmt.Errorf("selection columns[%d]: expected string, got %T", i, raw)
		}
		sel.Columns = append(sel.Columns, name)
	}

	switch where := obj["where"].(type) {
	case nil:
	case map[string]any:
		if sel.Where, err = d.expr(where); err != nil {
			return Selection{}, fmt.Errorf("selection where: %w", err)
		}
	default:
		return Selection{}, fmt.Errorf("selection where: expected object, got %T", where)
	}
	return sel, nil
}

// model reads a model name and verifies it is registered.
func (d decoder) model(data map[string]any, key string) (string, error) {
	name, err := optString(data, key)
	if err != nil || name == "" {
		return name, err
	}
	if d.lookup == nil {
		return "", fmt.Errorf("cannot resolve model %q: no schema registry", name)
	}
	if _, err := d.lookup.Schema(name); err != nil {
		return "", fmt.Errorf("resolve model: %w", err)
	}
	return name, nil
}

func optString(data map[string]any, key string) (string, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected string, got %T", key, raw)
	}
	return s, nil
}

func optBool(data map[string]any, key string) (bool, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%s: expected bool, got %T", key, raw)
	}
	return b, nil
}

func optList(data map[string]any, key string) ([]any, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %T", key, raw)
	}
	return list, nil
}

// Marshal encodes an expression as canonical JSON.
func Marshal(e Expr) ([]byte, error) {
	d, err := ToDict(e)
	if err != nil {
		return nil, err
	}
	return canon.Marshal(d)
}

// Unmarshal decodes an expression from JSON.
func Unmarshal(data []byte, lookup schema.Lookup) (Expr, error) {
	obj, err := canon.DecodeObject(data)
	if err != nil {
		return nil, err
	}
	return FromDict(obj, lookup)
}

// Fingerprint returns a stable content hash of an expression. Structurally
// equal expressions have equal fingerprints.
func Fingerprint(e Expr) (string, error) {
	d, err := ToDict(e)
	if err != nil {
		return "", err
	}
	return canon.Fingerprint(canon.DomainQuery, d)
}

// SelectionFingerprint returns a stable content hash of a selection.
func SelectionFingerprint(s Selection) (string, error) {
	d, err := encodeValue(s)
	if err != nil {
		return "", err
	}
	return canon.Fingerprint(canon.DomainSelection, d)
}
