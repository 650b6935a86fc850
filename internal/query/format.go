package query

import (
	"fmt"
	"strings"
)

// String renders the query for logs and debugging. The format is not
// stable; use ToDict for anything machine-read.
func (q Query) String() string {
	if q.IsNull() {
		return "<null>"
	}
	field := q.column
	if q.model != "" {
		field = q.model + "." + field
	}
	for _, f := range q.functions {
		field = fmt.Sprintf("%s(%s)", f, field)
	}
	for _, m := range q.math {
		field = fmt.Sprintf("(%s %s %v)", field, m.Op.Symbol(), formatValue(m.Value))
	}
	var sb strings.Builder
	if q.inverted {
		sb.WriteString("~")
	}
	fmt.Fprintf(&sb, "%s %s %s", field, q.op, formatValue(q.value))
	if q.caseSensitive && q.op.IsStringOp() {
		sb.WriteString(" (case-sensitive)")
	}
	return sb.String()
}

// String renders the compound with its children in parentheses.
func (c Compound) String() string {
	parts := make([]string, len(c.queries))
	for i, q := range c.queries {
		parts[i] = fmt.Sprint(q)
	}
	sep := " AND "
	if c.op == Or {
		sep = " OR "
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case Marker:
		return strings.Trim(strings.TrimPrefix(string(val), "__QUERY__"), "_")
	case Selection:
		where := "*"
		if val.Where != nil {
			where = fmt.Sprint(val.Where)
		}
		return fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(val.Columns, ", "), val.Model, where)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(val)
	}
}
