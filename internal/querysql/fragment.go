package querysql

import "strings"

// fragment is a piece of SQL with the arguments of its placeholders, in
// order.
type fragment struct {
	sql  string
	args []any
}

func raw(sql string) fragment {
	return fragment{sql: sql}
}

func arg(v any) fragment {
	return fragment{sql: "?", args: []any{v}}
}

// sqlf substitutes each %s in format with the next fragment. A fragment
// used twice contributes its arguments twice.
func sqlf(format string, parts ...fragment) fragment {
	var sb strings.Builder
	var args []any
	for i, p := range parts {
		before, after, ok := strings.Cut(format, "%s")
		if !ok {
			panic("querysql: sqlf has fewer verbs than fragments")
		}
		sb.WriteString(before)
		sb.WriteString(p.sql)
		args = append(args, parts[i].args...)
		format = after
	}
	sb.WriteString(format)
	return fragment{sql: sb.String(), args: args}
}
