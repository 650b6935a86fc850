package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/orb-framework/orb-sub002/internal/query"
	"github.com/orb-framework/orb-sub002/internal/schema"
)

// MatchFunc is the name of the SQL function the store registers for
// Matches/DoesNotMatch. It is called as orb_match(pattern, text, cs) and
// returns 1, 0, or NULL when the pattern or text cannot be evaluated.
const MatchFunc = "orb_match"

// Resolver is what the compiler needs from a schema registry.
type Resolver interface {
	query.Resolver
	AllColumns(model string) ([]*schema.Column, error)
	Ancestors(model string) ([]*schema.Schema, error)
}

// SQLCompiler compiles expanded query expressions to parameterized SQL for
// SQLite.
//
// Every top-level SELECT carries an ORDER BY on the id column with COLLATE
// BINARY. Values are always bound as parameters, never interpolated.
type SQLCompiler struct {
	res Resolver
}

// NewSQLCompiler creates a compiler resolving models and columns through res.
func NewSQLCompiler(res Resolver) *SQLCompiler {
	return &SQLCompiler{res: res}
}

// Compile converts a selection to a SELECT statement.
// Returns (sql, params, error).
//
// The selection's Where must already be expanded: a dotted column name is
// reported as QueryInvalid.
func (c *SQLCompiler) Compile(sel query.Selection) (string, []any, error) {
	f, err := c.compileSelect(sel, true)
	if err != nil {
		return "", nil, err
	}
	return f.sql, f.args, nil
}

// CompileWhere compiles an expression to a WHERE clause fragment, with
// bare columns resolved against model.
func (c *SQLCompiler) CompileWhere(e query.Expr, model string) (string, []any, error) {
	f, err := c.compileExpr(e, model)
	if err != nil {
		return "", nil, err
	}
	return f.sql, f.args, nil
}

func (c *SQLCompiler) compileSelect(sel query.Selection, ordered bool) (fragment, error) {
	s, err := c.res.Schema(sel.Model)
	if err != nil {
		return fragment{}, err
	}

	var cols []*schema.Column
	if len(sel.Columns) == 0 {
		if cols, err = c.res.AllColumns(sel.Model); err != nil {
			return fragment{}, err
		}
	}
	for _, name := range sel.Columns {
		if strings.Contains(name, ".") {
			return fragment{}, schema.NewQueryInvalid(sel.Model, name, "cannot select a path")
		}
		col, err := c.res.Resolve(sel.Model, name)
		if err != nil {
			return fragment{}, err
		}
		cols = append(cols, col)
	}

	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = quoteIdent(col.FieldName())
	}

	out := fragment{sql: fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), quoteIdent(s.DBName()))}

	if sel.Where != nil && !sel.Where.IsNull() {
		where, err := c.compileExpr(sel.Where, sel.Model)
		if err != nil {
			return fragment{}, fmt.Errorf("compile where: %w", err)
		}
		out = sqlf("%s WHERE %s", out, where)
	}

	if ordered {
		id, err := c.res.IDColumn(sel.Model)
		if err != nil {
			return fragment{}, err
		}
		out.sql += " ORDER BY " + quoteIdent(id.FieldName()) + " COLLATE BINARY ASC"
	}
	return out, nil
}

func (c *SQLCompiler) compileExpr(e query.Expr, model string) (fragment, error) {
	switch v := e.(type) {
	case nil:
		return raw("1 = 1"), nil
	case query.Query:
		return c.compileQuery(v, model)
	case query.Compound:
		return c.compileCompound(v, model)
	default:
		return fragment{}, fmt.Errorf("unsupported expression type: %T", e)
	}
}

// compileCompound joins the non-null children. A compound without any
// matches everything.
func (c *SQLCompiler) compileCompound(cmp query.Compound, model string) (fragment, error) {
	var parts []fragment
	for _, child := range cmp.Queries() {
		if child.IsNull() {
			continue
		}
		f, err := c.compileExpr(child, model)
		if err != nil {
			return fragment{}, err
		}
		parts = append(parts, f)
	}
	switch len(parts) {
	case 0:
		return raw("1 = 1"), nil
	case 1:
		return parts[0], nil
	}

	sep := " AND "
	if cmp.Op() == query.Or {
		sep = " OR "
	}
	out := fragment{sql: "("}
	for i, p := range parts {
		if i > 0 {
			out.sql += sep
		}
		out.sql += p.sql
		out.args = append(out.args, p.args...)
	}
	out.sql += ")"
	return out, nil
}

func (c *SQLCompiler) compileQuery(q query.Query, ctx string) (fragment, error) {
	if q.IsNull() {
		return raw("1 = 1"), nil
	}

	model, err := c.leafModel(q, ctx)
	if err != nil {
		return fragment{}, err
	}

	lhs, err := c.operand(model, q.Column(), q.Functions())
	if err != nil {
		return fragment{}, err
	}
	for _, term := range q.Math() {
		p, err := param(term.Value)
		if err != nil {
			return fragment{}, fmt.Errorf("%s: math: %w", q.Column(), err)
		}
		lhs = sqlf("(%s "+term.Op.Symbol()+" %s)", lhs, arg(p))
	}

	switch v := q.Value().(type) {
	case query.Marker:
		return compileMarker(q.Op(), v, lhs), nil
	case nil:
		switch q.Op() {
		case query.OpIs:
			return sqlf("%s IS NULL", lhs), nil
		case query.OpIsNot:
			return sqlf("%s IS NOT NULL", lhs), nil
		}
		return raw("0 = 1"), nil
	case query.Selection:
		return c.compileSubSelect(q, lhs, v)
	case query.Compound:
		return fragment{}, schema.NewQueryInvalid(model, q.Column(), "compound value cannot be compiled")
	case query.Query:
		if v.IsNull() || v.Column() == "" {
			return raw("0 = 1"), nil
		}
		rhs, err := c.operand(model, v.Column(), v.Functions())
		if err != nil {
			return fragment{}, err
		}
		return compileOp(q, lhs, rhs, nil)
	}

	switch q.Op() {
	case query.OpIsIn, query.OpIsNotIn:
		return compileList(q, lhs)
	case query.OpBetween:
		return compileBetween(q, lhs)
	}

	p, err := param(q.Value())
	if err != nil {
		return fragment{}, fmt.Errorf("%s: %w", q.Column(), err)
	}
	return compileOp(q, lhs, arg(p), p)
}

// leafModel returns the model a leaf reads from. A leaf may name the
// context model or one of its ancestors; other models must be reached
// through a sub-select.
func (c *SQLCompiler) leafModel(q query.Query, ctx string) (string, error) {
	model := q.Model()
	if model == "" {
		model = ctx
	}
	if model == "" {
		return "", schema.NewQueryInvalid("", q.Column(), "no model context")
	}
	if strings.Contains(q.Column(), ".") {
		return "", schema.NewQueryInvalid(model, q.Column(), "unexpanded path")
	}
	if ctx == "" || model == ctx {
		return ctx, nil
	}
	ancestors, err := c.res.Ancestors(ctx)
	if err != nil {
		return "", err
	}
	for _, a := range ancestors {
		if a.Name() == model {
			return ctx, nil
		}
	}
	return "", schema.NewQueryInvalid(model, q.Column(), fmt.Sprintf("not a column of %s", ctx))
}

// operand renders a column with its functions applied.
func (c *SQLCompiler) operand(model, column string, funcs []query.Function) (fragment, error) {
	col, err := c.res.Resolve(model, column)
	if err != nil {
		return fragment{}, err
	}
	expr := quoteIdent(col.FieldName())
	for _, f := range funcs {
		expr = applyFunction(expr, f)
	}
	return raw(expr), nil
}

// applyFunction mirrors the evaluator: text functions leave non-text
// values alone and ABS leaves non-numbers alone.
func applyFunction(x string, f query.Function) string {
	switch f {
	case query.FuncLower:
		return fmt.Sprintf("CASE WHEN typeof(%[1]s) = 'text' THEN LOWER(%[1]s) ELSE %[1]s END", x)
	case query.FuncUpper:
		return fmt.Sprintf("CASE WHEN typeof(%[1]s) = 'text' THEN UPPER(%[1]s) ELSE %[1]s END", x)
	case query.FuncAbs:
		return fmt.Sprintf("CASE WHEN typeof(%[1]s) IN ('integer', 'real') THEN ABS(%[1]s) ELSE %[1]s END", x)
	case query.FuncAsString:
		return fmt.Sprintf("CAST(%s AS TEXT)", x)
	}
	return x
}

func compileMarker(op query.Op, m query.Marker, lhs fragment) fragment {
	empty := sqlf("(%s IS NULL OR %s = '')", lhs, lhs)
	notEmpty := sqlf("(%s IS NOT NULL AND %s <> '')", lhs, lhs)

	switch m {
	case query.All, query.Undefined:
		return raw("1 = 1")
	case query.Empty:
		switch op {
		case query.OpIs:
			return empty
		case query.OpIsNot:
			return notEmpty
		}
	case query.NotEmpty:
		switch op {
		case query.OpIs:
			return notEmpty
		case query.OpIsNot:
			return empty
		}
	}
	return raw("0 = 1")
}

func (c *SQLCompiler) compileSubSelect(q query.Query, lhs fragment, sel query.Selection) (fragment, error) {
	if q.Op() != query.OpIsIn && q.Op() != query.OpIsNotIn {
		return fragment{}, schema.NewQueryInvalid(q.Model(), q.Column(),
			fmt.Sprintf("sub-select value with operator %s", q.Op()))
	}
	if len(sel.Columns) != 1 {
		id, err := c.res.IDColumn(sel.Model)
		if err != nil {
			return fragment{}, err
		}
		if len(sel.Columns) > 1 {
			return fragment{}, schema.NewQueryInvalid(sel.Model, strings.Join(sel.Columns, ","), "sub-select must yield one column")
		}
		sel.Columns = []string{id.Name}
	}
	sub, err := c.compileSelect(sel, false)
	if err != nil {
		return fragment{}, fmt.Errorf("sub-select %s: %w", sel.Model, err)
	}
	if q.Op() == query.OpIsNotIn {
		return sqlf("%s NOT IN (%s)", lhs, sub), nil
	}
	return sqlf("%s IN (%s)", lhs, sub), nil
}

// compileList handles literal IsIn/IsNotIn lists. An empty list never
// matches IsIn and always matches IsNotIn.
func compileList(q query.Query, lhs fragment) (fragment, error) {
	list, ok := q.Value().([]any)
	if !ok {
		return fragment{}, schema.NewQueryInvalid(q.Model(), q.Column(),
			fmt.Sprintf("%s needs a list, got %T", q.Op(), q.Value()))
	}
	if len(list) == 0 {
		if q.Op() == query.OpIsNotIn {
			return raw("1 = 1"), nil
		}
		return raw("0 = 1"), nil
	}

	items := fragment{}
	for i, elem := range list {
		p, err := param(elem)
		if err != nil {
			return fragment{}, fmt.Errorf("%s[%d]: %w", q.Column(), i, err)
		}
		if i > 0 {
			items.sql += ", "
		}
		items.sql += "?"
		items.args = append(items.args, p)
	}
	if q.Op() == query.OpIsNotIn {
		return sqlf("%s NOT IN (%s)", lhs, items), nil
	}
	return sqlf("%s IN (%s)", lhs, items), nil
}

// compileBetween is exclusive at both ends.
func compileBetween(q query.Query, lhs fragment) (fragment, error) {
	bounds, ok := q.Value().([]any)
	if !ok || len(bounds) != 2 {
		return fragment{}, schema.NewQueryInvalid(q.Model(), q.Column(), "Between needs two bounds")
	}
	if bounds[0] == nil || bounds[1] == nil {
		return raw("0 = 1"), nil
	}
	lo, err := param(bounds[0])
	if err != nil {
		return fragment{}, err
	}
	hi, err := param(bounds[1])
	if err != nil {
		return fragment{}, err
	}
	cmp := sqlf("(%s > %s AND %s < %s)", lhs, arg(lo), lhs, arg(hi))
	return guarded(lhs, lo, cmp), nil
}

// compileOp renders a binary operator. p is the bound value, or nil when
// rhs is another column.
func compileOp(q query.Query, lhs, rhs fragment, p any) (fragment, error) {
	op := q.Op()
	field := lhs
	if q.IsInverted() && op.Swappable() {
		lhs, rhs = rhs, lhs
	}

	switch op {
	case query.OpIs:
		return sqlf("%s IS %s", lhs, rhs), nil
	case query.OpIsNot:
		return sqlf("%s IS NOT %s", lhs, rhs), nil
	case query.OpLessThan, query.OpBefore:
		return guarded(field, p, sqlf("%s < %s", lhs, rhs)), nil
	case query.OpLessThanOrEqual:
		return guarded(field, p, sqlf("%s <= %s", lhs, rhs)), nil
	case query.OpGreaterThan, query.OpAfter:
		return guarded(field, p, sqlf("%s > %s", lhs, rhs)), nil
	case query.OpGreaterThanOrEqual:
		return guarded(field, p, sqlf("%s >= %s", lhs, rhs)), nil
	case query.OpMatches, query.OpDoesNotMatch:
		cs := 0
		if q.CaseSensitive() {
			cs = 1
		}
		want := 1
		if op == query.OpDoesNotMatch {
			want = 0
		}
		return sqlf("%s(%s, %s, %s) = "+fmt.Sprint(want), raw(MatchFunc), rhs, lhs, arg(cs)), nil
	}

	if !op.IsStringOp() {
		return fragment{}, schema.NewQueryInvalid(q.Model(), q.Column(), fmt.Sprintf("cannot compile operator %s", op))
	}
	if p != nil {
		if _, ok := p.(string); !ok {
			return raw("0 = 1"), nil
		}
	}

	guard := sqlf("typeof(%s) = 'text' AND typeof(%s) = 'text'", lhs, rhs)
	if !q.CaseSensitive() {
		lhs = sqlf("LOWER(%s)", lhs)
		rhs = sqlf("LOWER(%s)", rhs)
	}

	var cmp fragment
	switch op {
	case query.OpContains:
		cmp = sqlf("instr(%s, %s) > 0", lhs, rhs)
	case query.OpDoesNotContain:
		cmp = sqlf("instr(%s, %s) = 0", lhs, rhs)
	case query.OpStartsWith:
		cmp = sqlf("instr(%s, %s) = 1", lhs, rhs)
	case query.OpDoesNotStartWith:
		cmp = sqlf("instr(%s, %s) <> 1", lhs, rhs)
	case query.OpEndsWith:
		cmp = sqlf("substr(%s, max(length(%s) - length(%s), 0) + 1) = %s", lhs, lhs, rhs, rhs)
	case query.OpDoesNotEndWith:
		cmp = sqlf("substr(%s, max(length(%s) - length(%s), 0) + 1) <> %s", lhs, lhs, rhs, rhs)
	}
	return sqlf("(%s AND %s)", guard, cmp), nil
}

// guarded restricts an ordering comparison to fields of the bound value's
// kind. SQLite orders across storage classes; the evaluator does not.
func guarded(field fragment, p any, cmp fragment) fragment {
	switch p.(type) {
	case int64, float64, bool:
		return sqlf("(typeof(%s) IN ('integer', 'real') AND %s)", field, cmp)
	case string:
		return sqlf("(typeof(%s) = 'text' AND %s)", field, cmp)
	}
	return cmp
}

// param converts an in-memory value to a driver argument. Times are bound
// in their stored text form.
func param(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	case time.Time:
		return query.FormatTime(val), nil
	case time.Duration:
		return int64(val), nil
	default:
		return nil, fmt.Errorf("value of type %T cannot be bound", v)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
