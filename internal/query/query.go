package query

import (
	"slices"

	"github.com/orb-framework/orb-sub002/internal/schema"
)

// Query is a leaf comparison: a column, an operator, a value and optional
// modifiers.
//
// The zero Query is not the null query (its value is nil, not Undefined);
// use Null.
type Query struct {
	model         string
	column        string
	op            Op
	value         any
	caseSensitive bool
	inverted      bool
	functions     []Function
	math          []MathTerm
}

// MathTerm is one arithmetic step applied to the field, in order.
type MathTerm struct {
	Op    MathOp
	Value any
}

// New creates a query on a bare column name. The model is inferred from
// context at expansion or compilation time.
func New(column string) Query {
	return Query{column: column, op: OpIs, value: Undefined}
}

// On creates a query on a column of a named model.
func On(model, column string) Query {
	return Query{model: model, column: column, op: OpIs, value: Undefined}
}

// ForColumn creates a query on a resolved column handle.
func ForColumn(c *schema.Column) Query {
	return On(c.Schema(), c.Name)
}

// ForModel creates a query on the id column of a schema.
func ForModel(s *schema.Schema) Query {
	id := s.IDColumnName()
	if id == "" {
		id = schema.DefaultIDColumn
	}
	return On(s.Name(), id)
}

// Null returns the null query, the identity element of And/Or.
func Null() Query {
	return Query{value: Undefined}
}

func (Query) expr() {}

// Model returns the model name, or "" when it is inferred from context.
func (q Query) Model() string { return q.model }

// Column returns the column name or dot path.
func (q Query) Column() string { return q.column }

// Op returns the comparison operator.
func (q Query) Op() Op { return q.op }

// Value returns the comparison value.
func (q Query) Value() any { return q.value }

// CaseSensitive reports whether string operators compare case-sensitively.
func (q Query) CaseSensitive() bool { return q.caseSensitive }

// IsInverted reports whether the operands are swapped.
func (q Query) IsInverted() bool { return q.inverted }

// Functions returns the function chain in application order.
func (q Query) Functions() []Function { return slices.Clone(q.functions) }

// Math returns the math chain in application order.
func (q Query) Math() []MathTerm { return slices.Clone(q.math) }

// IsNull reports whether the query has no column, no operator and an
// undefined value.
func (q Query) IsNull() bool {
	return q.column == "" && q.op == OpUnset && (q.value == nil || q.value == Undefined)
}

func (q Query) compare(op Op, value any) Query {
	q.op = op
	q.value = normalizeValue(value)
	return q
}

// WithModel returns a copy bound to model.
func (q Query) WithModel(model string) Query {
	q.model = model
	return q
}

// WithColumn returns a copy on a different column.
func (q Query) WithColumn(column string) Query {
	q.column = column
	return q
}

// WithCaseSensitive returns a copy with the case-sensitivity flag set.
func (q Query) WithCaseSensitive(sensitive bool) Query {
	q.caseSensitive = sensitive
	return q
}

// Invert returns a copy with the inverted flag flipped.
func (q Query) Invert() Query {
	q.inverted = !q.inverted
	return q
}

func (q Query) Is(value any) Query                 { return q.compare(OpIs, value) }
func (q Query) IsNot(value any) Query              { return q.compare(OpIsNot, value) }
func (q Query) LessThan(value any) Query           { return q.compare(OpLessThan, value) }
func (q Query) LessThanOrEqual(value any) Query    { return q.compare(OpLessThanOrEqual, value) }
func (q Query) GreaterThan(value any) Query        { return q.compare(OpGreaterThan, value) }
func (q Query) GreaterThanOrEqual(value any) Query { return q.compare(OpGreaterThanOrEqual, value) }
func (q Query) Before(value any) Query             { return q.compare(OpBefore, value) }
func (q Query) After(value any) Query              { return q.compare(OpAfter, value) }

// Between matches values strictly between low and high.
func (q Query) Between(low, high any) Query {
	return q.compare(OpBetween, []any{low, high})
}

// Contains matches fields containing value. It resets the query to
// case-insensitive; chain WithCaseSensitive afterwards to change that.
func (q Query) Contains(value any) Query {
	q = q.compare(OpContains, value)
	q.caseSensitive = false
	return q
}

func (q Query) DoesNotContain(value any) Query {
	q = q.compare(OpDoesNotContain, value)
	q.caseSensitive = false
	return q
}

func (q Query) StartsWith(value any) Query       { return q.compare(OpStartsWith, value) }
func (q Query) DoesNotStartWith(value any) Query { return q.compare(OpDoesNotStartWith, value) }
func (q Query) EndsWith(value any) Query         { return q.compare(OpEndsWith, value) }
func (q Query) DoesNotEndWith(value any) Query   { return q.compare(OpDoesNotEndWith, value) }

// Matches matches fields against a regular expression anchored at the
// start. It sets the query case-sensitive.
func (q Query) Matches(pattern string) Query {
	q = q.compare(OpMatches, pattern)
	q.caseSensitive = true
	return q
}

func (q Query) DoesNotMatch(pattern string) Query {
	q = q.compare(OpDoesNotMatch, pattern)
	q.caseSensitive = true
	return q
}

// In matches fields equal to any member of values. A Selection or nested
// expression is kept as a deferred sub-query; a slice is copied into a
// list; a scalar becomes a one-element list.
func (q Query) In(values any) Query {
	q.op = OpIsIn
	q.value = listValue(values)
	return q
}

// NotIn is the negation of In.
func (q Query) NotIn(values any) Query {
	q.op = OpIsNotIn
	q.value = listValue(values)
	return q
}

func (q Query) withFunction(f Function) Query {
	q.functions = append(slices.Clone(q.functions), f)
	return q
}

func (q Query) Lower() Query    { return q.withFunction(FuncLower) }
func (q Query) Upper() Query    { return q.withFunction(FuncUpper) }
func (q Query) Abs() Query      { return q.withFunction(FuncAbs) }
func (q Query) AsString() Query { return q.withFunction(FuncAsString) }

func (q Query) withMath(op MathOp, value any) Query {
	q.math = append(slices.Clone(q.math), MathTerm{Op: op, Value: normalizeValue(value)})
	return q
}

func (q Query) Add(value any) Query      { return q.withMath(MathAdd, value) }
func (q Query) Subtract(value any) Query { return q.withMath(MathSubtract, value) }
func (q Query) Multiply(value any) Query { return q.withMath(MathMultiply, value) }
func (q Query) Divide(value any) Query   { return q.withMath(MathDivide, value) }
func (q Query) BitAnd(value any) Query   { return q.withMath(MathAnd, value) }
func (q Query) BitOr(value any) Query    { return q.withMath(MathOr, value) }

// Amp implements the & operator: boolean AND when other is an expression,
// a bitwise math term otherwise.
func (q Query) Amp(other any) Expr {
	if e, ok := other.(Expr); ok {
		return q.And(e)
	}
	return q.BitAnd(other)
}

// Pipe implements the | operator: boolean OR when other is an expression,
// a bitwise math term otherwise.
func (q Query) Pipe(other any) Expr {
	if e, ok := other.(Expr); ok {
		return q.Or(e)
	}
	return q.BitOr(other)
}

func (q Query) And(other Expr) Expr { return q.combine(And, other) }
func (q Query) Or(other Expr) Expr  { return q.combine(Or, other) }

func (q Query) combine(op CompoundOp, other Expr) Expr {
	if other == nil || other.IsNull() {
		return q
	}
	if q.IsNull() {
		return other
	}
	if c, ok := other.(Compound); ok && c.op == op {
		children := make([]Expr, 0, len(c.queries)+1)
		children = append(children, q)
		children = append(children, c.queries...)
		return Compound{op: op, queries: children}
	}
	return Compound{op: op, queries: []Expr{q, other}}
}

// Negated replaces the operator with its negation partner and flips the
// inverted flag. Both change together.
func (q Query) Negated() Expr {
	return q.Negate()
}

// Negate is Negated with a concrete result type.
func (q Query) Negate() Query {
	q.op = q.op.Negate()
	q.inverted = !q.inverted
	return q
}

// Columns resolves the query's column, and the columns of any nested
// sub-query value. Leaves without model context are skipped.
func (q Query) Columns(res Resolver, model string) ([]*schema.Column, error) {
	ctx := q.modelOr(model)
	var cols []*schema.Column
	if ctx != "" && q.column != "" {
		col, err := res.Resolve(ctx, q.column)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	switch v := q.value.(type) {
	case Selection:
		if v.Where != nil {
			nested, err := v.Where.Columns(res, v.Model)
			if err != nil {
				return nil, err
			}
			cols = append(cols, nested...)
		}
	case Expr:
		nested, err := v.Columns(res, ctx)
		if err != nil {
			return nil, err
		}
		cols = append(cols, nested...)
	}
	return cols, nil
}

// Models returns the model names the query references, including those of
// nested sub-queries, in first-seen order.
func (q Query) Models(model string) []string {
	var set orderedSet
	q.collectModels(model, &set)
	return set.items
}

func (q Query) collectModels(model string, set *orderedSet) {
	ctx := q.modelOr(model)
	set.add(ctx)
	switch v := q.value.(type) {
	case Selection:
		v.models(set)
	case Expr:
		for _, m := range v.Models(ctx) {
			set.add(m)
		}
	}
}

// Has reports whether the query, or a nested sub-query, uses column.
func (q Query) Has(column string) bool {
	if q.column == column {
		return true
	}
	switch v := q.value.(type) {
	case Selection:
		return v.Where != nil && v.Where.Has(column)
	case Expr:
		return v.Has(column)
	}
	return false
}

func (q Query) modelOr(model string) string {
	if q.model != "" {
		return q.model
	}
	return model
}
