package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	q := New("age")
	assert.Equal(t, "age", q.Column())
	assert.Equal(t, "", q.Model())
	assert.Equal(t, OpIs, q.Op())
	assert.Equal(t, Undefined, q.Value())
	assert.False(t, q.CaseSensitive())
	assert.False(t, q.IsInverted())
	assert.False(t, q.IsNull())

	assert.True(t, Null().IsNull())
	assert.False(t, On("User", "age").IsNull())
}

func TestConstructors_FromSchema(t *testing.T) {
	reg := companyRegistry(t)

	col, err := reg.Column("Department", "floor")
	require.NoError(t, err)
	q := ForColumn(col)
	assert.Equal(t, "Department", q.Model())
	assert.Equal(t, "floor", q.Column())

	m := ForModel(reg.MustSchema("Project"))
	assert.Equal(t, "Project", m.Model())
	assert.Equal(t, "id", m.Column())

	inherited := ForModel(reg.MustSchema("Employee"))
	assert.Equal(t, "id", inherited.Column())
}

func TestBuilders_ReturnNewValues(t *testing.T) {
	base := New("name")
	lowered := base.Lower()
	compared := lowered.Is("ada")

	assert.Empty(t, base.Functions())
	assert.Equal(t, Undefined, base.Value())
	assert.Equal(t, []Function{FuncLower}, lowered.Functions())
	assert.Equal(t, Undefined, lowered.Value())
	assert.Equal(t, "ada", compared.Value())

	// Appending to a shared prefix must not leak between branches.
	a := lowered.Upper()
	b := lowered.Abs()
	assert.Equal(t, []Function{FuncLower, FuncUpper}, a.Functions())
	assert.Equal(t, []Function{FuncLower, FuncAbs}, b.Functions())

	fns := a.Functions()
	fns[0] = FuncAsString
	assert.Equal(t, FuncLower, a.Functions()[0], "accessor must return a copy")
}

func TestBuilders_OperatorsAndValues(t *testing.T) {
	tests := []struct {
		name  string
		q     Query
		op    Op
		value any
	}{
		{"is", New("x").Is(5), OpIs, int64(5)},
		{"is not", New("x").IsNot("a"), OpIsNot, "a"},
		{"less than", New("x").LessThan(uint8(3)), OpLessThan, int64(3)},
		{"less than or equal", New("x").LessThanOrEqual(float32(1.5)), OpLessThanOrEqual, 1.5},
		{"greater than", New("x").GreaterThan(18), OpGreaterThan, int64(18)},
		{"greater than or equal", New("x").GreaterThanOrEqual(18), OpGreaterThanOrEqual, int64(18)},
		{"before", New("x").Before("2020"), OpBefore, "2020"},
		{"after", New("x").After("2020"), OpAfter, "2020"},
		{"starts with", New("x").StartsWith("a"), OpStartsWith, "a"},
		{"does not start with", New("x").DoesNotStartWith("a"), OpDoesNotStartWith, "a"},
		{"ends with", New("x").EndsWith("a"), OpEndsWith, "a"},
		{"does not end with", New("x").DoesNotEndWith("a"), OpDoesNotEndWith, "a"},
		{"marker", New("x").Is(NotEmpty), OpIs, NotEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.op, tt.q.Op())
			assert.Equal(t, tt.value, tt.q.Value())
		})
	}
}

func TestBetween_StoresPair(t *testing.T) {
	q := New("name").Between("A", "M")
	assert.Equal(t, OpBetween, q.Op())
	assert.Equal(t, []any{"A", "M"}, q.Value())
}

func TestIn_NormalizesToList(t *testing.T) {
	q := New("tags").In([]string{"a", "b", "c"})
	assert.Equal(t, OpIsIn, q.Op())
	assert.Equal(t, []any{"a", "b", "c"}, q.Value())

	assert.Equal(t, []any{int64(1), int64(2)}, New("id").In([2]int{1, 2}).Value())
	assert.Equal(t, []any{"solo"}, New("tag").In("solo").Value())
	assert.Equal(t, []any{int64(7)}, New("id").NotIn(7).Value())
	assert.Equal(t, OpIsNotIn, New("id").NotIn(7).Op())
	assert.Equal(t, []any{}, New("id").In([]int{}).Value())

	sel := Select("Department", New("floor").GreaterThan(3), "id")
	assert.Equal(t, sel, New("department").In(sel).Value(), "selections are deferred, not materialized")

	nested := On("Department", "id").Is(1)
	assert.Equal(t, nested, New("department").In(nested).Value())
}

func TestCaseSensitivityDefaults(t *testing.T) {
	assert.False(t, New("name").Contains("a").CaseSensitive())
	assert.False(t, New("name").WithCaseSensitive(true).Contains("a").CaseSensitive(),
		"Contains resets to case-insensitive")
	assert.True(t, New("name").Contains("a").WithCaseSensitive(true).CaseSensitive())
	assert.True(t, New("name").Matches("^a").CaseSensitive())
	assert.True(t, New("name").DoesNotMatch("^a").CaseSensitive())
	assert.False(t, New("name").DoesNotContain("a").CaseSensitive())
}

func TestMathBuilders(t *testing.T) {
	q := New("offset").Add(10).Multiply(2.5).Subtract(1).Divide(2).BitAnd(3).BitOr(4).GreaterThan(0)
	assert.Equal(t, []MathTerm{
		{Op: MathAdd, Value: int64(10)},
		{Op: MathMultiply, Value: 2.5},
		{Op: MathSubtract, Value: int64(1)},
		{Op: MathDivide, Value: int64(2)},
		{Op: MathAnd, Value: int64(3)},
		{Op: MathOr, Value: int64(4)},
	}, q.Math())
}

func TestAmpPipe_DispatchOnOperandType(t *testing.T) {
	a := New("flags")
	b := New("x").Is(1)

	math := a.Amp(4)
	mq, ok := math.(Query)
	require.True(t, ok, "non-expression operand yields a math-annotated query")
	assert.Equal(t, []MathTerm{{Op: MathAnd, Value: int64(4)}}, mq.Math())

	boolean := a.Is(1).Amp(b)
	c, ok := boolean.(Compound)
	require.True(t, ok, "expression operand yields boolean composition")
	assert.Equal(t, And, c.Op())

	piped := a.Pipe(8)
	pq, ok := piped.(Query)
	require.True(t, ok)
	assert.Equal(t, []MathTerm{{Op: MathOr, Value: int64(8)}}, pq.Math())

	orred := a.Is(1).Pipe(AllOf(b, New("y").Is(2)))
	oc, ok := orred.(Compound)
	require.True(t, ok)
	assert.Equal(t, Or, oc.Op())
	assert.Equal(t, 2, oc.Len())
}

func TestNullIdentity(t *testing.T) {
	q := New("age").GreaterThan(18)
	c := AllOf(New("a").Is(1), New("b").Is(2))

	for _, e := range []Expr{q, c} {
		assert.Equal(t, e, e.And(Null()))
		assert.Equal(t, e, e.Or(Null()))
		assert.Equal(t, e, Null().And(e))
		assert.Equal(t, e, Null().Or(e))
		assert.Equal(t, e, e.And(AllOf()))
		assert.Equal(t, e, AnyOf(Null()).Or(e))
	}
	assert.True(t, Null().And(Null()).IsNull())
}

func TestFlatteningAssociativity(t *testing.T) {
	a, b, c := New("a").Is(1), New("b").Is(2), New("c").Is(3)

	left := a.And(b).And(c)
	right := a.And(b.And(c))

	lc, ok := left.(Compound)
	require.True(t, ok)
	assert.Equal(t, And, lc.Op())
	assert.Equal(t, []Expr{a, b, c}, lc.Queries())
	assert.Equal(t, left, right)

	d := New("d").Is(4)
	both := a.And(b).And(c.And(d))
	assert.Equal(t, []Expr{a, b, c, d}, both.(Compound).Queries())
}

func TestMixedOperatorsNest(t *testing.T) {
	a, b, c := New("a").Is(1), New("b").Is(2), New("c").Is(3)

	e := a.And(b).Or(c)
	oc := e.(Compound)
	assert.Equal(t, Or, oc.Op())
	require.Equal(t, 2, oc.Len())
	assert.Equal(t, AllOf(a, b), oc.At(0))
	assert.Equal(t, c, oc.At(1))

	f := c.Or(a.And(b))
	fc := f.(Compound)
	assert.Equal(t, Or, fc.Op())
	assert.Equal(t, []Expr{c, AllOf(a, b)}, fc.Queries())
}

func TestCompoundComposition_DoesNotAlias(t *testing.T) {
	a, b := New("a").Is(1), New("b").Is(2)
	base := a.And(b).(Compound)

	x := base.And(New("x").Is(1)).(Compound)
	y := base.And(New("y").Is(1)).(Compound)

	assert.Equal(t, 2, base.Len())
	assert.Equal(t, "x", x.At(2).(Query).Column())
	assert.Equal(t, "y", y.At(2).(Query).Column())
}

func TestScenario_AgeRange(t *testing.T) {
	e := New("age").GreaterThan(18).And(New("age").LessThan(65))
	c, ok := e.(Compound)
	require.True(t, ok)
	assert.Equal(t, And, c.Op())
	assert.Equal(t, 2, c.Len())
}

func TestLeafNegation(t *testing.T) {
	q := New("x").Is(5)
	neg, ok := q.Negated().(Query)
	require.True(t, ok)
	assert.Equal(t, OpIsNot, neg.Op())
	assert.Equal(t, int64(5), neg.Value())
	assert.True(t, neg.IsInverted())

	// Double negation restores the original for every operator.
	for _, op := range allOps() {
		orig := New("x").compare(op, 1)
		assert.Equal(t, orig, orig.Negated().Negated(), op.String())
	}
}

func TestCompoundNegation_OnlyFlipsGrouping(t *testing.T) {
	a, b := New("a").Is(1), New("b").LessThan(2)
	neg := a.And(b).Negated()

	c, ok := neg.(Compound)
	require.True(t, ok)
	assert.Equal(t, Or, c.Op())
	assert.Equal(t, []Expr{a, b}, c.Queries(), "children are not negated")
	assert.Equal(t, a.And(b), neg.Negated())
}

func TestCompoundIsNull(t *testing.T) {
	assert.True(t, AllOf().IsNull())
	assert.True(t, AllOf(Null(), Null()).IsNull())
	assert.False(t, AllOf(Null(), New("a").Is(1)).IsNull())
	assert.Equal(t, 1, NewCompound(And, nil, New("a")).Len(), "nil children are dropped")
}

func TestTraversal(t *testing.T) {
	reg := companyRegistry(t)

	sub := Select("Department", On("Department", "floor").GreaterThan(3), "id")
	e := New("name").Is("Ada").
		And(New("department").In(sub)).
		And(New("age").Is(New("age")))

	assert.Equal(t, []string{"Employee", "Department"}, e.Models("Employee"))
	assert.True(t, e.Has("floor"))
	assert.True(t, e.Has("age"))
	assert.False(t, e.Has("title"))

	cols, err := e.Columns(reg, "Employee")
	require.NoError(t, err)
	var names []string
	for _, c := range cols {
		names = append(names, c.Schema()+"."+c.Name)
	}
	assert.Equal(t, []string{"Person.name", "Employee.department", "Department.floor", "Person.age", "Person.age"}, names)

	_, err = New("salary").Is(1).Columns(reg, "Employee")
	assert.Error(t, err)

	free, err := New("anything").Is(1).Columns(reg, "")
	require.NoError(t, err)
	assert.Empty(t, free, "leaves without model context are skipped")
}

func TestString(t *testing.T) {
	assert.Equal(t, "<null>", Null().String())
	assert.Equal(t, `User.name Is "ada"`, On("User", "name").Is("ada").String())
	assert.Equal(t, "~Lower(name) IsNot 1", New("name").Lower().Is(1).Negate().String())
	assert.Equal(t, "(offset + 10) GreaterThan 5", New("offset").Add(10).GreaterThan(5).String())
	assert.Equal(t, `(a Is 1 OR b Is NOT_EMPTY)`, AnyOf(New("a").Is(1), New("b").Is(NotEmpty)).String())
}
