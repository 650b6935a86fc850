package query

import (
	"slices"

	"github.com/orb-framework/orb-sub002/internal/schema"
)

// Compound is a boolean grouping of expressions.
type Compound struct {
	op      CompoundOp
	queries []Expr
}

// NewCompound groups queries under op. Nil entries are dropped.
func NewCompound(op CompoundOp, queries ...Expr) Compound {
	children := make([]Expr, 0, len(queries))
	for _, q := range queries {
		if q != nil {
			children = append(children, q)
		}
	}
	return Compound{op: op, queries: children}
}

// AllOf groups queries under And.
func AllOf(queries ...Expr) Compound { return NewCompound(And, queries...) }

// AnyOf groups queries under Or.
func AnyOf(queries ...Expr) Compound { return NewCompound(Or, queries...) }

func (Compound) expr() {}

// Op returns the grouping operator.
func (c Compound) Op() CompoundOp { return c.op }

// Queries returns the direct children.
func (c Compound) Queries() []Expr { return slices.Clone(c.queries) }

// Len returns the number of direct children.
func (c Compound) Len() int { return len(c.queries) }

// At returns the i-th child.
func (c Compound) At(i int) Expr { return c.queries[i] }

// IsNull reports whether every child is null. An empty compound is null.
func (c Compound) IsNull() bool {
	for _, q := range c.queries {
		if !q.IsNull() {
			return false
		}
	}
	return true
}

func (c Compound) And(other Expr) Expr { return c.combine(And, other) }
func (c Compound) Or(other Expr) Expr  { return c.combine(Or, other) }

// combine applies the identity and flatten rules: a null side yields the
// other side; a same-operator side contributes its children instead of
// itself.
func (c Compound) combine(op CompoundOp, other Expr) Expr {
	if other == nil || other.IsNull() {
		return c
	}
	if c.IsNull() {
		return other
	}

	oc, otherSame := other.(Compound)
	otherSame = otherSame && oc.op == op

	var children []Expr
	switch {
	case c.op == op && otherSame:
		children = slices.Concat(c.queries, oc.queries)
	case c.op == op:
		children = slices.Concat(c.queries, []Expr{other})
	case otherSame:
		children = slices.Concat([]Expr{c}, oc.queries)
	default:
		children = []Expr{c, other}
	}
	return Compound{op: op, queries: children}
}

// Negated flips And and Or. Children are not negated.
func (c Compound) Negated() Expr {
	return Compound{op: c.op.Flip(), queries: slices.Clone(c.queries)}
}

// Columns collects the columns of every descendant leaf.
func (c Compound) Columns(res Resolver, model string) ([]*schema.Column, error) {
	var cols []*schema.Column
	for _, q := range c.queries {
		nested, err := q.Columns(res, model)
		if err != nil {
			return nil, err
		}
		cols = append(cols, nested...)
	}
	return cols, nil
}

// Models collects the models of every descendant leaf in first-seen order.
func (c Compound) Models(model string) []string {
	var set orderedSet
	for _, q := range c.queries {
		for _, m := range q.Models(model) {
			set.add(m)
		}
	}
	return set.items
}

// Has reports whether any descendant uses column.
func (c Compound) Has(column string) bool {
	for _, q := range c.queries {
		if q.Has(column) {
			return true
		}
	}
	return false
}
