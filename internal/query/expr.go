package query

import (
	"github.com/orb-framework/orb-sub002/internal/schema"
)

// Expr is a query expression: a Query leaf or a Compound.
//
// Expr is sealed; only this package implements it.
type Expr interface {
	// IsNull reports whether the expression is the composition identity.
	IsNull() bool

	// And composes with other under a boolean AND.
	And(other Expr) Expr

	// Or composes with other under a boolean OR.
	Or(other Expr) Expr

	// Negated returns the negated expression.
	Negated() Expr

	// Expand resolves dot paths and collectors against model.
	Expand(res Resolver, model string, opts ...ExpandOption) (Expr, error)

	// Validate evaluates the expression against an in-memory record.
	Validate(r Record) bool

	// Columns resolves every column the expression references.
	Columns(res Resolver, model string) ([]*schema.Column, error)

	// Models returns every model name the expression references.
	Models(model string) []string

	// Has reports whether any leaf references the column name.
	Has(column string) bool

	expand(res Resolver, model string, cfg *expandConfig) (Expr, error)
	expr()
}

// Resolver is the schema lookup surface expansion and column traversal
// need. *schema.Registry implements it.
type Resolver interface {
	Schema(name string) (*schema.Schema, error)
	Member(model, name string) (schema.Member, error)
	Resolve(model, path string) (*schema.Column, error)
	IDColumn(model string) (*schema.Column, error)
	CollectorTarget(c *schema.Collector) (string, error)
}

// Selection describes a sub-select: the Columns of Model records matching
// Where. It is used as the value of IsIn/IsNotIn queries and is never
// executed by this package.
type Selection struct {
	Model   string
	Columns []string
	Where   Expr
}

// Select is a convenience constructor for a Selection.
func Select(model string, where Expr, columns ...string) Selection {
	return Selection{
		Model:   model,
		Columns: append([]string(nil), columns...),
		Where:   where,
	}
}

func (s Selection) models(out *orderedSet) {
	out.add(s.Model)
	if s.Where != nil {
		for _, m := range s.Where.Models(s.Model) {
			out.add(m)
		}
	}
}

// orderedSet collects strings in first-seen order.
type orderedSet struct {
	seen  map[string]bool
	items []string
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if !s.seen[v] {
		s.seen[v] = true
		s.items = append(s.items, v)
	}
}
