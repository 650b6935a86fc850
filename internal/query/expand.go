package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/orb-framework/orb-sub002/internal/schema"
)

// maxShortcutRewrites bounds shortcut substitution so a shortcut that
// refers back to itself fails instead of looping.
const maxShortcutRewrites = 16

// maxPathDepth bounds the number of hops one expansion may traverse.
// Shortcuts that refer to each other across models recurse through
// references rather than rewrites, and end here.
const maxPathDepth = 64

// FilterFunc replaces a query on a filtered collector. It receives the
// collector and the query as written (model bound, column still the full
// path) and returns the replacement. A nil or null result drops the query.
type FilterFunc func(c *schema.Collector, q Query) (Expr, error)

// ExpandOption configures Expand.
type ExpandOption func(*expandConfig)

type expandConfig struct {
	filters      map[string]FilterFunc
	ignoreFilter bool
	depth        int
}

// descend returns the configuration for expanding the rest of a path one
// hop further down.
func (c *expandConfig) descend(model, path string) (*expandConfig, error) {
	if c.depth >= maxPathDepth {
		return nil, schema.NewQueryInvalid(model, path, "path is too deep")
	}
	inner := *c
	inner.depth++
	return &inner, nil
}

// WithFilters supplies the functions for collectors that declare a filter,
// keyed by filter name.
func WithFilters(filters map[string]FilterFunc) ExpandOption {
	return func(c *expandConfig) {
		if c.filters == nil {
			c.filters = make(map[string]FilterFunc, len(filters))
		}
		for name, fn := range filters {
			c.filters[name] = fn
		}
	}
}

// IgnoreFilter disables collector filters. Expansion of a filter's result
// runs with this set, so a filter cannot recurse into itself.
func IgnoreFilter() ExpandOption {
	return func(c *expandConfig) { c.ignoreFilter = true }
}

func newExpandConfig(opts []ExpandOption) *expandConfig {
	cfg := &expandConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Expand rewrites the query so that it names a plain column on its own
// model.
//
// A dot path is split on its first segment. A reference column becomes
//
//	On(model, first).In(Select(Referenced, <rest expanded>, id))
//
// and a collector becomes an IN on the owner's id against the collector's
// model (two levels for pipes). A collector with a filter is replaced by
// its filter's result first. Undotted plain columns are returned as is.
//
// Fails with QueryInvalid when a dot path has no model context or crosses
// a segment that is neither a reference column nor a collector.
func (q Query) Expand(res Resolver, model string, opts ...ExpandOption) (Expr, error) {
	return q.expand(res, model, newExpandConfig(opts))
}

func (q Query) expand(res Resolver, model string, cfg *expandConfig) (Expr, error) {
	if q.IsNull() {
		return q, nil
	}

	ctx := q.modelOr(model)
	q, err := q.expandValue(res, ctx, cfg)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(q.column, ".")
	if ctx == "" {
		if len(parts) > 1 {
			return nil, schema.NewQueryInvalid("", q.column, "no model context to expand dot path")
		}
		return q, nil
	}

	var member schema.Member
	rewritten := false
	for rewrites := 0; ; rewrites++ {
		member, err = res.Member(ctx, parts[0])
		if err != nil {
			if len(parts) == 1 {
				// Undotted names are left for the backend to report.
				return q, nil
			}
			return nil, err
		}
		if member.Column == nil || member.Column.Shortcut == "" {
			break
		}
		if rewrites == maxShortcutRewrites {
			return nil, schema.NewQueryInvalid(ctx, q.column, "shortcut does not terminate")
		}
		parts = append(member.Column.ShortcutPath(), parts[1:]...)
		rewritten = true
	}

	if c := member.Collector; c != nil && c.Filter != "" && !cfg.ignoreFilter {
		return q.applyFilter(res, ctx, strings.Join(parts, "."), c, cfg)
	}

	if len(parts) == 1 {
		if member.Collector == nil {
			if rewritten {
				return q.WithColumn(parts[0]), nil
			}
			return q, nil
		}
		// A bare collector compares the collected records' ids.
		target, err := res.CollectorTarget(member.Collector)
		if err != nil {
			return nil, err
		}
		targetID, err := res.IDColumn(target)
		if err != nil {
			return nil, err
		}
		parts = append(parts, targetID.Name)
	}

	first, rest := parts[0], strings.Join(parts[1:], ".")
	switch {
	case member.Column != nil && member.Column.IsReference():
		return q.expandReference(res, ctx, first, rest, member.Column, cfg)
	case member.Collector != nil && member.Collector.Kind == schema.ReverseLookup:
		return q.expandReverse(res, ctx, rest, member.Collector, cfg)
	case member.Collector != nil && member.Collector.Kind == schema.Pipe:
		return q.expandPipe(res, ctx, rest, member.Collector, cfg)
	default:
		return nil, schema.NewQueryInvalid(ctx, first, "segment is neither a reference column nor a collector")
	}
}

// expandValue expands the where clause of a Selection value and nested
// expression values.
func (q Query) expandValue(res Resolver, ctx string, cfg *expandConfig) (Query, error) {
	switch v := q.value.(type) {
	case Selection:
		if v.Where == nil {
			return q, nil
		}
		where, err := v.Where.expand(res, v.Model, cfg)
		if err != nil {
			return q, fmt.Errorf("expand sub-select on %s: %w", v.Model, err)
		}
		v.Where = where
		q.value = v
	case Expr:
		nested, err := v.expand(res, ctx, cfg)
		if err != nil {
			return q, err
		}
		q.value = nested
	}
	return q, nil
}

func (q Query) applyFilter(res Resolver, ctx, path string, c *schema.Collector, cfg *expandConfig) (Expr, error) {
	fn, ok := cfg.filters[c.Filter]
	if !ok {
		return nil, schema.NewQueryInvalid(ctx, c.Name, fmt.Sprintf("no function supplied for filter %q", c.Filter))
	}
	replacement, err := fn(c, q.WithModel(ctx).WithColumn(path))
	if err != nil {
		return nil, fmt.Errorf("filter %s on %s.%s: %w", c.Filter, ctx, c.Name, err)
	}
	if replacement == nil || replacement.IsNull() {
		return Null(), nil
	}
	inner := *cfg
	inner.ignoreFilter = true
	return replacement.expand(res, ctx, &inner)
}

func (q Query) expandReference(res Resolver, ctx, first, rest string, col *schema.Column, cfg *expandConfig) (Expr, error) {
	ref := col.Reference
	refID, err := res.IDColumn(ref)
	if err != nil {
		return nil, err
	}
	inner, err := cfg.descend(ref, rest)
	if err != nil {
		return nil, err
	}
	where, err := q.WithModel(ref).WithColumn(rest).expand(res, ref, inner)
	if err != nil {
		return nil, err
	}
	return On(ctx, first).In(Select(ref, where, refID.Name)), nil
}

func (q Query) expandReverse(res Resolver, ctx, rest string, c *schema.Collector, cfg *expandConfig) (Expr, error) {
	ownerID, err := res.IDColumn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := res.Schema(c.Model); err != nil {
		return nil, err
	}
	inner, err := cfg.descend(c.Model, rest)
	if err != nil {
		return nil, err
	}
	where, err := q.WithModel(c.Model).WithColumn(rest).expand(res, c.Model, inner)
	if err != nil {
		return nil, err
	}
	return On(ctx, ownerID.Name).In(Select(c.Model, where, c.Column)), nil
}

func (q Query) expandPipe(res Resolver, ctx, rest string, c *schema.Collector, cfg *expandConfig) (Expr, error) {
	ownerID, err := res.IDColumn(ctx)
	if err != nil {
		return nil, err
	}
	target, err := res.CollectorTarget(c)
	if err != nil {
		return nil, err
	}
	targetID, err := res.IDColumn(target)
	if err != nil {
		return nil, err
	}
	inner, err := cfg.descend(target, rest)
	if err != nil {
		return nil, err
	}
	where, err := q.WithModel(target).WithColumn(rest).expand(res, target, inner)
	if err != nil {
		return nil, err
	}
	through := On(c.Model, c.Target).In(Select(target, where, targetID.Name))
	return On(ctx, ownerID.Name).In(Select(c.Model, through, c.Source)), nil
}

// Expand expands every child. Inside an And, consecutive children that
// became IN sub-selects of the same model's id on the same field are
// merged into one sub-select whose where clause is the AND of both.
func (c Compound) Expand(res Resolver, model string, opts ...ExpandOption) (Expr, error) {
	return c.expand(res, model, newExpandConfig(opts))
}

func (c Compound) expand(res Resolver, model string, cfg *expandConfig) (Expr, error) {
	out := make([]Expr, 0, len(c.queries))
	for _, child := range c.queries {
		expanded, err := child.expand(res, model, cfg)
		if err != nil {
			return nil, err
		}
		if expanded == nil || expanded.IsNull() {
			continue
		}
		if c.op == And {
			out = appendMerged(res, out, expanded)
			continue
		}
		out = append(out, expanded)
	}
	return Compound{op: c.op, queries: out}, nil
}

// appendMerged appends e to the And children in out, merging it into the
// last child when both are sub-selects through the same reference.
func appendMerged(res Resolver, out []Expr, e Expr) []Expr {
	if len(out) > 0 {
		if merged, ok := mergeSubSelects(res, out[len(out)-1], e); ok {
			out[len(out)-1] = merged
			return out
		}
	}
	return append(out, e)
}

// mergeSubSelects merges a and b when both are plain IN queries on the same
// field whose values select the id column of the same model. Only id
// selections merge: a sub-select of a foreign key (reverse and pipe
// collectors) can match through different records, and narrowing it to one
// record would change the result. The merged where clause is merged again
// so chains through the same references collapse level by level.
func mergeSubSelects(res Resolver, a, b Expr) (Expr, bool) {
	qa, ok := a.(Query)
	if !ok {
		return nil, false
	}
	qb, ok := b.(Query)
	if !ok {
		return nil, false
	}
	if !qa.isPlainIn() || !qb.isPlainIn() || qa.model != qb.model || qa.column != qb.column {
		return nil, false
	}
	sa, ok := qa.value.(Selection)
	if !ok {
		return nil, false
	}
	sb, ok := qb.value.(Selection)
	if !ok || sa.Model != sb.Model || !slices.Equal(sa.Columns, sb.Columns) {
		return nil, false
	}
	if !selectsID(res, sa) {
		return nil, false
	}

	var parts []Expr
	for _, where := range []Expr{sa.Where, sb.Where} {
		if where == nil || where.IsNull() {
			continue
		}
		if c, ok := where.(Compound); ok && c.op == And {
			for _, child := range c.queries {
				parts = appendMerged(res, parts, child)
			}
			continue
		}
		parts = appendMerged(res, parts, where)
	}

	merged := Selection{Model: sa.Model, Columns: slices.Clone(sa.Columns)}
	switch len(parts) {
	case 0:
	case 1:
		merged.Where = parts[0]
	default:
		merged.Where = Compound{op: And, queries: parts}
	}
	qa.value = merged
	return qa, true
}

func selectsID(res Resolver, s Selection) bool {
	if len(s.Columns) != 1 {
		return false
	}
	id, err := res.IDColumn(s.Model)
	return err == nil && s.Columns[0] == id.Name
}

func (q Query) isPlainIn() bool {
	return q.op == OpIsIn && !q.inverted && len(q.functions) == 0 && len(q.math) == 0
}
