package schema

import (
	"fmt"
	"strings"
	"sync"
)

// Lookup finds schemas by name.
type Lookup interface {
	Schema(name string) (*Schema, error)
}

// Registry indexes schemas by name. All cross-schema links (references,
// inheritance, collectors) are resolved through it.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds a schema. Names must be unique.
func (r *Registry) Register(s *Schema) error {
	if s == nil || s.name == "" {
		return fmt.Errorf("register schema: name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemas[s.name]; exists {
		return fmt.Errorf("register schema: %q already registered", s.name)
	}
	r.schemas[s.name] = s
	r.order = append(r.order, s.name)
	return nil
}

// Schema returns the schema registered under name.
func (r *Registry) Schema(name string) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return nil, NewModelNotFound(name)
	}
	return s, nil
}

// MustSchema is like Schema but panics when the name is not registered.
// Intended for tests and static setup.
func (r *Registry) MustSchema(name string) *Schema {
	s, err := r.Schema(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Names returns registered schema names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Ancestors returns the parents of the named schema, nearest first.
// A missing parent or an inheritance cycle is reported as ColumnNotFound
// for the schema, since no column lookup through it can succeed.
func (r *Registry) Ancestors(model string) ([]*Schema, error) {
	s, err := r.Schema(model)
	if err != nil {
		return nil, err
	}

	var chain []*Schema
	seen := map[string]bool{s.name: true}
	for parent := s.inherits; parent != ""; {
		if seen[parent] {
			return nil, &Error{
				Code:    CodeColumnNotFound,
				Model:   model,
				Name:    parent,
				Message: "inheritance cycle",
			}
		}
		seen[parent] = true

		p, err := r.Schema(parent)
		if err != nil {
			return nil, &Error{
				Code:    CodeColumnNotFound,
				Model:   model,
				Name:    parent,
				Message: "unresolvable parent schema",
			}
		}
		chain = append(chain, p)
		parent = p.inherits
	}
	return chain, nil
}

// lineage returns the schema followed by its ancestors.
func (r *Registry) lineage(model string) ([]*Schema, error) {
	s, err := r.Schema(model)
	if err != nil {
		return nil, err
	}
	ancestors, err := r.Ancestors(model)
	if err != nil {
		return nil, err
	}
	return append([]*Schema{s}, ancestors...), nil
}

// AllColumns returns every column of the schema including inherited ones,
// root ancestor first.
func (r *Registry) AllColumns(model string) ([]*Column, error) {
	chain, err := r.lineage(model)
	if err != nil {
		return nil, err
	}
	var cols []*Column
	for i := len(chain) - 1; i >= 0; i-- {
		cols = append(cols, chain[i].Columns()...)
	}
	return cols, nil
}

// IDColumn returns the effective id column of a schema, taken from the
// nearest schema in its lineage that declares one.
func (r *Registry) IDColumn(model string) (*Column, error) {
	chain, err := r.lineage(model)
	if err != nil {
		return nil, err
	}
	for _, s := range chain {
		if s.idColumn == "" {
			continue
		}
		if c := s.OwnColumn(s.idColumn); c != nil {
			return c, nil
		}
	}
	return nil, NewColumnNotFound(model, DefaultIDColumn)
}

// Member is the result of looking up a single name on a schema: exactly
// one of Column and Collector is set.
type Member struct {
	Column    *Column
	Collector *Collector
}

// Member looks up a single (undotted) name on a schema and its ancestors,
// nearest first. Columns shadow collectors declared further up the chain.
func (r *Registry) Member(model, name string) (Member, error) {
	chain, err := r.lineage(model)
	if err != nil {
		return Member{}, err
	}
	for _, s := range chain {
		if c := s.OwnColumn(name); c != nil {
			return Member{Column: c}, nil
		}
		if c := s.OwnCollector(name); c != nil {
			return Member{Collector: c}, nil
		}
	}
	return Member{}, NewColumnNotFound(model, name)
}

// Column looks up a single column name on a schema and its ancestors.
func (r *Registry) Column(model, name string) (*Column, error) {
	m, err := r.Member(model, name)
	if err != nil {
		return nil, err
	}
	if m.Column == nil {
		return nil, &Error{
			Code:    CodeColumnNotFound,
			Model:   model,
			Name:    name,
			Message: "name is a collector, not a column",
		}
	}
	return m.Column, nil
}

// Collector looks up a collector on a schema and its ancestors.
func (r *Registry) Collector(model, name string) (*Collector, error) {
	m, err := r.Member(model, name)
	if err != nil {
		return nil, err
	}
	if m.Collector == nil {
		return nil, &Error{
			Code:    CodeColumnNotFound,
			Model:   model,
			Name:    name,
			Message: "name is a column, not a collector",
		}
	}
	return m.Collector, nil
}

// CollectorTarget returns the name of the model a collector yields.
func (r *Registry) CollectorTarget(c *Collector) (string, error) {
	switch c.Kind {
	case ReverseLookup:
		return c.Model, nil
	case Pipe:
		target, err := r.Column(c.Model, c.Target)
		if err != nil {
			return "", err
		}
		if !target.IsReference() {
			return "", NewQueryInvalid(c.Model, c.Target, "pipe target is not a reference column")
		}
		return target.Reference, nil
	default:
		return "", NewQueryInvalid(c.schema, c.Name, "unknown collector kind")
	}
}

// Resolve resolves a possibly dotted column path against a schema and
// returns the terminal column.
//
// Each non-terminal segment must be a reference column or a collector;
// traversal continues on its target schema. Successful resolutions are
// memoized on the base schema until a member changes on any schema the
// path walked through, ancestors included.
func (r *Registry) Resolve(model, path string) (*Column, error) {
	s, err := r.Schema(model)
	if err != nil {
		return nil, err
	}
	if c, ok := s.cached(path); ok {
		return c, nil
	}

	var deps []dependency
	watch := func(model string) error {
		chain, err := r.lineage(model)
		if err != nil {
			return err
		}
		for _, dep := range chain {
			deps = append(deps, dependency{schema: dep, gen: dep.generation()})
		}
		return nil
	}

	current := model
	segments := strings.Split(path, ".")
	var col *Column
	for i, seg := range segments {
		last := i == len(segments)-1

		if err := watch(current); err != nil {
			return nil, err
		}
		m, err := r.Member(current, seg)
		if err != nil {
			return nil, err
		}
		if last {
			if m.Column == nil {
				return nil, &Error{
					Code:    CodeColumnNotFound,
					Model:   current,
					Name:    seg,
					Message: "path ends at a collector",
				}
			}
			col = m.Column
			break
		}

		switch {
		case m.Column != nil && m.Column.IsReference():
			current = m.Column.Reference
		case m.Collector != nil:
			if m.Collector.Kind == Pipe {
				if err := watch(m.Collector.Model); err != nil {
					return nil, err
				}
			}
			current, err = r.CollectorTarget(m.Collector)
			if err != nil {
				return nil, err
			}
		default:
			return nil, &Error{
				Code:    CodeColumnNotFound,
				Model:   current,
				Name:    seg,
				Message: "segment is not a reference column",
			}
		}
		if _, err := r.Schema(current); err != nil {
			return nil, err
		}
	}

	s.remember(path, resolution{col: col, deps: deps})
	return col, nil
}

// HasColumn reports whether path resolves to a column on the schema.
// It never fails.
func (r *Registry) HasColumn(model, path string) bool {
	_, err := r.Resolve(model, path)
	return err == nil
}

// HasHandle reports whether c belongs to the schema or one of its
// ancestors.
func (r *Registry) HasHandle(model string, c *Column) bool {
	chain, err := r.lineage(model)
	if err != nil {
		return false
	}
	for _, s := range chain {
		if s.Owns(c) {
			return true
		}
	}
	return false
}
