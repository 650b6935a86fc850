package schema

import (
	"fmt"
	"sync"
)

// DefaultIDColumn is the id column name used when none is declared.
const DefaultIDColumn = "id"

// Schema is a named collection of column and collector declarations,
// optionally inheriting from a parent schema.
type Schema struct {
	name     string
	dbName   string
	inherits string
	idColumn string

	mu         sync.RWMutex
	gen        uint64
	columns    []*Column
	collectors []*Collector
	resolved   map[string]resolution
}

// resolution is a memoized path lookup. It stays valid while every
// schema it walked through is at the generation it was read at.
type resolution struct {
	col  *Column
	deps []dependency
}

type dependency struct {
	schema *Schema
	gen    uint64
}

// Option configures a Schema at construction.
type Option func(*Schema)

// WithDBName sets the storage table name. Defaults to the schema name.
func WithDBName(name string) Option {
	return func(s *Schema) { s.dbName = name }
}

// Inherits sets the parent schema name.
func Inherits(parent string) Option {
	return func(s *Schema) { s.inherits = parent }
}

// WithIDColumn sets the id column name.
func WithIDColumn(name string) Option {
	return func(s *Schema) { s.idColumn = name }
}

// New creates a schema. A root schema (no parent) gets its id column
// declared automatically; inheriting schemas take it from the root.
func New(name string, opts ...Option) *Schema {
	s := &Schema{
		name:     name,
		resolved: make(map[string]resolution),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.inherits == "" {
		if s.idColumn == "" {
			s.idColumn = DefaultIDColumn
		}
		s.columns = append(s.columns, &Column{Name: s.idColumn, Type: TypeID, schema: name})
	}
	return s
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// DBName returns the storage table name.
func (s *Schema) DBName() string {
	if s.dbName != "" {
		return s.dbName
	}
	return s.name
}

// Inherits returns the parent schema name, or "".
func (s *Schema) Inherits() string { return s.inherits }

// IDColumnName returns the locally declared id column name. Inheriting
// schemas return "" unless one was set explicitly; use Registry.IDColumn
// for the effective name.
func (s *Schema) IDColumnName() string { return s.idColumn }

// AddColumn declares a column on the schema and returns the stored handle.
// The column is copied, so the argument stays detached.
func (s *Schema) AddColumn(c Column) (*Column, error) {
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ownColumnLocked(c.Name) != nil || s.ownCollectorLocked(c.Name) != nil {
		return nil, fmt.Errorf("schema %s: duplicate member %q", s.name, c.Name)
	}
	c.schema = s.name
	stored := &c
	s.columns = append(s.columns, stored)
	s.gen++
	clear(s.resolved)
	return stored, nil
}

// AddCollector declares a collector on the schema.
func (s *Schema) AddCollector(c Collector) (*Collector, error) {
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ownColumnLocked(c.Name) != nil || s.ownCollectorLocked(c.Name) != nil {
		return nil, fmt.Errorf("schema %s: duplicate member %q", s.name, c.Name)
	}
	c.schema = s.name
	stored := &c
	s.collectors = append(s.collectors, stored)
	s.gen++
	clear(s.resolved)
	return stored, nil
}

// Columns returns the columns declared directly on this schema, in
// declaration order.
func (s *Schema) Columns() []*Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Column(nil), s.columns...)
}

// Collectors returns the collectors declared directly on this schema.
func (s *Schema) Collectors() []*Collector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Collector(nil), s.collectors...)
}

// OwnColumn returns a column declared directly on this schema, matched by
// name or storage field.
func (s *Schema) OwnColumn(name string) *Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownColumnLocked(name)
}

// OwnCollector returns a collector declared directly on this schema.
func (s *Schema) OwnCollector(name string) *Collector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownCollectorLocked(name)
}

// Owns reports whether c was declared on this schema.
func (s *Schema) Owns(c *Column) bool {
	if c == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, own := range s.columns {
		if own == c {
			return true
		}
	}
	return false
}

func (s *Schema) ownColumnLocked(name string) *Column {
	for _, c := range s.columns {
		if c.Name == name {
			return c
		}
	}
	for _, c := range s.columns {
		if c.Field != "" && c.Field == name {
			return c
		}
	}
	return nil
}

func (s *Schema) ownCollectorLocked(name string) *Collector {
	for _, c := range s.collectors {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// generation counts member changes on this schema.
func (s *Schema) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

func (s *Schema) cached(path string) (*Column, bool) {
	s.mu.RLock()
	res, ok := s.resolved[path]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	for _, d := range res.deps {
		if d.schema.generation() != d.gen {
			return nil, false
		}
	}
	return res.col, true
}

func (s *Schema) remember(path string, res resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved[path] = res
}
