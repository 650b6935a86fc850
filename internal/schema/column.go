package schema

import (
	"fmt"
	"strings"
)

// ColumnType is the declared value type of a column.
type ColumnType string

const (
	TypeID        ColumnType = "id"
	TypeString    ColumnType = "string"
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeBoolean   ColumnType = "boolean"
	TypeDatetime  ColumnType = "datetime"
	TypeReference ColumnType = "reference"
)

// ParseColumnType converts a declared type name to a ColumnType.
func ParseColumnType(name string) (ColumnType, error) {
	switch t := ColumnType(name); t {
	case TypeID, TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeDatetime, TypeReference:
		return t, nil
	default:
		return "", fmt.Errorf("unknown column type %q", name)
	}
}

// Column is a named, typed field declaration on a schema.
//
// A reference column holds the name of its target schema in Reference.
// The target is looked up through the Registry when the column is
// traversed, never at declaration time.
type Column struct {
	// Name is the name queries use to address the column.
	Name string

	// Field is the storage field name. Empty means Name.
	Field string

	// Type is the declared value type.
	Type ColumnType

	// Reference is the target schema name for TypeReference columns.
	Reference string

	// Shortcut is a dot path this column stands for, e.g.
	// "department.manager.name". Expansion rewrites the column to the path.
	Shortcut string

	schema string
}

// FieldName returns the storage field name.
func (c *Column) FieldName() string {
	if c.Field != "" {
		return c.Field
	}
	return c.Name
}

// IsReference reports whether the column points at another schema.
func (c *Column) IsReference() bool {
	return c.Type == TypeReference && c.Reference != ""
}

// Schema returns the name of the owning schema, or "" for a detached copy.
func (c *Column) Schema() string {
	return c.schema
}

// Copy duplicates the column's configuration. The copy is detached from
// its schema until it is added to one.
func (c *Column) Copy() *Column {
	cp := *c
	cp.schema = ""
	return &cp
}

// ShortcutPath splits Shortcut into its segments, or returns nil.
func (c *Column) ShortcutPath() []string {
	if c.Shortcut == "" {
		return nil
	}
	return strings.Split(c.Shortcut, ".")
}

func (c *Column) validate() error {
	if c.Name == "" {
		return fmt.Errorf("column name is empty")
	}
	if strings.Contains(c.Name, ".") {
		return fmt.Errorf("column name %q must not contain '.'", c.Name)
	}
	if c.Type == TypeReference && c.Reference == "" {
		return fmt.Errorf("reference column %q has no target model", c.Name)
	}
	return nil
}

// CollectorKind is the relation shape of a collector.
type CollectorKind string

const (
	// ReverseLookup collects records of Model whose Column references the
	// owning record.
	ReverseLookup CollectorKind = "reverse"

	// Pipe collects records through a join model: Source points at the
	// owning record and Target points at the collected record.
	Pipe CollectorKind = "pipe"
)

// Collector is a schema-level relation accessor that is not a plain column.
type Collector struct {
	// Name is the name queries use to address the collector.
	Name string

	// Kind selects between reverse lookups and pipes.
	Kind CollectorKind

	// Model is the collected model for ReverseLookup, and the through
	// model for Pipe.
	Model string

	// Column is the reference column on Model pointing back at the owner.
	// ReverseLookup only.
	Column string

	// Source and Target are the reference columns on the through model.
	// Pipe only.
	Source string
	Target string

	// Filter names a filter function consulted during expansion. The
	// function itself is supplied by the caller of Expand.
	Filter string

	schema string
}

// Schema returns the name of the owning schema.
func (c *Collector) Schema() string {
	return c.schema
}

func (c *Collector) validate() error {
	if c.Name == "" {
		return fmt.Errorf("collector name is empty")
	}
	if c.Model == "" {
		return fmt.Errorf("collector %q has no model", c.Name)
	}
	switch c.Kind {
	case ReverseLookup:
		if c.Column == "" {
			return fmt.Errorf("reverse collector %q has no column", c.Name)
		}
	case Pipe:
		if c.Source == "" || c.Target == "" {
			return fmt.Errorf("pipe collector %q needs source and target", c.Name)
		}
	default:
		return fmt.Errorf("collector %q has unknown kind %q", c.Name, c.Kind)
	}
	return nil
}
