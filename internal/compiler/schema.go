package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/orb-framework/orb-sub002/internal/schema"
)

// CompileSchema parses a CUE value into a schema.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the schema struct itself; its label is the schema name:
//
//	schema: Employee: {
//		inherits: "Person"
//		dbname:   "employees"
//		columns: {
//			department: {type: "reference", reference: "Department"}
//			manager_name: {type: "string", shortcut: "department.manager.name"}
//			badge: "integer"
//		}
//		collectors: {
//			projects: {kind: "pipe", model: "Membership", source: "employee", target: "project"}
//		}
//	}
//
// A column given as a bare string declares only its type.
func CompileSchema(v cue.Value) (*schema.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return nil, &CompileError{Field: "schema", Message: "schema value has no name", Pos: v.Pos()}
	}
	name := labels[len(labels)-1].String()

	var opts []schema.Option
	for _, opt := range []struct {
		field string
		apply func(string) schema.Option
	}{
		{"inherits", schema.Inherits},
		{"dbname", schema.WithDBName},
		{"id", schema.WithIDColumn},
	} {
		s, ok, err := optionalString(v, opt.field)
		if err != nil {
			return nil, err
		}
		if ok {
			opts = append(opts, opt.apply(s))
		}
	}
	s := schema.New(name, opts...)

	if err := parseColumns(v, s); err != nil {
		return nil, err
	}
	if err := parseCollectors(v, s); err != nil {
		return nil, err
	}
	return s, nil
}

// parseColumns extracts column declarations in source order.
func parseColumns(v cue.Value, s *schema.Schema) error {
	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return nil // a schema may only inherit
	}

	iter, err := colsVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}

	for iter.Next() {
		colName := iter.Label()
		colVal := iter.Value()
		field := "columns." + colName

		col := schema.Column{Name: colName}
		typeName, err := colVal.String()
		if err != nil {
			// Not a bare type name: a column struct.
			if typeName, err = requiredString(colVal, "type", field); err != nil {
				return err
			}
			for _, attr := range []struct {
				name string
				dst  *string
			}{
				{"field", &col.Field},
				{"reference", &col.Reference},
				{"shortcut", &col.Shortcut},
			} {
				str, _, err := optionalString(colVal, attr.name)
				if err != nil {
					return err
				}
				*attr.dst = str
			}
		}

		if col.Type, err = schema.ParseColumnType(typeName); err != nil {
			return &CompileError{Field: field + ".type", Message: err.Error(), Pos: colVal.Pos()}
		}
		if _, err := s.AddColumn(col); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: colVal.Pos()}
		}
	}
	return nil
}

// parseCollectors extracts collector declarations in source order.
func parseCollectors(v cue.Value, s *schema.Schema) error {
	collVal := v.LookupPath(cue.ParsePath("collectors"))
	if !collVal.Exists() {
		return nil
	}

	iter, err := collVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}

	for iter.Next() {
		cv := iter.Value()
		field := "collectors." + iter.Label()

		kind, err := requiredString(cv, "kind", field)
		if err != nil {
			return err
		}
		c := schema.Collector{Name: iter.Label(), Kind: schema.CollectorKind(kind)}
		for _, attr := range []struct {
			name string
			dst  *string
		}{
			{"model", &c.Model},
			{"column", &c.Column},
			{"source", &c.Source},
			{"target", &c.Target},
			{"filter", &c.Filter},
		} {
			str, _, err := optionalString(cv, attr.name)
			if err != nil {
				return err
			}
			*attr.dst = str
		}

		if _, err := s.AddCollector(c); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: cv.Pos()}
		}
	}
	return nil
}

func optionalString(v cue.Value, name string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, &CompileError{Field: name, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, true, nil
}

func requiredString(v cue.Value, name, parent string) (string, error) {
	s, ok, err := optionalString(v, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &CompileError{
			Field:   parent + "." + name,
			Message: fmt.Sprintf("%s is required", name),
			Pos:     v.Pos(),
		}
	}
	return s, nil
}
