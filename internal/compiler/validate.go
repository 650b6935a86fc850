package compiler

import (
	"fmt"

	"github.com/orb-framework/orb-sub002/internal/schema"
)

// Validation error codes (E100-E199)
const (
	// Reference errors (E101-E103)
	ErrUnknownReference = "E101" // reference column targets an unregistered schema
	ErrUnknownParent    = "E102" // inherits names an unregistered schema
	ErrInheritanceCycle = "E103" // schema inherits from itself

	// Collector errors (E104-E106)
	ErrUnknownCollectorModel = "E104" // collector model is not registered
	ErrBadCollectorColumn    = "E105" // collector column is missing or not a reference
	ErrBadCollectorLink      = "E106" // collector column does not point back at the owner

	// Shortcut errors (E107)
	ErrUnresolvableShortcut = "E107" // shortcut path does not resolve to a column
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks every cross-schema link in the registry.
// Returns all errors found (does not fail-fast), ordered by schema
// registration order and then declaration order.
func Validate(reg *schema.Registry) []ValidationError {
	var errs []ValidationError
	for _, name := range reg.Names() {
		errs = append(errs, validateSchema(reg, reg.MustSchema(name))...)
	}
	return errs
}

func validateSchema(reg *schema.Registry, s *schema.Schema) []ValidationError {
	var errs []ValidationError
	name := s.Name()

	if parent := s.Inherits(); parent != "" {
		if _, err := reg.Schema(parent); err != nil {
			errs = append(errs, ValidationError{
				Field:   name + ".inherits",
				Message: fmt.Sprintf("parent schema %q is not registered", parent),
				Code:    ErrUnknownParent,
			})
		} else if inheritsCycle(reg, s) {
			errs = append(errs, ValidationError{
				Field:   name + ".inherits",
				Message: "inheritance cycle",
				Code:    ErrInheritanceCycle,
			})
		}
	}

	for _, col := range s.Columns() {
		field := name + ".columns." + col.Name
		if col.IsReference() {
			if _, err := reg.Schema(col.Reference); err != nil {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("reference target %q is not registered", col.Reference),
					Code:    ErrUnknownReference,
				})
			}
		}
		if col.Shortcut != "" {
			if _, err := reg.Resolve(name, col.Shortcut); err != nil {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("shortcut %q: %v", col.Shortcut, err),
					Code:    ErrUnresolvableShortcut,
				})
			}
		}
	}

	for _, c := range s.Collectors() {
		errs = append(errs, validateCollector(reg, name, c)...)
	}
	return errs
}

func validateCollector(reg *schema.Registry, owner string, c *schema.Collector) []ValidationError {
	field := owner + ".collectors." + c.Name
	if _, err := reg.Schema(c.Model); err != nil {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("collector model %q is not registered", c.Model),
			Code:    ErrUnknownCollectorModel,
		}}
	}

	// back is the column on the collected (or through) model that must
	// point at the owner.
	back := c.Column
	if c.Kind == schema.Pipe {
		back = c.Source
	}

	var errs []ValidationError
	col, err := reg.Column(c.Model, back)
	switch {
	case err != nil:
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("column %q not found on %s", back, c.Model),
			Code:    ErrBadCollectorColumn,
		})
	case !col.IsReference():
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s.%s is not a reference column", c.Model, back),
			Code:    ErrBadCollectorColumn,
		})
	case !pointsAt(reg, col.Reference, owner):
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s.%s references %s, not %s", c.Model, back, col.Reference, owner),
			Code:    ErrBadCollectorLink,
		})
	}

	if c.Kind == schema.Pipe {
		if _, err := reg.CollectorTarget(c); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("pipe target %q: %v", c.Target, err),
				Code:    ErrBadCollectorColumn,
			})
		}
	}
	return errs
}

// pointsAt reports whether a reference to target can hold an owner
// record: the target is the owner itself or one of its ancestors.
func pointsAt(reg *schema.Registry, target, owner string) bool {
	if target == owner {
		return true
	}
	ancestors, err := reg.Ancestors(owner)
	if err != nil {
		return false
	}
	for _, a := range ancestors {
		if a.Name() == target {
			return true
		}
	}
	return false
}

// inheritsCycle reports whether following parents from s returns to a
// schema already visited. A missing parent ends the walk.
func inheritsCycle(reg *schema.Registry, s *schema.Schema) bool {
	seen := map[string]bool{s.Name(): true}
	for parent := s.Inherits(); parent != ""; {
		if seen[parent] {
			return true
		}
		seen[parent] = true
		p, err := reg.Schema(parent)
		if err != nil {
			return false
		}
		parent = p.Inherits()
	}
	return false
}
