package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/orb-framework/orb-sub002/internal/schema"
)

// ValidationErrors is the full list of link errors found in a registry.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

// AddSchemas compiles every field of the top-level "schema" struct of v
// and registers it. Links between schemas are not checked; call Validate
// once all sources are added.
func AddSchemas(reg *schema.Registry, v cue.Value) (int, error) {
	if err := v.Err(); err != nil {
		return 0, formatCUEError(err)
	}
	schemasVal := v.LookupPath(cue.ParsePath("schema"))
	if !schemasVal.Exists() {
		return 0, nil
	}

	iter, err := schemasVal.Fields()
	if err != nil {
		return 0, formatCUEError(err)
	}

	n := 0
	for iter.Next() {
		s, err := CompileSchema(iter.Value())
		if err != nil {
			return n, fmt.Errorf("schema.%s: %w", iter.Label(), err)
		}
		if err := reg.Register(s); err != nil {
			return n, &CompileError{Field: "schema." + iter.Label(), Message: err.Error(), Pos: iter.Value().Pos()}
		}
		n++
	}
	return n, nil
}

// CompileRegistry compiles all schemas in v into a validated registry.
// Link errors are returned together as ValidationErrors.
func CompileRegistry(v cue.Value) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	n, err := AddSchemas(reg, v)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &CompileError{Field: "schema", Message: "no schemas defined"}
	}
	if errs := Validate(reg); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return reg, nil
}

// CompileString compiles CUE source text into a validated registry.
// filename is only used in error positions.
func CompileString(src, filename string) (*schema.Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileRegistry(v)
}
