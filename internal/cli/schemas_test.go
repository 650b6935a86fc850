package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemasText(t *testing.T) {
	dir := schemaDir(t)

	out, err := execute(t, NewSchemasCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	assert.Contains(t, out, "Department (table departments)\n")
	assert.Contains(t, out, "  staff reverse of Employee\n")
	assert.Contains(t, out, "  active_staff reverse of Employee [active]\n")
	assert.Contains(t, out, "Employee (table employees) inherits Person\n")
	assert.Contains(t, out, "  name string (from Person)\n")
	assert.Contains(t, out, "  department reference -> Department\n")
	assert.Contains(t, out, "  dept_title string = department.title\n")
	assert.NotContains(t, out, "warning:")
}

func TestSchemasJSON(t *testing.T) {
	dir := schemaDir(t)

	out, err := execute(t, NewSchemasCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)

	var result SchemasResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.TraceID)

	require.Len(t, result.Schemas, 3)
	assert.Equal(t, "Department", result.Schemas[0].Name)
	assert.Len(t, result.Schemas[0].Collectors, 2)

	employee := result.Schemas[1]
	assert.Equal(t, "Employee", employee.Name)
	assert.Equal(t, "employees", employee.DBName)
	assert.Equal(t, "Person", employee.Inherits)

	owners := map[string]string{}
	for _, c := range employee.Columns {
		owners[c.Name] = c.Owner
	}
	assert.Equal(t, "Person", owners["name"])
	assert.Equal(t, "Employee", owners["department"])
}

func TestSchemasWarnings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "self.cue", `package schemas

schema: C: columns: {
	parent: {type: "reference", reference: "C"}
	z: {type: "string", shortcut: "parent.z"}
}
`)

	out, err := execute(t, NewSchemasCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "warning: Shortcut refers to itself: C.z -> C.z")
}

func TestSchemasNonExistentDirectory(t *testing.T) {
	out, err := execute(t, NewSchemasCommand(&RootOptions{Format: "text"}), "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E005")
	assert.Contains(t, out, "Error [E005]")
}

func TestSchemasEmptyDirectory(t *testing.T) {
	out, err := execute(t, NewSchemasCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E003")
	assert.Contains(t, out, "no CUE files found")
}

func TestSchemasInvalidLinksJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.cue", `package schemas

schema: A: inherits: "Missing"
`)

	out, err := execute(t, NewSchemasCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)
	assert.NotContains(t, out, "Usage:")
}

func TestSchemasListedByName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "zoo.cue", `package schemas

schema: Zebra: columns: name: "string"
schema: Ant: columns: name: "string"
schema: Mole: columns: name: "string"
`)

	out, err := execute(t, NewSchemasCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)

	var result SchemasResult
	decodeResponse(t, out, &result)
	var names []string
	for _, s := range result.Schemas {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Ant", "Mole", "Zebra"}, names)
}
