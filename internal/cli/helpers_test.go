package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const companySchemas = `package schemas

schema: Person: columns: {
	name: "string"
	age:  "integer"
}

schema: Employee: {
	inherits: "Person"
	dbname:   "employees"
	columns: {
		department: {type: "reference", reference: "Department"}
		dept_title: {type: "string", shortcut: "department.title"}
	}
}

schema: Department: {
	dbname: "departments"
	columns: title: "string"
	collectors: {
		staff: {kind: "reverse", model: "Employee", column: "department"}
		active_staff: {kind: "reverse", model: "Employee", column: "department", filter: "active"}
	}
}
`

// writeFile writes content to name under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// schemaDir writes the company schemas to a fresh directory.
func schemaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "company.cue", companySchemas)
	return dir
}

// execute runs cmd with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeResponse parses a JSON CLIResponse and re-decodes its data into out.
func decodeResponse(t *testing.T, output string, out any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	if out != nil && resp.Data != nil {
		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out))
	}
	return resp
}
