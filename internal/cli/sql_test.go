package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orb-framework/orb-sub002/internal/store"
)

const orderByID = ` ORDER BY "id" COLLATE BINARY ASC`

func TestSQLText(t *testing.T) {
	dir := schemaDir(t)
	queryPath := writeFile(t, t.TempDir(), "q.json", `{"type": "query", "column": "name", "op": "Is", "value": "Ann"}`)

	out, err := execute(t, NewSQLCommand(&RootOptions{Format: "text"}), dir, queryPath, "--model", "Person")
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "name", "age" FROM "Person" WHERE "name" IS ?`+orderByID+"\n"+
			`  $1 = "Ann"`+"\n",
		out)
}

func TestSQLSubSelectJSON(t *testing.T) {
	dir := schemaDir(t)
	queryPath := writeFile(t, t.TempDir(), "q.json", deptTitleQuery)

	out, err := execute(t, NewSQLCommand(&RootOptions{Format: "json"}), dir, queryPath, "--model", "Employee")
	require.NoError(t, err)

	var result SQLResult
	decodeResponse(t, out, &result)
	assert.Equal(t, "Employee", result.Model)
	assert.Contains(t, result.SQL, `FROM "employees" WHERE "department" IN (SELECT "id" FROM "departments" WHERE "title" IS ?)`)
	assert.Equal(t, []any{"Sales"}, result.Params)
	assert.Nil(t, result.Records)
}

func TestSQLRun(t *testing.T) {
	dir := schemaDir(t)
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "orb.db")
	queryPath := writeFile(t, tmp, "q.json", deptTitleQuery)

	loaded, err := LoadSchemas(dir)
	require.NoError(t, err)
	st, err := store.Open(dbPath, loaded.Registry)
	require.NoError(t, err)
	ctx := context.Background()
	for _, rec := range []struct {
		model string
		data  map[string]any
	}{
		{"Department", map[string]any{"id": "d1", "title": "Sales"}},
		{"Department", map[string]any{"id": "d2", "title": "Research"}},
		{"Employee", map[string]any{"id": "e1", "name": "Ann", "department": "d1"}},
		{"Employee", map[string]any{"id": "e2", "name": "Bob", "department": "d2"}},
		{"Employee", map[string]any{"id": "e3", "name": "Cy", "department": "d1"}},
	} {
		_, err := st.Insert(ctx, rec.model, rec.data)
		require.NoError(t, err)
	}
	require.NoError(t, st.Close())

	out, err := execute(t, NewSQLCommand(&RootOptions{Format: "json"}),
		dir, queryPath, "--model", "Employee", "--run", "--database", dbPath)
	require.NoError(t, err)

	var result SQLResult
	decodeResponse(t, out, &result)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "e1", result.Records[0]["id"])
	assert.Equal(t, "e3", result.Records[1]["id"])

	out, err = execute(t, NewSQLCommand(&RootOptions{Format: "text"}),
		dir, queryPath, "--model", "Employee", "--run", "--database", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 record(s)\n")
	assert.Contains(t, out, "id=e1 name=Ann age=<nil> department=d1\n")
}

func TestSQLRunUsesConfigDatabase(t *testing.T) {
	dir := schemaDir(t)
	queryPath := writeFile(t, t.TempDir(), "q.json", `{"type": "query", "column": "age", "op": "GreaterThan", "value": 30}`)

	opts := &RootOptions{Format: "json"}
	opts.Config.Database = ":memory:"
	out, err := execute(t, NewSQLCommand(opts), dir, queryPath, "--model", "Person", "--run")
	require.NoError(t, err)

	var result SQLResult
	decodeResponse(t, out, &result)
	assert.NotNil(t, result.Records)
	assert.Empty(t, result.Records)
}

func TestSQLMissingModel(t *testing.T) {
	dir := schemaDir(t)
	queryPath := writeFile(t, t.TempDir(), "q.json", deptTitleQuery)

	_, err := execute(t, NewSQLCommand(&RootOptions{Format: "text"}), dir, queryPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSQLRejectsUnexpandable(t *testing.T) {
	dir := schemaDir(t)
	queryPath := writeFile(t, t.TempDir(), "q.json", `{"type": "query", "column": "department.budget", "op": "Is", "value": 1}`)

	_, err := execute(t, NewSQLCommand(&RootOptions{Format: "text"}), dir, queryPath, "--model", "Employee")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
