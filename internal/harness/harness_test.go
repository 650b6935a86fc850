package harness

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orb-framework/orb-sub002/internal/query"
	"github.com/orb-framework/orb-sub002/internal/schema"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	for _, name := range []string{"people", "company"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "failures: %v", result.Failures())
		})
	}
}

func TestRun_SkipsEvaluatorForSubSelects(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/company.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	require.Len(t, result.Queries, 4)
	assert.False(t, result.Queries[0].Evaluated)
	assert.Nil(t, result.Queries[0].Evaluator)
	assert.True(t, result.Queries[3].Evaluated)
}

func TestRun_GeneratedIDs(t *testing.T) {
	scenario := &Scenario{
		Name:        "generated",
		Description: "records without ids",
		Schemas:     `schema: Tag: columns: label: "string"`,
		Records: map[string][]map[string]any{
			"Tag": {
				{"label": "red"},
				{"id": "t-explicit", "label": "green"},
				{"label": "blue"},
			},
		},
		Queries: []QueryCase{
			{Name: "all", Model: "Tag", Expect: []any{"gen-0001", "gen-0002", "t-explicit"}},
			{
				Name:   "blue",
				Model:  "Tag",
				Where:  map[string]any{"type": "query", "column": "label", "op": "Is", "value": "blue"},
				Expect: []any{"gen-0002"},
			},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "failures: %v", result.Failures())
}

func TestRun_IntegerIDsCompareByValue(t *testing.T) {
	scenario := &Scenario{
		Name:        "int_ids",
		Description: "integer ids from YAML",
		Schemas:     `schema: Item: columns: qty: "integer"`,
		Records: map[string][]map[string]any{
			"Item": {{"id": 10, "qty": 1}, {"id": 2, "qty": 5}},
		},
		Queries: []QueryCase{
			{
				Name:   "stocked",
				Model:  "Item",
				Where:  map[string]any{"type": "query", "column": "qty", "op": "GreaterThan", "value": 0},
				Expect: []any{2, 10},
			},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "failures: %v", result.Failures())
	assert.Equal(t, []any{int64(2), int64(10)}, result.Queries[0].Backend)
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/people.yaml")
	require.NoError(t, err)
	scenario.Queries = scenario.Queries[:1]
	scenario.Queries[0].Expect = []any{"p2"}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{"adults: expect: expected [p2], got [p1 p3]"}, result.Failures())
}

// SQLite's LOWER only folds ASCII, the evaluator folds Unicode.
func TestRun_ReportsDisagreement(t *testing.T) {
	scenario := &Scenario{
		Name:        "unicode_fold",
		Description: "non-ASCII case folding differs between the paths",
		Schemas:     `schema: City: columns: name: "string"`,
		Records: map[string][]map[string]any{
			"City": {{"id": "c1", "name": "ÅLESUND"}},
		},
		Queries: []QueryCase{
			{
				Name:  "fold",
				Model: "City",
				Where: map[string]any{"type": "query", "column": "name", "op": "Contains", "value": "å"},
			},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []any{}, result.Queries[0].Backend)
	assert.Equal(t, []any{"c1"}, result.Queries[0].Evaluator)
	assert.Equal(t, []string{"fold: agreement: expected backend [], got evaluator [c1]"}, result.Failures())
}

func TestRun_QueryErrorsAreRecorded(t *testing.T) {
	scenario := &Scenario{
		Name:        "errors",
		Description: "bad queries fail without aborting the run",
		Schemas:     `schema: A: columns: x: "string"`,
		Queries: []QueryCase{
			{Name: "bad_op", Model: "A", Where: map[string]any{"type": "query", "column": "x", "op": "Resembles"}},
			{Name: "bad_path", Model: "A", Where: map[string]any{"type": "query", "column": "x.y", "op": "Is", "value": 1}},
			{Name: "bad_model", Model: "B"},
			{Name: "fine", Model: "A", Expect: []any{}},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	require.Len(t, result.Queries, 4)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Queries[0].Errors[0], "decode")
	assert.NotEmpty(t, result.Queries[1].Errors)
	assert.NotEmpty(t, result.Queries[2].Errors)
	assert.True(t, result.Queries[3].Pass())
}

func TestRun_FailsToStart(t *testing.T) {
	t.Run("bad schemas", func(t *testing.T) {
		_, err := Run(context.Background(), &Scenario{Name: "x", Schemas: "schema: {"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to compile schemas")
	})

	t.Run("unknown record column", func(t *testing.T) {
		_, err := Run(context.Background(), &Scenario{
			Name:    "x",
			Schemas: `schema: A: columns: x: "string"`,
			Records: map[string][]map[string]any{"A": {{"id": "a1", "nope": 1}}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "records.A[0]")
		assert.True(t, schema.IsColumnNotFound(err))
	})

	t.Run("unknown record model", func(t *testing.T) {
		_, err := Run(context.Background(), &Scenario{
			Name:    "x",
			Schemas: `schema: A: columns: x: "string"`,
			Records: map[string][]map[string]any{"B": {{"id": "b1"}}},
		})
		require.Error(t, err)
		assert.True(t, schema.IsModelNotFound(err))
	})
}

func TestRun_Filters(t *testing.T) {
	scenario := &Scenario{
		Name:        "filters",
		Description: "filtered collectors merge into one sub-select",
		Schemas: `
schema: Department: {
	columns: title: "string"
	collectors: active_staff: {kind: "reverse", model: "Person", column: "department", filter: "active"}
}
schema: Person: columns: {
	name:       "string"
	active:     "boolean"
	department: {type: "reference", reference: "Department"}
}
`,
		Records: map[string][]map[string]any{
			"Department": {{"id": "d1", "title": "Engineering"}, {"id": "d2", "title": "Sales"}},
			"Person": {
				{"id": "p1", "name": "Ann", "active": true, "department": "d1"},
				{"id": "p2", "name": "Cy", "active": false, "department": "d1"},
				{"id": "p3", "name": "Cy", "active": true, "department": "d2"},
			},
		},
		Queries: []QueryCase{
			{
				Name:   "active_ann",
				Model:  "Department",
				Where:  map[string]any{"type": "query", "column": "active_staff.name", "op": "Is", "value": "Ann"},
				Expect: []any{"d1"},
			},
			{
				Name:   "active_cy",
				Model:  "Department",
				Where:  map[string]any{"type": "query", "column": "active_staff.name", "op": "Is", "value": "Cy"},
				Expect: []any{"d2"},
			},
		},
	}

	filters := map[string]query.FilterFunc{
		"active": func(c *schema.Collector, q query.Query) (query.Expr, error) {
			return q.And(query.New(c.Name + ".active").Is(true)), nil
		},
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	result, err := Run(context.Background(), scenario, WithFilters(filters), WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, result.Pass, "failures: %v", result.Failures())
	assert.Contains(t, logs.String(), "scenario finished")
	assert.Contains(t, logs.String(), "query=active_cy")

	_, err = Run(context.Background(), scenario)
	require.NoError(t, err)
}

func TestRun_MissingFilterIsRecorded(t *testing.T) {
	scenario := &Scenario{
		Name:        "missing_filter",
		Description: "a filtered collector without its function",
		Schemas: `
schema: Team: collectors: members: {kind: "reverse", model: "Member", column: "team", filter: "current"}
schema: Member: columns: team: {type: "reference", reference: "Team"}
`,
		Queries: []QueryCase{
			{Name: "q", Model: "Team", Where: map[string]any{"type": "query", "column": "members.id", "op": "Is", "value": "m1"}},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, result.Queries[0].Errors, 1)
	assert.Contains(t, result.Queries[0].Errors[0], `no function supplied for filter "current"`)
}

func TestHasSubSelect(t *testing.T) {
	sel := query.Select("B", query.New("x").Is(1), "id")

	assert.False(t, HasSubSelect(nil))
	assert.False(t, HasSubSelect(query.New("a").Is(1)))
	assert.True(t, HasSubSelect(query.New("b").In(sel)))
	assert.True(t, HasSubSelect(query.AllOf(query.New("a").Is(1), query.New("b").In(sel))))
	assert.False(t, HasSubSelect(query.AnyOf(query.New("a").Is(1), query.New("c").Is(2))))
}

func TestSnapshot(t *testing.T) {
	r := NewResult("s")
	r.Add(QueryResult{Name: "q", Model: "M", Backend: []any{"a"}, Evaluated: true, Evaluator: []any{"a"}})
	r.Add(QueryResult{Name: "f", Model: "M", Backend: []any{}, Errors: []string{"boom"}})

	data, err := Snapshot(r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"pass":false,"queries":[`+
			`{"backend":["a"],"evaluated":true,"evaluator":["a"],"model":"M","name":"q"},`+
			`{"backend":[],"errors":["boom"],"evaluated":false,"model":"M","name":"f"}`+
			`],"scenario":"s"}`,
		string(data))
}
