package harness

// Result is the outcome of a scenario run.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Pass is true when every query passed.
	Pass bool `json:"pass"`

	// Queries holds one entry per scenario query, in scenario order.
	Queries []QueryResult `json:"queries"`
}

// QueryResult is the outcome of one query.
type QueryResult struct {
	Name  string `json:"name"`
	Model string `json:"model"`

	// Backend holds the ids the SQL backend returned, in id order.
	Backend []any `json:"backend"`

	// Evaluator holds the ids the cache filter returned. Nil when the
	// evaluator pass was skipped.
	Evaluator []any `json:"evaluator,omitempty"`

	// Evaluated reports whether the evaluator pass ran.
	Evaluated bool `json:"evaluated"`

	// Errors lists failed checks. Empty when the query passed.
	Errors []string `json:"errors,omitempty"`
}

// Pass reports whether the query passed every check.
func (q *QueryResult) Pass() bool {
	return len(q.Errors) == 0
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Queries:  []QueryResult{},
	}
}

// Add appends a query result and fails the run if the query failed.
func (r *Result) Add(q QueryResult) {
	r.Queries = append(r.Queries, q)
	if !q.Pass() {
		r.Pass = false
	}
}

// Failures returns every error message prefixed with its query name.
func (r *Result) Failures() []string {
	var out []string
	for _, q := range r.Queries {
		for _, e := range q.Errors {
			out = append(out, q.Name+": "+e)
		}
	}
	return out
}

// toCanonicalMap converts a Result to a map[string]any for canonical JSON
// serialization.
func (r *Result) toCanonicalMap() map[string]any {
	queries := make([]any, len(r.Queries))
	for i, q := range r.Queries {
		entry := map[string]any{
			"name":      q.Name,
			"model":     q.Model,
			"backend":   idList(q.Backend),
			"evaluated": q.Evaluated,
		}
		if q.Evaluated {
			entry["evaluator"] = idList(q.Evaluator)
		}
		if len(q.Errors) > 0 {
			errs := make([]any, len(q.Errors))
			for j, e := range q.Errors {
				errs[j] = e
			}
			entry["errors"] = errs
		}
		queries[i] = entry
	}
	return map[string]any{
		"scenario": r.Scenario,
		"pass":     r.Pass,
		"queries":  queries,
	}
}

func idList(ids []any) []any {
	if ids == nil {
		return []any{}
	}
	return ids
}
