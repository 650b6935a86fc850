package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/orb-framework/orb-sub002/internal/cache"
	"github.com/orb-framework/orb-sub002/internal/compiler"
	"github.com/orb-framework/orb-sub002/internal/query"
	"github.com/orb-framework/orb-sub002/internal/schema"
	"github.com/orb-framework/orb-sub002/internal/store"
)

// Harness holds the state of one scenario run.
type Harness struct {
	reg     *schema.Registry
	store   *store.Store
	tables  map[string]*cache.Table
	filters map[string]query.FilterFunc
	logger  *slog.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithFilters supplies the collector filter functions the scenario's
// schemas name.
func WithFilters(filters map[string]query.FilterFunc) Option {
	return func(h *Harness) { h.filters = filters }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Records without an id get sequential ids ("gen-0001", ...), so results
// are reproducible.
//
// Execution flow:
//  1. Compile the scenario's CUE schemas
//  2. Open the store and insert the records
//  3. Preload a cache table per model
//  4. Answer every query through both paths and compare
//
// Failed checks are recorded in the result; the returned error is for
// scenarios that cannot run at all.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		tables: make(map[string]*cache.Table),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}

	reg, err := compiler.CompileString(scenario.Schemas, scenario.Name+".cue")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schemas: %w", err)
	}
	h.reg = reg

	ids, err := generatedIDs(reg, scenario.Records)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:", reg,
		store.WithLogger(h.logger),
		store.WithIDGenerator(store.NewFixedGenerator(ids...)),
		store.WithFilters(h.filters),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	h.store = st

	if err := h.insertRecords(ctx, scenario.Records); err != nil {
		return nil, fmt.Errorf("failed to insert records: %w", err)
	}

	result := NewResult(scenario.Name)
	for _, qc := range scenario.Queries {
		qr := h.runQuery(ctx, qc)
		h.logger.Debug("query checked",
			"scenario", scenario.Name, "query", qc.Name,
			"backend", len(qr.Backend), "evaluated", qr.Evaluated, "pass", qr.Pass())
		result.Add(qr)
	}

	h.logger.Info("scenario finished", "scenario", scenario.Name, "pass", result.Pass)
	return result, nil
}

// generatedIDs returns one deterministic id per record that has none.
func generatedIDs(reg *schema.Registry, records map[string][]map[string]any) ([]string, error) {
	var ids []string
	for _, model := range sortedModels(records) {
		idCol, err := reg.IDColumn(model)
		if err != nil {
			return nil, fmt.Errorf("records.%s: %w", model, err)
		}
		for _, rec := range records[model] {
			if rec[idCol.Name] == nil {
				ids = append(ids, fmt.Sprintf("gen-%04d", len(ids)+1))
			}
		}
	}
	return ids, nil
}

func (h *Harness) insertRecords(ctx context.Context, records map[string][]map[string]any) error {
	for _, model := range sortedModels(records) {
		for i, rec := range records[model] {
			if _, err := h.store.Insert(ctx, model, rec); err != nil {
				return fmt.Errorf("records.%s[%d]: %w", model, i, err)
			}
		}
	}
	return nil
}

func sortedModels(records map[string][]map[string]any) []string {
	models := make([]string, 0, len(records))
	for m := range records {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// table returns the preloaded cache table for model, loading it on first
// use.
func (h *Harness) table(ctx context.Context, model string) (*cache.Table, error) {
	if t, ok := h.tables[model]; ok {
		return t, nil
	}
	idCol, err := h.reg.IDColumn(model)
	if err != nil {
		return nil, err
	}
	t, err := cache.Preload(ctx, h.store, model, idCol.Name)
	if err != nil {
		return nil, err
	}
	h.tables[model] = t
	return t, nil
}

func (h *Harness) runQuery(ctx context.Context, qc QueryCase) QueryResult {
	qr := QueryResult{Name: qc.Name, Model: qc.Model, Backend: []any{}}
	fail := func(err error) QueryResult {
		qr.Errors = append(qr.Errors, err.Error())
		return qr
	}

	var where query.Expr
	if len(qc.Where) > 0 {
		decoded, err := query.FromDict(qc.Where, h.reg)
		if err != nil {
			return fail(fmt.Errorf("decode: %w", err))
		}
		where = decoded
	}

	idCol, err := h.reg.IDColumn(qc.Model)
	if err != nil {
		return fail(err)
	}

	recs, err := h.store.Select(ctx, qc.Model, where)
	if err != nil {
		return fail(err)
	}
	qr.Backend = idsOf(recs, idCol.Name)

	var expanded query.Expr
	if where != nil {
		if expanded, err = where.Expand(h.reg, qc.Model, query.WithFilters(h.filters)); err != nil {
			return fail(fmt.Errorf("expand: %w", err))
		}
	}
	if !HasSubSelect(expanded) {
		t, err := h.table(ctx, qc.Model)
		if err != nil {
			return fail(err)
		}
		qr.Evaluated = true
		qr.Evaluator = idsOf(t.Filter(expanded), idCol.Name)
		if err := assertAgreement(qr.Backend, qr.Evaluator); err != nil {
			qr.Errors = append(qr.Errors, err.Error())
		}
	}

	if qc.Expect != nil {
		if err := assertExpected(qc.Expect, qr.Backend); err != nil {
			qr.Errors = append(qr.Errors, err.Error())
		}
	}
	return qr
}

// HasSubSelect reports whether any leaf of e compares against a
// Selection, directly or through a nested query value.
func HasSubSelect(e query.Expr) bool {
	switch x := e.(type) {
	case query.Query:
		switch v := x.Value().(type) {
		case query.Selection:
			return true
		case query.Query:
			return HasSubSelect(v)
		case query.Compound:
			return HasSubSelect(v)
		}
	case query.Compound:
		for _, child := range x.Queries() {
			if HasSubSelect(child) {
				return true
			}
		}
	}
	return false
}

func idsOf(recs []query.Values, idField string) []any {
	ids := make([]any, len(recs))
	for i, rec := range recs {
		ids[i] = rec[idField]
	}
	return ids
}
