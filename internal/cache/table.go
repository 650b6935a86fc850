// Package cache holds preloaded record tables and filters them locally
// with the query evaluator.
package cache

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/btree"

	"github.com/orb-framework/orb-sub002/internal/query"
)

// Source loads records of a model; *store.Store implements it.
type Source interface {
	Select(ctx context.Context, model string, where query.Expr) ([]query.Values, error)
}

type row struct {
	id  any
	rec query.Values
}

// Table is an in-memory set of records of one model, ordered by id the way
// SQLite orders with COLLATE BINARY: nulls, then numbers, then text.
type Table struct {
	model   string
	idField string
	rows    *btree.BTreeG[row]
}

// NewTable creates an empty table keyed by idField.
func NewTable(model, idField string) *Table {
	return &Table{
		model:   model,
		idField: idField,
		rows:    btree.NewBTreeG(func(a, b row) bool { return compareIDs(a.id, b.id) < 0 }),
	}
}

// Preload creates a table holding every record src has for model.
func Preload(ctx context.Context, src Source, model, idField string) (*Table, error) {
	recs, err := src.Select(ctx, model, nil)
	if err != nil {
		return nil, fmt.Errorf("preload %s: %w", model, err)
	}
	t := NewTable(model, idField)
	if err := t.Load(recs); err != nil {
		return nil, err
	}
	return t, nil
}

// Model returns the model name.
func (t *Table) Model() string { return t.model }

// Len returns the number of records.
func (t *Table) Len() int { return t.rows.Len() }

// Load puts every record, stopping at the first without an id.
func (t *Table) Load(recs []query.Values) error {
	for i, rec := range recs {
		if err := t.Put(rec); err != nil {
			return fmt.Errorf("load %s[%d]: %w", t.model, i, err)
		}
	}
	return nil
}

// Put inserts or replaces a record.
func (t *Table) Put(rec query.Values) error {
	id, ok := rec[t.idField]
	if !ok || id == nil {
		return fmt.Errorf("record without %q", t.idField)
	}
	t.rows.Set(row{id: id, rec: rec})
	return nil
}

// Get returns the record with the given id.
func (t *Table) Get(id any) (query.Values, bool) {
	r, ok := t.rows.Get(row{id: id})
	return r.rec, ok
}

// Delete removes a record and reports whether it was present.
func (t *Table) Delete(id any) bool {
	_, ok := t.rows.Delete(row{id: id})
	return ok
}

// Filter returns the records matching e in id order. A nil expression
// matches everything. Expressions holding sub-selects never match, since
// the evaluator cannot run them.
func (t *Table) Filter(e query.Expr) []query.Values {
	out := []query.Values{}
	t.rows.Scan(func(r row) bool {
		if e == nil || e.Validate(r.rec) {
			out = append(out, r.rec)
		}
		return true
	})
	return out
}

// Clone returns a copy of the table. The copy shares nodes with the
// original until either is written.
func (t *Table) Clone() *Table {
	return &Table{model: t.model, idField: t.idField, rows: t.rows.Copy()}
}

// compareIDs orders ids by storage class, then by value.
func compareIDs(a, b any) int {
	ca, cb := idClass(a), idClass(b)
	if ca != cb {
		return ca - cb
	}
	switch ca {
	case classNumber:
		return compareNumbers(a, b)
	case classText:
		return strings.Compare(idText(a), idText(b))
	}
	return 0
}

const (
	classNull = iota
	classNumber
	classText
)

func idClass(v any) int {
	switch v.(type) {
	case nil:
		return classNull
	case int, int32, int64, float64, bool:
		return classNumber
	}
	return classText
}

// compareNumbers compares integers exactly and mixed integer/float ids by
// value, so large int64 ids never collide.
func compareNumbers(a, b any) int {
	ia, aInt := idInt(a)
	ib, bInt := idInt(b)
	if aInt && bInt {
		return cmp.Compare(ia, ib)
	}
	fa, fb := idFloat(a), idFloat(b)
	if c := cmp.Compare(fa, fb); c != 0 || aInt == bInt {
		return c
	}
	// Equal as floats, one side an integer: compare on the integer scale.
	if aInt {
		if fb >= math.MaxInt64 {
			return -1
		}
		return cmp.Compare(ia, int64(fb))
	}
	if fa >= math.MaxInt64 {
		return 1
	}
	return cmp.Compare(int64(fa), ib)
}

func idInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func idFloat(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	i, _ := idInt(v)
	return float64(i)
}

func idText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
