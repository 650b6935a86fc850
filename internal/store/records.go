package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orb-framework/orb-sub002/internal/query"
	"github.com/orb-framework/orb-sub002/internal/schema"
)

// Insert writes a record of model and returns its id. Keys are column
// names; a record without an id gets one from the store's generator.
// Uses ON CONFLICT DO NOTHING, so inserting an existing id is a no-op.
func (s *Store) Insert(ctx context.Context, model string, rec map[string]any) (any, error) {
	sch, err := s.reg.Schema(model)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	idCol, err := s.reg.IDColumn(model)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	stored, err := StoredColumns(s.reg, model)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	byName := make(map[string]*schema.Column, len(stored))
	for _, c := range stored {
		byName[c.Name] = c
	}
	for key := range rec {
		if byName[key] == nil {
			return nil, fmt.Errorf("insert: %w", schema.NewColumnNotFound(model, key))
		}
	}

	id := rec[idCol.Name]
	if id == nil {
		id = s.ids.Generate()
	}

	fields := make([]string, 0, len(stored))
	marks := make([]string, 0, len(stored))
	args := make([]any, 0, len(stored))
	for _, c := range stored {
		v := rec[c.Name]
		if c.Name == idCol.Name {
			v = id
		}
		arg, err := storageValue(v)
		if err != nil {
			return nil, fmt.Errorf("insert %s.%s: %w", model, c.Name, err)
		}
		fields = append(fields, quoteIdent(c.FieldName()))
		marks = append(marks, "?")
		args = append(args, arg)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		quoteIdent(sch.DBName()), strings.Join(fields, ", "), strings.Join(marks, ", "))
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("insert %s: %w", model, err)
	}

	s.logger.Debug("insert", "model", model, "id", id)
	return id, nil
}

// Select returns the records of model matching where, ordered by id.
// The expression is expanded first, so dot paths, shortcuts and
// collectors may be used. A nil where selects everything.
func (s *Store) Select(ctx context.Context, model string, where query.Expr) ([]query.Values, error) {
	if where != nil {
		opts := append([]query.ExpandOption{query.WithFilters(s.filters)}, s.expand...)
		expanded, err := where.Expand(s.reg, model, opts...)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", model, err)
		}
		where = expanded
	}

	cols, err := StoredColumns(s.reg, model)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", model, err)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	st, err := s.cachedStatement(query.Select(model, where, names...))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", model, err)
	}
	s.logger.Debug("select", "model", model, "sql", st.sql, "params", len(st.params))

	rows, err := s.db.QueryContext(ctx, st.sql, st.params...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", model, err)
	}
	defer rows.Close()

	out := []query.Values{}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", model, err)
		}
		rec := make(query.Values, len(cols))
		for i, c := range cols {
			rec[c.Name] = loadValue(c, raw[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", model, err)
	}
	return out, nil
}

// storageValue converts a record value to its stored form.
func storageValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case []byte:
		return string(x), nil
	case time.Time:
		return query.FormatTime(x), nil
	case time.Duration:
		return int64(x), nil
	default:
		return nil, fmt.Errorf("cannot store value of type %T", v)
	}
}

// loadValue converts a scanned value back to the column's Go type.
func loadValue(c *schema.Column, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch c.Type {
	case schema.TypeBoolean:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case schema.TypeDatetime:
		if s, ok := v.(string); ok {
			if t, err := time.Parse(query.TimeLayout, s); err == nil {
				return t
			}
		}
	case schema.TypeFloat:
		if n, ok := v.(int64); ok {
			return float64(n)
		}
	}
	return v
}
