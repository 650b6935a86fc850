package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/orb-framework/orb-sub002/internal/query"
	"github.com/orb-framework/orb-sub002/internal/querysql"
	"github.com/orb-framework/orb-sub002/internal/schema"
)

// Schema version tracking:
// 1 - One untyped table per registered schema
const currentSchemaVersion = 1

// Store provides SQLite storage for the records of a schema registry.
type Store struct {
	db       *sql.DB
	reg      *schema.Registry
	compiler *querysql.SQLCompiler
	ids      IDGenerator
	filters  map[string]query.FilterFunc
	expand   []query.ExpandOption
	logger   *slog.Logger

	mu    sync.Mutex
	stmts map[string]statement
}

// statement is a compiled SELECT with its parameters.
type statement struct {
	sql    string
	params []any
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithIDGenerator sets the generator for records inserted without an id.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithFilters sets the collector filter functions used during expansion.
func WithFilters(filters map[string]query.FilterFunc) Option {
	return func(s *Store) { s.filters = filters }
}

// WithExpandOptions adds options to every expansion Select runs.
func WithExpandOptions(opts ...query.ExpandOption) Option {
	return func(s *Store) { s.expand = append(s.expand, opts...) }
}

// Open creates or opens a SQLite database at the given path and creates a
// table for every schema in reg. Use ":memory:" for a private in-memory
// database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string, reg *schema.Registry, opts ...Option) (*Store, error) {
	s := &Store{
		reg:      reg,
		compiler: querysql.NewSQLCompiler(reg),
		ids:      UUIDv7Generator{},
		logger:   slog.New(slog.DiscardHandler),
		stmts:    make(map[string]statement),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time, and a :memory: database
	// exists per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s.db = db
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s.logger.Info("store opened", "path", path, "models", len(reg.Names()))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Registry returns the schema registry the store was opened with.
func (s *Store) Registry() *schema.Registry {
	return s.reg
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates a table for every registered schema.
func (s *Store) applySchema() error {
	for _, name := range s.reg.Names() {
		ddl, err := TableDDL(s.reg, name)
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("create table for %s: %w", name, err)
		}
		s.logger.Debug("table ready", "model", name)
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// TableDDL returns the CREATE TABLE statement for a model: its own and
// inherited stored columns, without declared types, keyed by the id column.
func TableDDL(reg *schema.Registry, model string) (string, error) {
	s, err := reg.Schema(model)
	if err != nil {
		return "", err
	}
	cols, err := StoredColumns(reg, model)
	if err != nil {
		return "", err
	}
	id, err := reg.IDColumn(model)
	if err != nil {
		return "", err
	}

	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		def := quoteIdent(c.FieldName())
		if c.FieldName() == id.FieldName() {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(s.DBName()), strings.Join(defs, ", ")), nil
}

// StoredColumns lists the columns that have a field in the table. Shortcut
// columns only exist in queries.
func StoredColumns(reg *schema.Registry, model string) ([]*schema.Column, error) {
	all, err := reg.AllColumns(model)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, c := range all {
		if c.Shortcut == "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// cachedStatement returns the compiled statement for a selection,
// compiling it on first use.
func (s *Store) cachedStatement(sel query.Selection) (statement, error) {
	key, err := query.SelectionFingerprint(sel)
	if err != nil {
		return statement{}, fmt.Errorf("fingerprint selection: %w", err)
	}

	s.mu.Lock()
	st, ok := s.stmts[key]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	sqlText, params, err := s.compiler.Compile(sel)
	if err != nil {
		return statement{}, err
	}
	st = statement{sql: sqlText, params: params}

	s.mu.Lock()
	s.stmts[key] = st
	s.mu.Unlock()
	return st, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	q := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(q).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
