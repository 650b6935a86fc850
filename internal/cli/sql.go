package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orb-framework/orb-sub002/internal/query"
	"github.com/orb-framework/orb-sub002/internal/querysql"
	"github.com/orb-framework/orb-sub002/internal/store"
)

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	QueryOptions
	Run      bool
	Database string
}

// SQLResult is the output of the sql command.
type SQLResult struct {
	Model   string         `json:"model"`
	SQL     string         `json:"sql"`
	Params  []any          `json:"params"`
	Records []query.Values `json:"records"` // nil unless --run
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "sql [schemas-dir] <query.json|->",
		Short: "Compile a query to SQLite",
		Long: `Decode and expand a query, then print the SELECT statement the store
would run for it, with its bound parameters.

With --run the statement is executed against the database from
--database or the config file.

Examples:
  orb sql ./schemas --model Employee query.json
  orb sql ./schemas --model Employee query.json --run --database orb.db`,
		Args:          usageArgs(cobra.RangeArgs(1, 2)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dirArg, input := splitQueryArgs(args)
			return runSQL(opts, dirArg, input, cmd)
		},
	}

	addQueryFlags(cmd, &opts.QueryOptions)
	cmd.Flags().BoolVar(&opts.Run, "run", false, "execute the statement and print the records")
	cmd.Flags().StringVar(&opts.Database, "database", "", "SQLite database path (default from config)")

	return cmd
}

func runSQL(opts *SQLOptions, dirArg, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	if opts.Model == "" {
		return NewExitError(ExitCommandError, "--model is required")
	}

	loaded, err := loadRegistry(opts.RootOptions, dirArg, formatter)
	if err != nil {
		return err
	}
	reg := loaded.Registry

	q, expanded, err := decodeAndExpand(&opts.QueryOptions, reg, input, cmd.InOrStdin(), formatter)
	if err != nil {
		return err
	}

	cols, err := store.StoredColumns(reg, opts.Model)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeSQL, err)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	sqlText, params, err := querysql.NewSQLCompiler(reg).Compile(query.Select(opts.Model, expanded, names...))
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeSQL, err)
	}
	opts.logger().Debug("query compiled", "model", opts.Model, "sql", sqlText, "params", len(params))

	result := SQLResult{Model: opts.Model, SQL: sqlText, Params: params}
	if result.Params == nil {
		result.Params = []any{}
	}

	if opts.Run {
		path := opts.Database
		if path == "" {
			path = opts.Config.Database
		}
		st, err := store.Open(path, reg,
			store.WithLogger(opts.logger()),
			store.WithExpandOptions(opts.expandOptions()...))
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeSQL, err)
		}
		defer st.Close()

		// The store expands the original query itself.
		recs, err := st.Select(cmd.Context(), opts.Model, q)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeSQL, err)
		}
		result.Records = recs
		if result.Records == nil {
			result.Records = []query.Values{}
		}
	}

	return formatter.Success(result, formatSQL(result, opts.Run, names))
}

func formatSQL(result SQLResult, run bool, columns []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", result.SQL)
	for i, p := range result.Params {
		fmt.Fprintf(&b, "  $%d = %#v\n", i+1, p)
	}
	if !run {
		return b.String()
	}
	fmt.Fprintf(&b, "\n%d record(s)\n", len(result.Records))
	for _, rec := range result.Records {
		fields := make([]string, 0, len(columns))
		for _, c := range columns {
			fields = append(fields, fmt.Sprintf("%s=%v", c, rec[c]))
		}
		fmt.Fprintf(&b, "  %s\n", strings.Join(fields, " "))
	}
	return b.String()
}
