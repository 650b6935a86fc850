package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orb-framework/orb-sub002/internal/harness"
	"github.com/orb-framework/orb-sub002/internal/query"
	"github.com/orb-framework/orb-sub002/internal/schema"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	QueryOptions
	Schemas string
}

// EvalMatch is one record the query accepted.
type EvalMatch struct {
	Index  int            `json:"index"`
	Record map[string]any `json:"record"`
}

// EvalResult is the output of the eval command.
type EvalResult struct {
	Query   string      `json:"query"`
	Total   int         `json:"total"`
	Matches []EvalMatch `json:"matches"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "eval <query.json|-> <records.yaml>",
		Short: "Evaluate a query over records in memory",
		Long: `Run the in-memory evaluator over a YAML list of records and print the
ones the query accepts. No database is involved.

Dotted column names read nested maps. With --model the query is expanded
against the schemas first; expansion that produces sub-selects cannot be
evaluated in memory.

Examples:
  orb eval query.json records.yaml
  orb eval query.json records.yaml --schemas ./schemas --model Person`,
		Args:          usageArgs(cobra.ExactArgs(2)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schemas, "schemas", "", "schema directory (default from config)")
	addQueryFlags(cmd, &opts.QueryOptions)
	cmd.Flags().Lookup("model").Usage = "model to expand the query against before evaluating"

	return cmd
}

func runEval(opts *EvalOptions, queryPath, recordsPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout())

	var reg *schema.Registry
	if opts.Schemas != "" || opts.Config.Schemas != "" {
		loaded, err := loadRegistry(opts.RootOptions, opts.Schemas, formatter)
		if err != nil {
			return err
		}
		reg = loaded.Registry
	} else if opts.Model != "" {
		return NewExitError(ExitCommandError, "--model needs a schema directory")
	}

	var lookup schema.Lookup
	if reg != nil {
		lookup = reg
	}
	q, err := readQuery(queryPath, cmd.InOrStdin(), lookup)
	if err != nil {
		return formatter.Fail(failureExit(err), errorCode(err, ErrCodeQuery), err)
	}

	if opts.Model != "" {
		if q, err = q.Expand(reg, opts.Model, opts.expandOptions()...); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeExpand, err)
		}
	}
	if harness.HasSubSelect(q) {
		return formatter.Fail(ExitFailure, ErrCodeQuery,
			errors.New("query contains a sub-select; the evaluator cannot follow it"))
	}

	records, err := readRecords(recordsPath, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(failureExit(err), errorCode(err, ErrCodeRecords), err)
	}

	result := EvalResult{Query: fmt.Sprint(q), Total: len(records), Matches: []EvalMatch{}}
	for i, rec := range records {
		if q.Validate(query.Values(rec)) {
			result.Matches = append(result.Matches, EvalMatch{Index: i, Record: rec})
		}
	}
	opts.logger().Debug("records evaluated",
		"query", result.Query, "total", result.Total, "matches", len(result.Matches))

	return formatter.Success(result, formatEval(result))
}

// readRecords reads a YAML list of records.
func readRecords(path string, stdin io.Reader) ([]map[string]any, error) {
	data, err := readInput(path, stdin)
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&records); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: failed to parse records: %w", path, err)
	}
	for i, rec := range records {
		if rec == nil {
			return nil, fmt.Errorf("%s: record %d is empty", path, i)
		}
	}
	return records, nil
}

func formatEval(result EvalResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", result.Query)
	fmt.Fprintf(&b, "%d of %d record(s) match\n", len(result.Matches), result.Total)
	for _, m := range result.Matches {
		fmt.Fprintf(&b, "  [%d] %s\n", m.Index, formatRecord(m.Record))
	}
	return b.String()
}

func formatRecord(rec map[string]any) string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = fmt.Sprintf("%s=%v", k, rec[k])
	}
	return strings.Join(fields, " ")
}
