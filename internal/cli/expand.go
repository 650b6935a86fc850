package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/orb-framework/orb-sub002/internal/query"
	"github.com/orb-framework/orb-sub002/internal/schema"
)

// QueryOptions holds the flags shared by commands that take a query.
type QueryOptions struct {
	*RootOptions
	Model         string
	IgnoreFilters bool
}

// ExpandResult is the output of the expand command.
type ExpandResult struct {
	Model    string         `json:"model"`
	Query    map[string]any `json:"query"`
	Expanded map[string]any `json:"expanded"`
}

// NewExpandCommand creates the expand command.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expand [schemas-dir] <query.json|->",
		Short: "Expand dot paths, shortcuts and collectors in a query",
		Long: `Decode a query dict, expand it against a model, and print the
expanded dict. The result only names plain columns of its own model;
traversals become IN sub-selects.

Use - to read the query from stdin. The schema directory defaults to
the config file's schemas entry.

Examples:
  orb expand ./schemas --model Employee query.json
  echo '{"type":"query","column":"department.name","op":"Is","value":"Sales"}' | orb expand ./schemas --model Employee -`,
		Args:          usageArgs(cobra.RangeArgs(1, 2)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dirArg, input := splitQueryArgs(args)
			return runExpand(opts, dirArg, input, cmd)
		},
	}

	addQueryFlags(cmd, opts)
	return cmd
}

func addQueryFlags(cmd *cobra.Command, opts *QueryOptions) {
	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "model the query is resolved against (required)")
	cmd.Flags().BoolVar(&opts.IgnoreFilters, "ignore-filters", false, "expand filtered collectors without their filter")
}

// splitQueryArgs separates the optional schema directory from the query
// input argument.
func splitQueryArgs(args []string) (dir, input string) {
	if len(args) == 2 {
		return args[0], args[1]
	}
	return "", args[0]
}

func (o *QueryOptions) expandOptions() []query.ExpandOption {
	if o.IgnoreFilters {
		return []query.ExpandOption{query.IgnoreFilter()}
	}
	return nil
}

func runExpand(opts *QueryOptions, dirArg, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	if opts.Model == "" {
		return NewExitError(ExitCommandError, "--model is required")
	}

	loaded, err := loadRegistry(opts.RootOptions, dirArg, formatter)
	if err != nil {
		return err
	}

	q, expanded, err := decodeAndExpand(opts, loaded.Registry, input, cmd.InOrStdin(), formatter)
	if err != nil {
		return err
	}

	result := ExpandResult{Model: opts.Model}
	if result.Query, err = query.ToDict(q); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeQuery, err)
	}
	if result.Expanded, err = query.ToDict(expanded); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeExpand, err)
	}

	text, err := query.Marshal(expanded)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeExpand, err)
	}
	return formatter.Success(result, fmt.Sprintf("%s\n%s\n", expanded, text))
}

// decodeAndExpand reads, decodes and expands the query named by input.
func decodeAndExpand(opts *QueryOptions, reg *schema.Registry, input string, stdin io.Reader, formatter *OutputFormatter) (query.Expr, query.Expr, error) {
	if _, err := reg.Schema(opts.Model); err != nil {
		return nil, nil, formatter.Fail(ExitCommandError, ErrCodeQuery, err)
	}

	q, err := readQuery(input, stdin, reg)
	if err != nil {
		return nil, nil, formatter.Fail(failureExit(err), errorCode(err, ErrCodeQuery), err)
	}

	expanded, err := q.Expand(reg, opts.Model, opts.expandOptions()...)
	if err != nil {
		return nil, nil, formatter.Fail(ExitFailure, ErrCodeExpand, err)
	}
	opts.logger().Debug("query expanded", "model", opts.Model, "query", fmt.Sprint(q), "expanded", fmt.Sprint(expanded))
	return q, expanded, nil
}

// readQuery reads a JSON query dict from a file, or from stdin when path
// is "-".
func readQuery(path string, stdin io.Reader, lookup schema.Lookup) (query.Expr, error) {
	data, err := readInput(path, stdin)
	if err != nil {
		return nil, err
	}
	q, err := query.Unmarshal(data, lookup)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}

// inputError marks a file that could not be read.
type inputError struct {
	err error
}

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

func readInput(path string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, &inputError{err: fmt.Errorf("failed to read %s: %w", path, err)}
	}
	return data, nil
}

// failureExit treats unreadable inputs as usage errors.
func failureExit(err error) int {
	if _, ok := err.(*inputError); ok {
		return ExitCommandError
	}
	return ExitFailure
}

func errorCode(err error, fallback string) string {
	if _, ok := err.(*inputError); ok {
		return ErrCodeReadFailed
	}
	return fallback
}
