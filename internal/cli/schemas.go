package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orb-framework/orb-sub002/internal/compiler"
	"github.com/orb-framework/orb-sub002/internal/schema"
)

// SchemaInfo describes one loaded schema.
type SchemaInfo struct {
	Name       string          `json:"name"`
	DBName     string          `json:"dbname"`
	Inherits   string          `json:"inherits,omitempty"`
	Columns    []ColumnInfo    `json:"columns"`
	Collectors []CollectorInfo `json:"collectors,omitempty"`
}

// ColumnInfo describes one column, inherited ones included.
type ColumnInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Field     string `json:"field,omitempty"`
	Reference string `json:"reference,omitempty"`
	Shortcut  string `json:"shortcut,omitempty"`
	Owner     string `json:"owner"`
}

// CollectorInfo describes one collector.
type CollectorInfo struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Model  string `json:"model"`
	Filter string `json:"filter,omitempty"`
}

// SchemasResult is the output of the schemas command.
type SchemasResult struct {
	Schemas  []SchemaInfo            `json:"schemas"`
	Warnings []compiler.CycleWarning `json:"warnings,omitempty"`
}

// NewSchemasCommand creates the schemas command.
func NewSchemasCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas [schemas-dir]",
		Short: "Load CUE schemas and list their members",
		Long: `Load the CUE schema declarations in a directory, validate every link
between them, and list models, columns and collectors.

Shortcut loops are reported as warnings.

Examples:
  orb schemas ./schemas
  orb schemas ./schemas --format json`,
		Args:          usageArgs(cobra.MaximumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemas(rootOpts, firstArg(args), cmd)
		},
	}
}

func runSchemas(opts *RootOptions, dirArg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout())

	loaded, err := loadRegistry(opts, dirArg, formatter)
	if err != nil {
		return err
	}

	// Registration order follows CUE field order; list by name instead.
	names := loaded.Registry.Names()
	slices.Sort(names)

	result := SchemasResult{Schemas: []SchemaInfo{}, Warnings: loaded.Warnings}
	for _, name := range names {
		info, err := describeSchema(loaded.Registry, name)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, err)
		}
		result.Schemas = append(result.Schemas, info)
	}

	return formatter.Success(result, formatSchemas(result))
}

func describeSchema(reg *schema.Registry, name string) (SchemaInfo, error) {
	s, err := reg.Schema(name)
	if err != nil {
		return SchemaInfo{}, err
	}
	cols, err := reg.AllColumns(name)
	if err != nil {
		return SchemaInfo{}, err
	}

	info := SchemaInfo{Name: name, DBName: s.DBName(), Inherits: s.Inherits(), Columns: []ColumnInfo{}}
	for _, c := range cols {
		ci := ColumnInfo{
			Name:      c.Name,
			Type:      string(c.Type),
			Reference: c.Reference,
			Shortcut:  c.Shortcut,
			Owner:     c.Schema(),
		}
		if c.Field != "" && c.Field != c.Name {
			ci.Field = c.Field
		}
		info.Columns = append(info.Columns, ci)
	}
	for _, c := range s.Collectors() {
		info.Collectors = append(info.Collectors, CollectorInfo{
			Name:   c.Name,
			Kind:   string(c.Kind),
			Model:  c.Model,
			Filter: c.Filter,
		})
	}
	return info, nil
}

func formatSchemas(result SchemasResult) string {
	var b strings.Builder
	for _, s := range result.Schemas {
		fmt.Fprintf(&b, "%s (table %s)", s.Name, s.DBName)
		if s.Inherits != "" {
			fmt.Fprintf(&b, " inherits %s", s.Inherits)
		}
		b.WriteByte('\n')
		for _, c := range s.Columns {
			fmt.Fprintf(&b, "  %s %s", c.Name, c.Type)
			if c.Reference != "" {
				fmt.Fprintf(&b, " -> %s", c.Reference)
			}
			if c.Shortcut != "" {
				fmt.Fprintf(&b, " = %s", c.Shortcut)
			}
			if c.Owner != s.Name {
				fmt.Fprintf(&b, " (from %s)", c.Owner)
			}
			b.WriteByte('\n')
		}
		for _, c := range s.Collectors {
			fmt.Fprintf(&b, "  %s %s of %s", c.Name, c.Kind, c.Model)
			if c.Filter != "" {
				fmt.Fprintf(&b, " [%s]", c.Filter)
			}
			b.WriteByte('\n')
		}
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w.Message)
	}
	return b.String()
}

// loadRegistry loads the schema directory named by dirArg or the config
// file, reporting failures through the formatter.
func loadRegistry(opts *RootOptions, dirArg string, formatter *OutputFormatter) (*LoadResult, error) {
	dir, err := opts.schemasDir(dirArg)
	if err != nil {
		return nil, err
	}

	opts.logger().Debug("loading schemas", "dir", dir)
	loaded, err := LoadSchemas(dir)
	if err != nil {
		exitCode, code := loadFailure(err)
		var details any
		if le, ok := err.(*LoadError); ok {
			details = le.Details
		}
		if outErr := formatter.Error(code, err.Error(), details); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(exitCode, "failed to load schemas", err)
	}

	opts.logger().Info("schemas loaded",
		"dir", dir, "files", loaded.FileCount, "models", len(loaded.Registry.Names()),
		"trace_id", formatter.TraceID)
	for _, w := range loaded.Warnings {
		opts.logger().Warn("shortcut loop", "path", w.Path)
	}
	return loaded, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
