package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/orb-framework/orb-sub002/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config and Logger are set before any subcommand runs.
	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the orb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "orb",
		Short: "orb - query expressions over schemas",
		Long: `Build, expand and run query expressions against CUE-declared schemas.

Queries are read as JSON dicts. They can be expanded against a schema
registry, compiled to SQLite, evaluated over records in memory, and
checked for agreement between both paths with scenario files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	// Add subcommands
	cmd.AddCommand(NewSchemasCommand(opts))
	cmd.AddCommand(NewExpandCommand(opts))
	cmd.AddCommand(NewSQLCommand(opts))
	cmd.AddCommand(NewEvalCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

// setup loads the config file, when one is given, and builds the logger.
// Logs go to stderr so JSON output on stdout stays parseable.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	o.Config = config.Default()
	if o.ConfigPath != "" {
		cfg, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		o.Config = cfg
	}
	if o.Verbose {
		o.Config.Logger.Level = "debug"
	}

	logger, err := config.NewLogger(o.Config.Logger, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create logger", err)
	}
	o.Logger = logger
	return nil
}

// logger returns the configured logger, or a discarding one for commands
// constructed without the root.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// schemasDir picks the schema directory argument, falling back to the
// config file's schemas entry.
func (o *RootOptions) schemasDir(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if o.Config.Schemas != "" {
		return o.Config.Schemas, nil
	}
	return "", NewExitError(ExitCommandError, "no schema directory: pass one or set schemas in the config file")
}

// usageArgs marks argument count errors as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, "invalid arguments", err)
		}
		return nil
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
