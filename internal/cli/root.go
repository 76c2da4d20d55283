package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/inlinesql/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the inlinesql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "inlinesql",
		Short: "inlinesql - typed functions from inline SQL templates",
		Long: `Compile query templates with named placeholders into positional
SQL plans, classify each function's declared return type into a result
shape, and execute the plans against SQLite or PostgreSQL.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default inlinesql.yaml)")
	cmd.PersistentFlags().String("markers", "", "placeholder marker characters (default \"#$\")")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load reads the configuration for cmd. Output settings given on the
// command line win; otherwise a non-default file or environment value is
// used.
func (o *RootOptions) load(cmd *cobra.Command) (*config.Loaded, error) {
	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig+": failed to load configuration", err)
	}
	if cfg.Format != config.DefaultFormat {
		o.Format = cfg.Format
	}
	o.Verbose = o.Verbose || cfg.Verbose
	if o.Format == "" {
		o.Format = config.DefaultFormat
	}
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
