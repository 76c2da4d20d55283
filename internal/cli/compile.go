package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/plan"
	"github.com/roach88/inlinesql/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output  string // output file path
	Catalog string // plan catalog database path
}

// CompilationResult holds the compiled plans.
type CompilationResult struct {
	Plans []*ir.ExecutionPlan `json:"plans"`
}

// FunctionDiagnostics lists the problems found in one function.
type FunctionDiagnostics struct {
	Function    string         `json:"function"`
	Diagnostics ir.Diagnostics `json:"diagnostics"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile function specs to execution plans",
		Long: `Compile every function in the CUE and YAML spec files under a directory.

Each query template is lowered to positional SQL, the declared return type
is classified into a result shape, and an execution plan is built. All
diagnostics of all functions are reported together.

Examples:
  inlinesql compile ./specs
  inlinesql compile ./specs --output plans.json
  inlinesql compile ./specs --catalog plans.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // we handle our own error output
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write plans as JSON to this file")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "save plans to this SQLite catalog")
	cmd.Flags().Int("workers", 0, "parallel compilations (0 = no limit)")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)
	if opts.Catalog == "" {
		opts.Catalog = cfg.Catalog
	}

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll, cfg.Config)
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, loadErrors)
	}
	formatter.VerboseLog("Found %d function(s) in %d spec file(s) under %s",
		len(loadResult.Functions), loadResult.FileCount, specsDir)

	results, err := plan.CompileAll(cmd.Context(), loadResult.Specs(), cfg.Workers, cfg.CompileOptions()...)
	if err != nil {
		return WrapExitError(ExitCommandError, "compilation interrupted", err)
	}

	var (
		plans  = make([]*ir.ExecutionPlan, 0, len(results))
		failed []FunctionDiagnostics
	)
	for i, r := range results {
		fn := loadResult.Functions[i]
		formatter.VerboseLog("Compiled %s: %s", fn.Spec.Name, r.Plan.Query.Text)

		all := append(ir.Diagnostics{}, fn.Diagnostics...)
		all.Append(r.Diagnostics...)
		if len(all) > 0 {
			failed = append(failed, FunctionDiagnostics{Function: fn.Spec.Name, Diagnostics: all})
			continue
		}
		plans = append(plans, r.Plan)
	}

	if len(failed) > 0 {
		return outputDiagnostics(formatter, failed)
	}

	result := &CompilationResult{Plans: plans}

	if opts.Output != "" {
		if err := writePlansToFile(result, opts.Output); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	changed := 0
	if opts.Catalog != "" {
		changed, err = savePlans(cmd, opts.Catalog, plans, formatter)
		if err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("saving catalog: %v", err))
		}
		formatter.VerboseLog("Catalog %s: %d plan(s) changed", opts.Catalog, changed)
	}

	return outputCompileSuccess(formatter, result, opts, changed)
}

func savePlans(cmd *cobra.Command, path string, plans []*ir.ExecutionPlan, formatter *OutputFormatter) (int, error) {
	st, err := store.Open(path, store.WithLogger(formatter.Logger()))
	if err != nil {
		return 0, err
	}
	n, err := st.SavePlans(cmd.Context(), plans)
	return n, errors.Join(err, st.Close())
}

// outputCompileSuccess prints the plan table or the JSON result.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, opts *CompileOptions, changed int) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d function(s)\n\n", len(result.Plans))

	rows := make([]table.Row, len(result.Plans))
	for i, p := range result.Plans {
		rows[i] = table.Row{p.Function, p.Shape, p.Call, strings.Join(p.Query.Placeholders, ", "), p.Query.Text}
	}
	formatter.Table(table.Row{"FUNCTION", "SHAPE", "CALL", "PARAMS", "QUERY"}, rows)

	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote plans to %s\n", opts.Output)
	}
	if opts.Catalog != "" {
		fmt.Fprintf(formatter.Writer, "Saved %d changed plan(s) to %s\n", changed, opts.Catalog)
	}
	return nil
}

// outputDiagnostics reports every diagnostic of every failed function.
// Diagnostics are command-level errors (exit code 2).
func outputDiagnostics(formatter *OutputFormatter, failed []FunctionDiagnostics) error {
	count := 0
	for _, f := range failed {
		count += len(f.Diagnostics)
	}
	msg := fmt.Sprintf("compilation failed with %d diagnostic(s) in %d function(s)", count, len(failed))

	if formatter.Format == "json" {
		if err := formatter.Error(ErrCodeDiagnostics, msg, failed); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, ErrCodeDiagnostics+": "+msg)
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, f := range failed {
		fmt.Fprintf(formatter.Writer, "%s:\n", f.Function)
		for _, d := range f.Diagnostics {
			fmt.Fprintf(formatter.Writer, "  %s\n", d.Error())
		}
		fmt.Fprintln(formatter.Writer)
	}
	return NewExitError(ExitCommandError, ErrCodeDiagnostics+": "+msg)
}

// outputLoadErrors reports spec loading errors (exit code 2).
func outputLoadErrors(formatter *OutputFormatter, errs []error) error {
	if len(errs) == 1 {
		code, message := parseLoadError(errs[0])
		return outputCommandError(formatter, code, message)
	}

	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseLoadError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := formatter.encode(CLIResponse{Status: "error", Error: &cliErrors[0], Data: cliErrors}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("loading failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Loading specs failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := parseLoadError(err)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", code, message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("loading failed with %d error(s)", len(errs)))
}

// outputCommandError outputs a single command-level error (exit code 2).
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writePlansToFile writes the plans as indented JSON.
func writePlansToFile(result *CompilationResult, filename string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("marshaling plans: %w", err)
	}

	if err := os.WriteFile(filename, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
