package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/inlinesql/internal/harness"
	"github.com/roach88/inlinesql/internal/querysql"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult summarizes a test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run compile-and-execute scenarios",
		Long: `Run the scenario files in a directory.

A scenario names its spec files, a setup and a flow of calls with expected
results. Every scenario gets a fresh in-memory SQLite database. If
golden/<scenario>.golden exists beside the scenario file, the snapshot of
plans and call trace must match it byte for byte.

Exit codes:
  0 - all scenarios passed
  1 - at least one scenario failed
  2 - the command itself failed

Examples:
  inlinesql test ./scenarios
  inlinesql test ./scenarios --filter "pets_*"
  inlinesql test ./scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current run")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose name matches this glob")

	return cmd
}

// scenarioRunner runs scenario files and reports each one as it finishes.
type scenarioRunner struct {
	update      bool
	compileOpts []querysql.Option
	progress    io.Writer // nil in JSON mode
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+dir)
	}
	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "listing scenarios", err)
	}

	json := opts.Format == "json"
	out := cmd.OutOrStdout()
	if len(files) == 0 && !json {
		fmt.Fprintln(out, "No scenarios found.")
		return nil
	}

	r := &scenarioRunner{update: opts.Update, compileOpts: cfg.CompileOptions()}
	if !json {
		r.progress = out
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, f := range files {
		result.add(r.run(f))
	}

	if json {
		return reportTestJSON(out, result)
	}
	return reportTestText(out, result)
}

// findScenarioFiles lists the .yaml and .yml files directly in dir, sorted
// by name. filter is matched against the name without extension.
func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", filter, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext)); !ok {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func (r *scenarioRunner) run(path string) ScenarioResult {
	name, errs := r.check(path)
	res := ScenarioResult{Name: name, Pass: len(errs) == 0, Errors: errs}

	if r.progress != nil {
		switch {
		case !res.Pass:
			fmt.Fprintf(r.progress, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(r.progress, "  %s\n", e)
			}
		case r.update:
			fmt.Fprintf(r.progress, "✓ %s (golden updated)\n", name)
		default:
			fmt.Fprintf(r.progress, "✓ %s\n", name)
		}
	}
	return res
}

// check executes one scenario and returns its name and failures. A scenario
// that cannot be loaded is named after its file.
func (r *scenarioRunner) check(path string) (string, []string) {
	s, err := harness.LoadScenario(path)
	if err != nil {
		return filepath.Base(path), []string{"failed to load scenario: " + err.Error()}
	}

	result, err := harness.Run(s, r.compileOpts...)
	if err != nil {
		return s.Name, []string{"execution failed: " + err.Error()}
	}
	snapshot, err := harness.Snapshot(s.Name, result)
	if err != nil {
		return s.Name, []string{"snapshot failed: " + err.Error()}
	}

	golden := goldenFilePath(path)
	if r.update {
		if err := writeGolden(golden, snapshot); err != nil {
			return s.Name, []string{"failed to update golden file: " + err.Error()}
		}
		return s.Name, nil
	}

	failures := append([]string(nil), result.Errors...)
	if !result.Pass && len(failures) == 0 {
		failures = append(failures, "scenario failed")
	}
	want, err := os.ReadFile(golden)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		failures = append(failures, "reading golden file: "+err.Error())
	case !bytes.Equal(want, snapshot):
		failures = append(failures, "snapshot does not match golden file (run with --update to regenerate)")
	}
	return s.Name, failures
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func testFailure(result TestResult) error {
	if result.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
}

func reportTestJSON(w io.Writer, result TestResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	f := &OutputFormatter{Format: "json", Writer: w}
	if err := f.encode(resp); err != nil {
		return err
	}
	return testFailure(result)
}

func reportTestText(w io.Writer, result TestResult) error {
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if err := testFailure(result); err != nil {
		return err
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
