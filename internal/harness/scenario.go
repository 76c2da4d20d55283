package harness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a compile-and-execute test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE or YAML spec files to compile.
	// Relative paths are resolved against the scenario file's directory.
	Specs []string `yaml:"specs"`

	// Setup contains calls made before the flow, e.g. creating tables.
	// Setup calls must succeed; their results are not checked.
	Setup []CallStep `yaml:"setup,omitempty"`

	// Flow contains the calls under test, each with optional expectations.
	Flow []CallStep `yaml:"flow,omitempty"`

	// Assertions validate plans, diagnostics, the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// CallStep calls one compiled function with named arguments.
type CallStep struct {
	Call   string         `yaml:"call"`
	Args   map[string]any `yaml:"args,omitempty"`
	Expect *ExpectClause  `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a call. At most one of
// the result fields may be set.
type ExpectClause struct {
	// RowsAffected is the expected count of a row-count function.
	RowsAffected *int64 `yaml:"rows_affected,omitempty"`

	// Rows are the expected rows of a collection function, in order.
	// Each row is a subset match.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Row is the expected single row (subset match).
	Row map[string]any `yaml:"row,omitempty"`

	// None expects an optional function to find nothing.
	None bool `yaml:"none,omitempty"`

	// Error expects the call to fail with a message containing it.
	Error string `yaml:"error,omitempty"`
}

// results counts the outcome fields that are set.
func (e *ExpectClause) results() int {
	n := 0
	for _, set := range []bool{e.RowsAffected != nil, e.Rows != nil, e.Row != nil, e.None, e.Error != ""} {
		if set {
			n++
		}
	}
	return n
}

// Assertion validates compile output, the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Function names the function (plan, diagnostics, trace_count).
	Function string `yaml:"function,omitempty"`

	// Plan fields (plan). Empty fields are not checked.
	Text         string   `yaml:"text,omitempty"`
	Placeholders []string `yaml:"placeholders,omitempty"`
	Shape        string   `yaml:"shape,omitempty"`
	Call         string   `yaml:"call,omitempty"`
	Returns      string   `yaml:"returns,omitempty"`

	// Codes are the expected diagnostic codes, in order (diagnostics).
	Codes []string `yaml:"codes,omitempty"`

	// Functions is the expected call order (trace_order).
	Functions []string `yaml:"functions,omitempty"`

	// Count is the expected number of calls (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect select and check one row (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertPlan        = "plan"
	AssertDiagnostics = "diagnostics"
	AssertTraceOrder  = "trace_order"
	AssertTraceCount  = "trace_count"
	AssertFinalState  = "final_state"
)

// LoadScenario reads a scenario file. Unknown fields are errors, and
// relative spec paths are resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	defer f.Close()

	var s Scenario
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i, spec := range s.Specs {
		if !filepath.IsAbs(spec) {
			s.Specs[i] = filepath.Join(base, spec)
		}
	}

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	switch {
	case s.Name == "":
		return errors.New("name is required")
	case s.Description == "":
		return errors.New("description is required")
	case len(s.Specs) == 0:
		return errors.New("specs list is required and must be non-empty")
	case len(s.Assertions) == 0:
		return errors.New("assertions list is required and must be non-empty")
	}

	for _, spec := range s.Specs {
		if _, err := os.Stat(spec); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("spec file not found: %s", spec)
		}
	}

	for i, step := range s.Setup {
		switch {
		case step.Call == "":
			return fmt.Errorf("setup[%d]: call is required", i)
		case step.Expect != nil:
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}
	for i, step := range s.Flow {
		switch {
		case step.Call == "":
			return fmt.Errorf("flow[%d]: call is required", i)
		case step.Expect != nil && step.Expect.results() > 1:
			return fmt.Errorf("flow[%d].expect: at most one of rows_affected, rows, row, none, error may be set", i)
		}
	}

	for i, a := range s.Assertions {
		if msg := a.problem(); msg != "" {
			return fmt.Errorf("assertions[%d]: %s", i, msg)
		}
	}
	return nil
}

// problem returns what is missing from the assertion, or "".
func (a *Assertion) problem() string {
	need := func(ok bool, what string) string {
		if ok {
			return ""
		}
		return what + " is required for " + a.Type
	}

	switch a.Type {
	case "":
		return "type is required"
	case AssertPlan, AssertDiagnostics:
		return need(a.Function != "", "function")
	case AssertTraceOrder:
		return need(len(a.Functions) > 0, "functions list")
	case AssertTraceCount:
		if a.Count < 0 {
			return "count must be non-negative for trace_count"
		}
		return need(a.Function != "", "function")
	case AssertFinalState:
		if msg := need(a.Table != "", "table"); msg != "" {
			return msg
		}
		return need(len(a.Expect) > 0, "expect")
	}
	return fmt.Sprintf("unknown assertion type %q", a.Type)
}
