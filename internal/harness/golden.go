package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/inlinesql/internal/ir"
)

// Snapshot renders the compiled plans and the call trace of a result as
// stable text. Plans use ExecutionPlan.Describe; each trace event is one
// line of canonical JSON.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)

	for _, fn := range result.Functions {
		buf.WriteString("\n")
		if fn.Plan != nil {
			buf.WriteString(fn.Plan.Describe())
		} else {
			fmt.Fprintf(&buf, "function: %s\n", fn.Function)
		}
		for _, d := range fn.Diagnostics {
			fmt.Fprintf(&buf, "diagnostic: %s\n", d.Error())
		}
	}

	buf.WriteString("\ntrace:\n")
	for _, ev := range result.Trace {
		line, err := ir.MarshalCanonical(eventMap(ev))
		if err != nil {
			return nil, fmt.Errorf("trace event %d: %w", ev.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

// eventMap converts a CallEvent to a map for canonical JSON serialization.
func eventMap(ev CallEvent) map[string]any {
	m := map[string]any{
		"seq":      ev.Seq,
		"function": ev.Function,
	}
	if len(ev.Args) > 0 {
		m["args"] = ev.Args
	}
	if ev.Result != nil {
		m["result"] = ev.Result
	}
	if ev.Error != "" {
		m["error"] = ev.Error
	}
	return m
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
