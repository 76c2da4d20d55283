package harness

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// identifier restricts final_state table and column names, which are
// spliced into SQL.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError describes a failed assertion. Trace assertions attach
// the call trace.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []CallEvent
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assertion failed: %s\n  Expected: %s\n  Actual: %s\n", e.Type, e.Expected, e.Actual)
	if len(e.Trace) == 0 {
		return b.String()
	}
	b.WriteString("\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&b, "  [%d] %s %v\n", ev.Seq, ev.Function, ev.Args)
	}
	return b.String()
}

func failf(typ, expected, actualFormat string, args ...any) *AssertionError {
	return &AssertionError{Type: typ, Expected: expected, Actual: fmt.Sprintf(actualFormat, args...)}
}

// EvaluateAssertions checks every assertion and returns one message per
// failure. db is the scenario database; final_state assertions fail
// without it.
func EvaluateAssertions(ctx context.Context, db *sql.DB, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertPlan:
			err = assertPlan(result, a)
		case AssertDiagnostics:
			err = assertDiagnostics(result, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			if db == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
				break
			}
			err = assertFinalState(ctx, db, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func compiled(result *Result, typ, name string) (CompiledFunction, error) {
	fn, ok := result.Function(name)
	if !ok {
		return fn, failf(typ, fmt.Sprintf("function %s to be compiled", name), "no such function")
	}
	return fn, nil
}

// assertPlan compares the plan fields the assertion sets. Empty fields are
// not checked.
func assertPlan(result *Result, a Assertion) error {
	fn, err := compiled(result, AssertPlan, a.Function)
	if err != nil {
		return err
	}
	p := fn.Plan
	if p == nil {
		return failf(AssertPlan, "a plan for "+a.Function, "no plan, diagnostics: %v", fn.Diagnostics.Codes())
	}

	var shape string
	if p.Shape != nil {
		shape = p.Shape.String()
	}
	fields := [][3]string{
		{"text", a.Text, p.Query.Text},
		{"shape", a.Shape, shape},
		{"call", a.Call, string(p.Call)},
		{"returns", a.Returns, string(p.Returns)},
	}
	for _, f := range fields {
		name, want, got := f[0], f[1], f[2]
		if want != "" && want != got {
			return failf(AssertPlan, fmt.Sprintf("%s %s = %q", a.Function, name, want), "%s = %q", name, got)
		}
	}

	if a.Placeholders != nil && !slices.Equal(a.Placeholders, p.Query.Placeholders) {
		return failf(AssertPlan, fmt.Sprintf("%s placeholders %v", a.Function, a.Placeholders),
			"placeholders %v", p.Query.Placeholders)
	}
	return nil
}

// assertDiagnostics compares diagnostic codes in order. No codes means the
// function must compile cleanly.
func assertDiagnostics(result *Result, a Assertion) error {
	fn, err := compiled(result, AssertDiagnostics, a.Function)
	if err != nil {
		return err
	}

	got := make([]string, 0, len(fn.Diagnostics))
	for _, d := range fn.Diagnostics {
		got = append(got, string(d.Code))
	}
	if !slices.Equal(a.Codes, got) {
		want := a.Codes
		if want == nil {
			want = []string{}
		}
		return failf(AssertDiagnostics, fmt.Sprintf("%s diagnostics %v", a.Function, want), "%v", fn.Diagnostics.Err())
	}
	return nil
}

// assertTraceOrder checks that the first call of each listed function
// happens in the listed order. Other calls may come in between.
func assertTraceOrder(trace []CallEvent, a Assertion) error {
	first := make(map[string]int64, len(a.Functions))
	for _, ev := range trace {
		if _, seen := first[ev.Function]; !seen {
			first[ev.Function] = ev.Seq
		}
	}

	fail := func(expected, actualFormat string, args ...any) error {
		e := failf(AssertTraceOrder, expected, actualFormat, args...)
		e.Trace = trace
		return e
	}
	for i, fn := range a.Functions {
		seq, ok := first[fn]
		if !ok {
			return fail(fmt.Sprintf("all functions called: %v", a.Functions), "missing call: %s", fn)
		}
		if i == 0 {
			continue
		}
		prev := a.Functions[i-1]
		if first[prev] >= seq {
			return fail(fmt.Sprintf("calls in order: %v", a.Functions),
				"%s (pos %d) should be before %s (pos %d)", prev, first[prev], fn, seq)
		}
	}
	return nil
}

func assertTraceCount(trace []CallEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if ev.Function == a.Function {
			n++
		}
	}
	if n != a.Count {
		e := failf(AssertTraceCount, fmt.Sprintf("%d calls of %s", a.Count, a.Function), "%d calls", n)
		e.Trace = trace
		return e
	}
	return nil
}

// assertFinalState requires exactly one row of Table to match Where and
// that row to hold every Expect value. Columns not in Expect are ignored.
func assertFinalState(ctx context.Context, db *sql.DB, a Assertion) error {
	if !identifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, identifier)
	}
	where, args, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	query := "SELECT * FROM " + a.Table
	if where != "" {
		query += " WHERE " + where
	}
	// Two rows are enough to tell a unique match from an ambiguous one.
	query += " LIMIT 2"

	rows, err := queryRows(ctx, db, query, args)
	if err != nil {
		return failf(AssertFinalState, "query table "+a.Table, "query error: %v", err)
	}

	cond := formatWhereClause(a.Where)
	switch len(rows) {
	case 0:
		return failf(AssertFinalState, fmt.Sprintf("row in %s where %s", a.Table, cond), "row not found")
	case 1:
	default:
		return failf(AssertFinalState, fmt.Sprintf("exactly one row in %s where %s", a.Table, cond),
			"multiple rows matched (assertion is ambiguous)")
	}

	row := rows[0]
	for _, col := range slices.Sorted(maps.Keys(a.Expect)) {
		want := a.Expect[col]
		got, ok := row[col]
		if !ok {
			return failf(AssertFinalState, fmt.Sprintf("field %q to exist", col),
				"field %q not present in result columns: %v", col, slices.Sorted(maps.Keys(row)))
		}
		if !stateValuesEqual(want, got) {
			return failf(AssertFinalState, fmt.Sprintf("field %q = %v (type %T)", col, want, want),
				"field %q = %v (type %T)", col, got, got)
		}
	}
	return nil
}

// queryRows reads every row of a query into column maps.
func queryRows(ctx context.Context, db *sql.DB, query string, args []any) ([]map[string]any, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = vals[i]
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// buildWhereClause returns "a = ? AND b = ?" over the sorted keys of where
// and the matching arguments.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := slices.Sorted(maps.Keys(where))
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		if !identifier.MatchString(k) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", k, identifier)
		}
		conds[i] = k + " = ?"
		args[i] = toSQLValue(where[k])
	}
	return strings.Join(conds, " AND "), args, nil
}

// toSQLValue passes scalar YAML values through and stringifies the rest.
func toSQLValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	}
	return fmt.Sprint(v)
}

func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range slices.Sorted(maps.Keys(where)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a value written in a scenario with one read
// back from the database driver. SQLite reports integers as int64,
// booleans as 0 or 1 and TEXT sometimes as []byte.
func stateValuesEqual(want, got any) bool {
	if b, ok := got.([]byte); ok {
		got = string(b)
	}

	switch w := want.(type) {
	case nil:
		return got == nil
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		switch g := got.(type) {
		case bool:
			return g == w
		case int64:
			return (g != 0) == w
		}
		return false
	case int:
		return stateValuesEqual(int64(w), got)
	case int64:
		switch g := got.(type) {
		case int64:
			return g == w
		case int:
			return int64(g) == w
		case float64:
			return g == float64(w)
		}
		return false
	case float64:
		switch g := got.(type) {
		case float64:
			return g == w
		case int64:
			return float64(g) == w
		}
		return false
	}
	return fmt.Sprint(want) == fmt.Sprint(got)
}

// matchRow reports whether actual is a row holding every expected column.
// A nil expectation also matches an absent column, since NULL columns are
// left out of rows.
func matchRow(actual any, expected map[string]any) bool {
	row, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for col, want := range expected {
		got, present := row[col]
		switch {
		case !present && want == nil:
		case !present, !stateValuesEqual(want, got):
			return false
		}
	}
	return true
}
