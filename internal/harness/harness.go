package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/inlinesql/internal/compiler"
	"github.com/roach88/inlinesql/internal/engine"
	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/plan"
	"github.com/roach88/inlinesql/internal/querysql"
)

// Harness executes one scenario.
type Harness struct {
	db     *sql.DB
	engine *engine.Engine
	result *Result
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Compile every function of every spec file
// 2. Create a fresh in-memory database
// 3. Execute setup calls (each must succeed)
// 4. Execute flow calls, checking expectations
// 5. Evaluate assertions
//
// Spec files that cannot be decoded, failing setup calls and calls of
// unknown functions return an error; everything else is reported in the
// result.
func Run(scenario *Scenario, opts ...querysql.Option) (*Result, error) {
	ctx := context.Background()
	result := NewResult()

	for _, path := range scenario.Specs {
		fns, errs := compiler.CompileFile(path)
		if len(errs) > 0 {
			return nil, fmt.Errorf("compile %s: %w", path, errors.Join(errs...))
		}
		for _, fn := range fns {
			p, diags := plan.Compile(fn.Spec, opts...)
			all := append(ir.Diagnostics{}, fn.Diagnostics...)
			all.Append(diags...)
			result.Functions = append(result.Functions, CompiledFunction{
				Function:    fn.Spec.Name,
				Plan:        p,
				Diagnostics: all,
			})
		}
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory database: %w", err)
	}
	defer db.Close()
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	h := &Harness{
		db: db,
		engine: engine.New(
			engine.WithClient(engine.NewSQLClient(db)),
			engine.WithLogger(slog.New(slog.DiscardHandler)),
		),
		result: result,
	}

	for i, step := range scenario.Setup {
		if _, err := h.call(ctx, step); err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, step.Call, err)
		}
	}

	for i, step := range scenario.Flow {
		got, err := h.call(ctx, step)
		if errors.Is(err, errNotCallable) {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Call, err)
		}
		if msg := checkExpect(step.Expect, got, err); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Call, msg))
		}
	}

	for _, msg := range EvaluateAssertions(ctx, db, result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

var errNotCallable = errors.New("function cannot be called")

// call runs one step and records it in the trace.
func (h *Harness) call(ctx context.Context, step CallStep) (any, error) {
	fn, ok := h.result.Function(step.Call)
	if !ok {
		return nil, fmt.Errorf("%w: no function named %q", errNotCallable, step.Call)
	}
	if len(fn.Diagnostics) > 0 {
		return nil, fmt.Errorf("%w: %s has diagnostics: %v", errNotCallable, step.Call, fn.Diagnostics.Err())
	}

	v, err := h.engine.Call(ctx, fn.Plan, step.Args)
	ev := CallEvent{Function: step.Call, Args: step.Args}
	if err != nil {
		ev.Error = err.Error()
		h.result.AddCall(ev)
		return nil, err
	}

	got, err := normalize(ctx, v)
	if err != nil {
		return nil, err
	}
	ev.Result = got
	h.result.AddCall(ev)
	return got, nil
}

// normalize turns engine results into plain values: row counts become
// int64, rows become column maps, streams are drained into lists.
func normalize(ctx context.Context, v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case uint64:
		return int64(val), nil
	case engine.Row:
		return rowMap(val), nil
	case []any:
		rows := make([]any, len(val))
		for i, item := range val {
			r, err := normalize(ctx, item)
			if err != nil {
				return nil, err
			}
			rows[i] = r
		}
		return rows, nil
	case engine.RowStream:
		defer val.Close()
		rows := []any{}
		for {
			row, ok, err := val.Next(ctx)
			if err != nil {
				return nil, fmt.Errorf("read stream: %w", err)
			}
			if !ok {
				return rows, nil
			}
			rows = append(rows, rowMap(row))
		}
	default:
		return val, nil
	}
}

// rowMap converts a row to a column map. SQL NULL columns are left out.
func rowMap(row engine.Row) map[string]any {
	m := make(map[string]any, len(row.Columns))
	for i, c := range row.Columns {
		switch v := row.Values[i].(type) {
		case nil:
		case []byte:
			m[c] = string(v)
		default:
			m[c] = v
		}
	}
	return m
}

// checkExpect compares a call outcome with its expectation. Returns an
// empty string when it matches. Without an expectation the call only has
// to succeed.
func checkExpect(exp *ExpectClause, got any, err error) string {
	if exp == nil {
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
		return ""
	}

	if exp.Error != "" {
		if err == nil {
			return fmt.Sprintf("expected error containing %q, call succeeded", exp.Error)
		}
		if !strings.Contains(err.Error(), exp.Error) {
			return fmt.Sprintf("expected error containing %q, got %q", exp.Error, err.Error())
		}
		return ""
	}
	if err != nil {
		return fmt.Sprintf("unexpected error: %v", err)
	}

	switch {
	case exp.RowsAffected != nil:
		if n, ok := got.(int64); !ok || n != *exp.RowsAffected {
			return fmt.Sprintf("expected rows_affected %d, got %v", *exp.RowsAffected, got)
		}
	case exp.None:
		if got != nil {
			return fmt.Sprintf("expected no row, got %v", got)
		}
	case exp.Row != nil:
		if !matchRow(got, exp.Row) {
			return fmt.Sprintf("expected row matching %v, got %v", exp.Row, got)
		}
	case exp.Rows != nil:
		rows, ok := got.([]any)
		if !ok || len(rows) != len(exp.Rows) {
			return fmt.Sprintf("expected %d rows, got %v", len(exp.Rows), got)
		}
		for i, want := range exp.Rows {
			if !matchRow(rows[i], want) {
				return fmt.Sprintf("row %d: expected %v, got %v", i, want, rows[i])
			}
		}
	}
	return ""
}
