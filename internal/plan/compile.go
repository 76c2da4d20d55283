package plan

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/inlinesql/internal/classify"
	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/querysql"
)

// Compile runs the pipeline for one function spec.
//
// When classification fails the plan is still built with the Execute shape
// so that template and binding problems are reported in the same pass. A
// plan returned with diagnostics must not be executed.
func Compile(spec *ir.FunctionSpec, opts ...querysql.Option) (*ir.ExecutionPlan, ir.Diagnostics) {
	opts = append([]querysql.Option{querysql.WithFallback(spec.Pos)}, opts...)
	compiler := querysql.NewCompiler(opts...)
	q, diags := compiler.Compile(spec.Template)

	shape, d := classify.Classify(spec.Returns)
	if d != nil {
		if d.Pos.Line == 0 {
			d.Pos = spec.Pos
		}
		diags.Append(d)
		shape = ir.Execute{}
	}

	p, buildDiags := Build(shape, q, spec)
	diags.Append(buildDiags...)

	fp, err := ir.Fingerprint(spec, compiler.Markers())
	if err != nil {
		diags.Add(ir.CodeInvalidSpec, spec.Pos, err.Error())
	}
	p.Fingerprint = fp

	return p, diags
}

// Result is the outcome of compiling one spec in a batch.
type Result struct {
	Plan        *ir.ExecutionPlan
	Diagnostics ir.Diagnostics
}

// CompileAll compiles specs concurrently with at most workers goroutines
// (workers <= 0 means no limit). Results are in input order. The only error
// returned is the context's.
func CompileAll(ctx context.Context, specs []*ir.FunctionSpec, workers int, opts ...querysql.Option) ([]Result, error) {
	results := make([]Result, len(specs))

	eg, egctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}

	for i, spec := range specs {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return fmt.Errorf("compile %s: %w", spec.Name, err)
			}
			p, diags := Compile(spec, opts...)
			results[i] = Result{Plan: p, Diagnostics: diags}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
