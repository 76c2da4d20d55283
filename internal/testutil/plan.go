package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/plan"
	"github.com/roach88/inlinesql/internal/queryir"
)

// FunctionSpec builds a spec from a template string. The first parameter
// is always the client; params follow it in order.
func FunctionSpec(t testing.TB, name, returns, template string, params ...string) *ir.FunctionSpec {
	t.Helper()

	tokens, errs := queryir.Lex(name+".sql", template)
	require.Empty(t, errs, "template must lex cleanly")

	spec := &ir.FunctionSpec{
		Name:     name,
		Params:   []ir.Param{{Name: ir.DefaultClient}},
		Template: tokens,
		Pos:      queryir.Position{Filename: name + ".cue", Line: 1, Column: 1},
	}
	for _, p := range params {
		spec.Params = append(spec.Params, ir.Param{Name: p})
	}
	if returns != "" {
		spec.Returns = ir.MustParseType(returns)
	}
	return spec
}

// Plan compiles a spec built by FunctionSpec and requires it to be
// diagnostic-free.
func Plan(t testing.TB, name, returns, template string, params ...string) *ir.ExecutionPlan {
	t.Helper()
	p, diags := plan.Compile(FunctionSpec(t, name, returns, template, params...))
	require.Empty(t, diags, "plan must compile cleanly")
	return p
}
