// Package plan turns a compiled query and a result shape into an execution
// plan, and runs the full per-function pipeline:
//
//	spec.Template -> querysql.Compile  -> CompiledQuery
//	spec.Returns  -> classify.Classify -> ResultShape
//	both          -> Build             -> ExecutionPlan
//
// Every stage reports into one ir.Diagnostics so that all problems in a
// function surface together.
package plan

import (
	"fmt"

	"github.com/roach88/inlinesql/internal/classify"
	"github.com/roach88/inlinesql/internal/ir"
)

// Build creates the execution plan for one function.
//
// Placeholders are bound in slot order by looking up spec parameters by
// name. A placeholder that names no parameter is reported as
// UnknownParameter and bound with ParamIndex -1.
func Build(shape ir.ResultShape, q ir.CompiledQuery, spec *ir.FunctionSpec) (*ir.ExecutionPlan, ir.Diagnostics) {
	var diags ir.Diagnostics

	p := &ir.ExecutionPlan{
		Function: spec.Name,
		Async:    spec.Async,
		Client:   spec.ClientName(),
		Query:    q,
		Shape:    shape,
		Bindings: make([]ir.Binding, 0, len(q.Placeholders)),
		Errors:   errorConversion(spec),
	}

	for i, name := range q.Placeholders {
		b := ir.Binding{Slot: i + 1, Name: name, ParamIndex: spec.ParamIndex(name)}
		if b.ParamIndex < 0 {
			pos := spec.Pos
			if i < len(q.Positions) && q.Positions[i].Line > 0 {
				pos = q.Positions[i]
			}
			diags.Addf(ir.CodeUnknownParameter, pos, "query references %q, which is not a parameter of %s", name, spec.Name)
		} else {
			b.Type = spec.Params[b.ParamIndex].Type
		}
		p.Bindings = append(p.Bindings, b)
	}

	switch s := shape.(type) {
	case ir.Execute:
		p.Call, p.Returns = ir.OpExecute, ir.ReturnUnit
		p.Rows = ir.RowConversion{Strategy: ir.RowsNone}
	case ir.RowCount:
		p.Call, p.Returns = ir.OpExecute, ir.ReturnRowCount
		p.Rows = ir.RowConversion{Strategy: ir.RowsNone}
	case ir.List:
		p.Call, p.Returns = ir.OpQueryRows, ir.ReturnCollection
		p.Rows = rowConversion(spec, s.Elem)
	case ir.Optional:
		p.Call, p.Returns = ir.OpQueryOptional, ir.ReturnOptional
		p.Rows = rowConversion(spec, s.Elem)
	case ir.One:
		p.Call, p.Returns = ir.OpQueryOne, ir.ReturnValue
		p.Rows = rowConversion(spec, s.Elem)
	case ir.Stream:
		p.Call, p.Returns = ir.OpQueryStream, ir.ReturnStream
		p.Rows = ir.RowConversion{Strategy: ir.RowsNone}
	default:
		diags.Add(ir.CodeUnsupportedShape, spec.Pos, fmt.Sprintf("unhandled result shape %v", shape))
	}

	return p, diags
}

func rowConversion(spec *ir.FunctionSpec, elem *ir.TypeExpr) ir.RowConversion {
	if spec.MapRow != "" {
		return ir.RowConversion{Strategy: ir.RowsMapper, Mapper: spec.MapRow, Target: elem.String()}
	}
	return ir.RowConversion{Strategy: ir.RowsDefault, Target: elem.String()}
}

func errorConversion(spec *ir.FunctionSpec) ir.ErrorConversion {
	target := classify.ErrorType(spec.Returns).String()
	if spec.MapErr != "" {
		return ir.ErrorConversion{Strategy: ir.ErrorsMapper, Mapper: spec.MapErr, Target: target}
	}
	return ir.ErrorConversion{Strategy: ir.ErrorsWiden, Target: target}
}
