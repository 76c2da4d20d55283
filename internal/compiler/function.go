package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/cuecontext"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/queryir"
)

// Function is one decoded function spec together with the template and
// type-syntax problems found while decoding it. Structural problems (a
// missing query, a field of the wrong kind) are returned as errors instead.
type Function struct {
	Spec        *ir.FunctionSpec
	Diagnostics ir.Diagnostics
}

// functionSchema constrains every entry under the top-level function field.
const functionSchema = `
#Param: {
	name:  string
	type?: string
}

#Function: {
	async?:   bool
	params?:  [...#Param]
	returns?: string
	client?:  string
	map_row?: string
	map_err?: string
	query:    string
}

function?: [string]: #Function
`

// CompileCUE compiles CUE source and decodes every function under the
// top-level function field, e.g.
//
//	function: pet_by_name: {
//		params: [{name: "client"}, {name: "name", type: "&str"}]
//		returns: "Result<Option<Pet>, Error>"
//		query:   "SELECT * FROM pets WHERE name = #name"
//	}
func CompileCUE(filename string, src []byte) ([]Function, []error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, []error{cueError(err)}
	}
	return CompileFunctions(v)
}

// CompileFunctions decodes every entry of the function field of v, checking
// it against the function schema first. Errors are collected per function;
// functions that decode cleanly are still returned.
func CompileFunctions(v cue.Value) ([]Function, []error) {
	fnVal := v.LookupPath(cue.ParsePath("function"))
	if !fnVal.Exists() {
		return nil, nil
	}

	schema := v.Context().CompileString(functionSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{fmt.Errorf("function schema: %w", err)}
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return nil, []error{cueError(err)}
	}

	iter, err := fnVal.Fields()
	if err != nil {
		return nil, []error{cueError(err)}
	}

	var (
		fns  []Function
		errs []error
	)
	for iter.Next() {
		fn, err := CompileFunction(iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fns = append(fns, fn)
	}
	return fns, errs
}

// CompileFunction decodes a single function value. The function name is
// taken from the value's path label.
func CompileFunction(v cue.Value) (Function, error) {
	if err := v.Err(); err != nil {
		return Function{}, cueError(err)
	}

	spec := &ir.FunctionSpec{Pos: position(v.Pos())}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	var diags ir.Diagnostics

	if err := optionalBool(v, "async", &spec.Async); err != nil {
		return Function{}, err
	}
	if err := optionalString(v, "client", &spec.Client); err != nil {
		return Function{}, err
	}
	if err := optionalString(v, "map_row", &spec.MapRow); err != nil {
		return Function{}, err
	}
	if err := optionalString(v, "map_err", &spec.MapErr); err != nil {
		return Function{}, err
	}

	params, err := parseParams(v)
	if err != nil {
		return Function{}, err
	}
	spec.Params = params

	retVal := v.LookupPath(cue.ParsePath("returns"))
	if retVal.Exists() {
		src, err := retVal.String()
		if err != nil {
			return Function{}, cueError(err)
		}
		t, d := ir.ParseTypeAt(src, contentStart(retVal))
		if d != nil {
			diags.Append(d)
		}
		spec.Returns = t
	}

	queryVal := v.LookupPath(cue.ParsePath("query"))
	if !queryVal.Exists() {
		return Function{}, fieldError("query", v.Pos(), "query is required")
	}
	query, err := queryVal.String()
	if err != nil {
		return Function{}, cueError(err)
	}

	base := contentStart(queryVal)
	tokens, lexErrs := queryir.Lex(base.Filename, query)
	spec.Template = queryir.Shift(tokens, base)
	for _, d := range ir.FromLexErrors(lexErrs) {
		d.Pos = queryir.ShiftPos(d.Pos, base)
		diags.Append(d)
	}

	return Function{Spec: spec, Diagnostics: diags}, nil
}

// parseParams decodes the optional params list.
func parseParams(v cue.Value) ([]ir.Param, error) {
	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if !paramsVal.Exists() {
		return nil, nil
	}

	iter, err := paramsVal.List()
	if err != nil {
		return nil, cueError(err)
	}

	var params []ir.Param
	for iter.Next() {
		pv := iter.Value()
		var p ir.Param

		nameVal := pv.LookupPath(cue.ParsePath("name"))
		if !nameVal.Exists() {
			return nil, fieldError("params", pv.Pos(), "parameter name is required")
		}
		if p.Name, err = nameVal.String(); err != nil {
			return nil, cueError(err)
		}
		if err := optionalString(pv, "type", &p.Type); err != nil {
			return nil, err
		}

		for _, seen := range params {
			if norm.NFC.String(seen.Name) == norm.NFC.String(p.Name) {
				return nil, fieldError("params", nameVal.Pos(), "duplicate parameter %q", p.Name)
			}
		}
		params = append(params, p)
	}
	return params, nil
}

func optionalString(v cue.Value, field string, dst *string) error {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil
	}
	s, err := fv.String()
	if err != nil {
		return cueError(err)
	}
	*dst = s
	return nil
}

func optionalBool(v cue.Value, field string, dst *bool) error {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil
	}
	b, err := fv.Bool()
	if err != nil {
		return cueError(err)
	}
	*dst = b
	return nil
}

// contentStart returns the position of the first character inside a string
// literal. Multi-line strings start on the line after the opening quotes;
// their columns are relative to the text with indentation removed.
func contentStart(v cue.Value) queryir.Position {
	pos := position(v.Pos())
	if pos.Line == 0 {
		return pos
	}

	if lit, ok := v.Source().(*ast.BasicLit); ok {
		for _, quote := range []string{`"""`, "'''", `#"""`} {
			if strings.HasPrefix(lit.Value, quote) {
				return queryir.Position{Filename: pos.Filename, Line: pos.Line + 1, Column: 1}
			}
		}
	}

	pos.Column++
	pos.Offset++
	return pos
}
