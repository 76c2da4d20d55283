package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/queryir"
)

// YAMLError is a YAML spec decoding error with source position.
type YAMLError struct {
	Filename string
	Line     int
	Column   int
	Message  string
}

func (e *YAMLError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Filename, e.Message)
}

type yamlFile struct {
	Functions []yamlFunction `yaml:"functions"`
}

type yamlFunction struct {
	Name    yaml.Node   `yaml:"name"`
	Async   bool        `yaml:"async"`
	Params  []yamlParam `yaml:"params"`
	Returns yaml.Node   `yaml:"returns"`
	Client  string      `yaml:"client"`
	MapRow  string      `yaml:"map_row"`
	MapErr  string      `yaml:"map_err"`
	Query   yaml.Node   `yaml:"query"`
}

type yamlParam struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// CompileYAML decodes function specs from a YAML document:
//
//	functions:
//	  - name: pet_by_name
//	    params: [{name: client}, {name: name, type: "&str"}]
//	    returns: Result<Option<Pet>, Error>
//	    query: |
//	      SELECT * FROM pets WHERE name = #name
//
// A " #" in a plain scalar starts a YAML comment, so queries are usually
// written as block or quoted scalars. Unknown fields are rejected.
func CompileYAML(filename string, src []byte) ([]Function, []error) {
	var file yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, []error{&YAMLError{Filename: filename, Message: err.Error()}}
	}

	var (
		fns  []Function
		errs []error
	)
	for _, yf := range file.Functions {
		fn, err := compileYAMLFunction(filename, yf)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fns = append(fns, fn)
	}
	return fns, errs
}

func compileYAMLFunction(filename string, yf yamlFunction) (Function, error) {
	if yf.Name.Value == "" {
		return Function{}, &YAMLError{Filename: filename, Message: "function name is required"}
	}
	at := nodePos(filename, &yf.Name)

	if yf.Query.Kind != yaml.ScalarNode {
		return Function{}, &YAMLError{
			Filename: filename, Line: at.Line, Column: at.Column,
			Message: fmt.Sprintf("function %s: query is required and must be a string", yf.Name.Value),
		}
	}

	spec := &ir.FunctionSpec{
		Name:   yf.Name.Value,
		Async:  yf.Async,
		Client: yf.Client,
		MapRow: yf.MapRow,
		MapErr: yf.MapErr,
		Pos:    at,
	}

	for _, p := range yf.Params {
		if p.Name == "" {
			return Function{}, &YAMLError{
				Filename: filename, Line: at.Line, Column: at.Column,
				Message: fmt.Sprintf("function %s: parameter name is required", spec.Name),
			}
		}
		if spec.ParamIndex(p.Name) >= 0 {
			return Function{}, &YAMLError{
				Filename: filename, Line: at.Line, Column: at.Column,
				Message: fmt.Sprintf("function %s: duplicate parameter %q", spec.Name, p.Name),
			}
		}
		spec.Params = append(spec.Params, ir.Param{Name: p.Name, Type: p.Type})
	}

	var diags ir.Diagnostics

	if yf.Returns.Kind == yaml.ScalarNode {
		t, d := ir.ParseTypeAt(yf.Returns.Value, scalarStart(filename, &yf.Returns))
		if d != nil {
			diags.Append(d)
		}
		spec.Returns = t
	}

	base := scalarStart(filename, &yf.Query)
	tokens, lexErrs := queryir.Lex(filename, yf.Query.Value)
	spec.Template = queryir.Shift(tokens, base)
	for _, d := range ir.FromLexErrors(lexErrs) {
		d.Pos = queryir.ShiftPos(d.Pos, base)
		diags.Append(d)
	}

	return Function{Spec: spec, Diagnostics: diags}, nil
}

func nodePos(filename string, n *yaml.Node) queryir.Position {
	return queryir.Position{Filename: filename, Line: n.Line, Column: n.Column}
}

// scalarStart returns the position of the first character of a scalar's
// value. Block scalars start on the line after the indicator.
func scalarStart(filename string, n *yaml.Node) queryir.Position {
	pos := nodePos(filename, n)
	switch n.Style {
	case yaml.LiteralStyle, yaml.FoldedStyle:
		pos.Line++
		pos.Column = 1
	case yaml.DoubleQuotedStyle, yaml.SingleQuotedStyle:
		pos.Column++
	}
	return pos
}
