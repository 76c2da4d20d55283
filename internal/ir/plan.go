package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/inlinesql/internal/queryir"
)

// CompiledQuery is a template lowered to positional placeholders.
//
// Slot i ($i) binds Placeholders[i-1]. Slots are contiguous from 1 and
// assigned in first-occurrence order; a name appears at most once.
type CompiledQuery struct {
	Text         string   `json:"text"`
	Placeholders []string `json:"placeholders"`

	// Positions holds the first occurrence of each placeholder.
	Positions []queryir.Position `json:"-"`
}

// Slot returns the 1-based slot bound to name, or 0.
func (q CompiledQuery) Slot(name string) int {
	for i, p := range q.Placeholders {
		if p == name {
			return i + 1
		}
	}
	return 0
}

// ClientOp is the client operation a plan invokes.
type ClientOp string

const (
	OpExecute       ClientOp = "execute"
	OpQueryRows     ClientOp = "query_rows"
	OpQueryOptional ClientOp = "query_optional"
	OpQueryOne      ClientOp = "query_one"
	OpQueryStream   ClientOp = "query_stream"
)

// ReturnKind is what the realized function hands back to its caller.
type ReturnKind string

const (
	ReturnUnit       ReturnKind = "unit"
	ReturnRowCount   ReturnKind = "row_count"
	ReturnCollection ReturnKind = "collection"
	ReturnOptional   ReturnKind = "optional"
	ReturnValue      ReturnKind = "value"
	ReturnStream     ReturnKind = "stream"
)

// RowStrategy selects how raw rows become values.
type RowStrategy string

const (
	// RowsNone means the shape carries no rows.
	RowsNone RowStrategy = "none"
	// RowsMapper calls the named row mapper; its result is propagated as is.
	RowsMapper RowStrategy = "mapper"
	// RowsDefault converts structurally into Target; failures go through
	// the plan's error conversion.
	RowsDefault RowStrategy = "default"
)

// ErrorStrategy selects how failures become the declared failure type.
type ErrorStrategy string

const (
	// ErrorsMapper calls the named error mapper.
	ErrorsMapper ErrorStrategy = "mapper"
	// ErrorsWiden wraps the failure without changing it.
	ErrorsWiden ErrorStrategy = "widen"
)

// Binding maps a positional slot to a declared parameter.
type Binding struct {
	Slot int    `json:"slot"`
	Name string `json:"name"`
	// ParamIndex is the index into FunctionSpec.Params, or -1 when no
	// parameter carries Name.
	ParamIndex int    `json:"param_index"`
	Type       string `json:"type,omitempty"`
}

// RowConversion describes row handling.
type RowConversion struct {
	Strategy RowStrategy `json:"strategy"`
	Mapper   string      `json:"mapper,omitempty"`
	Target   string      `json:"target,omitempty"`
}

// ErrorConversion describes failure handling. Failures always propagate
// immediately.
type ErrorConversion struct {
	Strategy ErrorStrategy `json:"strategy"`
	Mapper   string        `json:"mapper,omitempty"`
	Target   string        `json:"target,omitempty"`
}

// ExecutionPlan is everything an executor needs to realize one function.
type ExecutionPlan struct {
	Function    string          `json:"function"`
	Async       bool            `json:"async"`
	Client      string          `json:"client"`
	Query       CompiledQuery   `json:"query"`
	Shape       ResultShape     `json:"-"`
	Bindings    []Binding       `json:"bindings"`
	Call        ClientOp        `json:"call"`
	Returns     ReturnKind      `json:"returns"`
	Rows        RowConversion   `json:"rows"`
	Errors      ErrorConversion `json:"errors"`
	Fingerprint string          `json:"fingerprint,omitempty"`
}

type shapeJSON struct {
	Kind ShapeKind `json:"kind"`
	Elem string    `json:"elem,omitempty"`
}

// MarshalJSON encodes the shape as {"kind": ..., "elem": ...}.
func (p *ExecutionPlan) MarshalJSON() ([]byte, error) {
	type plain ExecutionPlan
	out := struct {
		*plain
		Shape *shapeJSON `json:"shape"`
	}{plain: (*plain)(p)}
	if p.Shape != nil {
		out.Shape = &shapeJSON{Kind: p.Shape.Kind(), Elem: p.Shape.ElemType().String()}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON restores the plan, reparsing the shape's element type.
func (p *ExecutionPlan) UnmarshalJSON(data []byte) error {
	type plain ExecutionPlan
	in := struct {
		*plain
		Shape *shapeJSON `json:"shape"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Shape == nil {
		p.Shape = nil
		return nil
	}

	var elem *TypeExpr
	if in.Shape.Elem != "" {
		t, d := ParseType("", in.Shape.Elem)
		if d != nil {
			return fmt.Errorf("shape element %q: %w", in.Shape.Elem, d)
		}
		elem = t
	}
	shape, err := ShapeOf(in.Shape.Kind, elem)
	if err != nil {
		return err
	}
	p.Shape = shape
	return nil
}

// Describe renders the plan as stable, human-readable text.
func (p *ExecutionPlan) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function: %s\n", p.Function)
	fmt.Fprintf(&sb, "async:    %t\n", p.Async)
	fmt.Fprintf(&sb, "client:   %s\n", p.Client)
	fmt.Fprintf(&sb, "query:    %s\n", p.Query.Text)
	if p.Shape != nil {
		fmt.Fprintf(&sb, "shape:    %s\n", p.Shape)
	}
	fmt.Fprintf(&sb, "call:     %s\n", p.Call)
	fmt.Fprintf(&sb, "returns:  %s\n", p.Returns)

	sb.WriteString("bindings:\n")
	if len(p.Bindings) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, b := range p.Bindings {
		fmt.Fprintf(&sb, "  $%d -> %s", b.Slot, b.Name)
		if b.ParamIndex < 0 {
			sb.WriteString(" (unknown)")
		} else if b.Type != "" {
			fmt.Fprintf(&sb, ": %s", b.Type)
		}
		sb.WriteByte('\n')
	}

	fmt.Fprintf(&sb, "rows:     %s", p.Rows.Strategy)
	switch p.Rows.Strategy {
	case RowsMapper:
		fmt.Fprintf(&sb, " %s", p.Rows.Mapper)
	case RowsDefault:
		fmt.Fprintf(&sb, " -> %s", p.Rows.Target)
	}
	sb.WriteByte('\n')

	fmt.Fprintf(&sb, "errors:   %s", p.Errors.Strategy)
	switch p.Errors.Strategy {
	case ErrorsMapper:
		fmt.Fprintf(&sb, " %s", p.Errors.Mapper)
	case ErrorsWiden:
		if p.Errors.Target != "" {
			fmt.Fprintf(&sb, " -> %s", p.Errors.Target)
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}
