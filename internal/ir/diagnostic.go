package ir

import (
	"errors"
	"fmt"

	"github.com/roach88/inlinesql/internal/queryir"
)

// Code identifies the kind of a Diagnostic.
type Code string

// Diagnostic codes.
const (
	// Template compiler.
	CodeExpectedPlaceholderName Code = "ExpectedPlaceholderName"
	CodeUndelimitedGroup        Code = "UndelimitedGroup"

	// Template lexer.
	CodeUnbalancedGroup Code = queryir.CodeUnbalancedGroup
	CodeUnexpectedInput Code = queryir.CodeUnexpectedInput

	// Type classifier.
	CodeNotAnErrorUnion   Code = "NotAnErrorUnion"
	CodeUnsupportedShape  Code = "UnsupportedShape"
	CodeInvalidTypeSyntax Code = "InvalidTypeSyntax"

	// Plan builder.
	CodeUnknownParameter Code = "UnknownParameter"

	// Spec front ends.
	CodeInvalidSpec Code = "InvalidSpec"
)

// Diagnostic is one compilation problem with the best position available.
type Diagnostic struct {
	Code    Code             `json:"code"`
	Message string           `json:"message"`
	Pos     queryir.Position `json:"pos"`
}

func (d *Diagnostic) Error() string {
	if d.Pos.Line > 0 {
		return fmt.Sprintf("%s: %s: %s", d.Pos, d.Code, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// Diagnostics accumulates problems in the order they were found.
// A nil Diagnostics is empty and ready to use.
type Diagnostics []*Diagnostic

// Add appends a diagnostic.
func (ds *Diagnostics) Add(code Code, pos queryir.Position, msg string) {
	*ds = append(*ds, &Diagnostic{Code: code, Message: msg, Pos: pos})
}

// Addf appends a diagnostic with a formatted message.
func (ds *Diagnostics) Addf(code Code, pos queryir.Position, format string, args ...any) {
	ds.Add(code, pos, fmt.Sprintf(format, args...))
}

// Append appends every diagnostic from other, skipping nils.
func (ds *Diagnostics) Append(other ...*Diagnostic) {
	for _, d := range other {
		if d != nil {
			*ds = append(*ds, d)
		}
	}
}

// Has reports whether any diagnostic carries code.
func (ds Diagnostics) Has(code Code) bool {
	for _, d := range ds {
		if d.Code == code {
			return true
		}
	}
	return false
}

// Codes returns the codes of all diagnostics in order.
func (ds Diagnostics) Codes() []Code {
	codes := make([]Code, len(ds))
	for i, d := range ds {
		codes[i] = d.Code
	}
	return codes
}

// Err returns nil when ds is empty, otherwise an error joining all entries.
// errors.As on the result finds the first *Diagnostic.
func (ds Diagnostics) Err() error {
	if len(ds) == 0 {
		return nil
	}
	errs := make([]error, len(ds))
	for i, d := range ds {
		errs[i] = d
	}
	return errors.Join(errs...)
}

// FromLexErrors converts lexer errors into diagnostics.
func FromLexErrors(errs []*queryir.LexError) Diagnostics {
	var ds Diagnostics
	for _, e := range errs {
		ds.Add(Code(e.Code), e.Pos, e.Message)
	}
	return ds
}
