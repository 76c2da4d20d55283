package ir

import (
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/inlinesql/internal/queryir"
)

// DefaultClient is the parameter name that supplies the connection handle
// when a function spec does not name one.
const DefaultClient = "client"

// FunctionSpec describes one query function as written by the user.
// The compiler only reads it.
type FunctionSpec struct {
	// Name is the function name.
	Name string

	// Async is passed through to the plan untouched. Code generators use it
	// to decide whether call sites suspend; the compiler ignores it.
	Async bool

	// Params are the declared parameters in declaration order.
	Params []Param

	// Returns is the declared return type; nil when none was declared.
	Returns *TypeExpr

	// Client names the parameter that supplies the connection handle.
	// Empty means DefaultClient.
	Client string

	// MapRow and MapErr name user-supplied conversions. Empty means the
	// default conversion is used.
	MapRow string
	MapErr string

	// Template is the query body.
	Template []queryir.Token

	// Pos is the position of the function declaration.
	Pos queryir.Position
}

// Param is a declared function parameter.
type Param struct {
	Name string `json:"name"`
	// Type is a free-form type hint; it is carried into bindings as written.
	Type string `json:"type,omitempty"`
}

// ClientName returns the connection parameter name, applying the default.
func (s *FunctionSpec) ClientName() string {
	if s.Client == "" {
		return DefaultClient
	}
	return s.Client
}

// ParamIndex returns the index of the named parameter, or -1. Names are
// compared in NFC, so composed and decomposed spellings match.
func (s *FunctionSpec) ParamIndex(name string) int {
	name = norm.NFC.String(name)
	for i, p := range s.Params {
		if norm.NFC.String(p.Name) == name {
			return i
		}
	}
	return -1
}
