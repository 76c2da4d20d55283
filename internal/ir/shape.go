package ir

import "fmt"

// ShapeKind names a ResultShape variant.
type ShapeKind string

const (
	ShapeExecute  ShapeKind = "execute"
	ShapeRowCount ShapeKind = "row_count"
	ShapeList     ShapeKind = "list"
	ShapeOptional ShapeKind = "optional"
	ShapeOne      ShapeKind = "one"
	ShapeStream   ShapeKind = "stream"
)

// ResultShape is how a query's results map to a function's return value.
//
// This is a sealed interface - only the six types in this file implement it.
// Consumers use a type switch with a default case that reports the shape as
// unhandled.
type ResultShape interface {
	Kind() ShapeKind
	String() string

	// ElemType returns the row element type, or nil for row-less shapes.
	ElemType() *TypeExpr

	resultShape() // Marker method - seals interface to this package
}

// Execute runs the query and discards the affected row count.
type Execute struct{}

// RowCount runs the query and returns the affected row count.
type RowCount struct{}

// List converts every returned row into Elem.
type List struct{ Elem *TypeExpr }

// Optional converts the row, if any, into Elem.
type Optional struct{ Elem *TypeExpr }

// One converts exactly one row into Elem.
type One struct{ Elem *TypeExpr }

// Stream returns the raw row stream.
type Stream struct{}

func (Execute) Kind() ShapeKind  { return ShapeExecute }
func (RowCount) Kind() ShapeKind { return ShapeRowCount }
func (List) Kind() ShapeKind     { return ShapeList }
func (Optional) Kind() ShapeKind { return ShapeOptional }
func (One) Kind() ShapeKind      { return ShapeOne }
func (Stream) Kind() ShapeKind   { return ShapeStream }

func (Execute) ElemType() *TypeExpr    { return nil }
func (RowCount) ElemType() *TypeExpr   { return nil }
func (s List) ElemType() *TypeExpr     { return s.Elem }
func (s Optional) ElemType() *TypeExpr { return s.Elem }
func (s One) ElemType() *TypeExpr      { return s.Elem }
func (Stream) ElemType() *TypeExpr     { return nil }

func (Execute) String() string    { return "Execute" }
func (RowCount) String() string   { return "RowCount" }
func (s List) String() string     { return fmt.Sprintf("List(%s)", s.Elem) }
func (s Optional) String() string { return fmt.Sprintf("Optional(%s)", s.Elem) }
func (s One) String() string      { return fmt.Sprintf("One(%s)", s.Elem) }
func (Stream) String() string     { return "Stream" }

func (Execute) resultShape()  {}
func (RowCount) resultShape() {}
func (List) resultShape()     {}
func (Optional) resultShape() {}
func (One) resultShape()      {}
func (Stream) resultShape()   {}

// ShapeOf rebuilds a shape from its kind and element type. Unknown kinds
// return an error.
func ShapeOf(kind ShapeKind, elem *TypeExpr) (ResultShape, error) {
	switch kind {
	case ShapeExecute:
		return Execute{}, nil
	case ShapeRowCount:
		return RowCount{}, nil
	case ShapeList:
		return List{Elem: elem}, nil
	case ShapeOptional:
		return Optional{Elem: elem}, nil
	case ShapeOne:
		return One{Elem: elem}, nil
	case ShapeStream:
		return Stream{}, nil
	default:
		return nil, fmt.Errorf("unknown result shape %q", kind)
	}
}
