// Package classify decides the execution shape of a query function from its
// declared return type.
//
// The declared type must be an error union, Result<T> or Result<T, E>. The
// success type T then selects the shape, first match wins:
//
//	Vec<E>             -> List(E)
//	Option<E>          -> Optional(E)
//	RowStream, RowIter -> Stream
//	()                 -> Execute
//	u64                -> RowCount
//
// Matching compares whole path segments. Type aliases cannot be resolved and
// must be written out in full.
package classify

import (
	"slices"

	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/queryir"
)

const aliasNote = "If you are using a type alias, it can not be resolved.\n" +
	"Replace the alias with the actual type name."

const (
	msgMustReturnResult = "function must return a `Result<_, _>`"

	msgExpectedResult = "expected `Result<_, _>`\n\n" +
		"Note: the function must return a `Result<_, _>`.\n" + aliasNote

	msgExpectedTypeArg = "expected a type argument\n\n" +
		"Note: the function must return a `Result<_, _>`.\n" + aliasNote

	msgUnsupported = "expected `()`, `u64`, `Vec<_>`, `Option<_>`, `RowStream` or `RowIter`\n\n" +
		"Note: the return type determines what kind and how many results the query returns.\n" +
		"Make sure the query returns one of the supported types.\n" + aliasNote
)

// Accepted spellings. A leading "" stands for a path starting with "::".
var (
	listPaths = [][]string{
		{"Vec"},
		{"std", "vec", "Vec"},
		{"alloc", "vec", "Vec"},
		{"", "std", "vec", "Vec"},
		{"", "alloc", "vec", "Vec"},
	}

	optionPaths = [][]string{
		{"Option"},
		{"std", "option", "Option"},
		{"core", "option", "Option"},
		{"", "std", "option", "Option"},
		{"", "core", "option", "Option"},
	}

	streamPaths = [][]string{
		{"RowStream"},
		{"tokio_postgres", "RowStream"},
		{"", "tokio_postgres", "RowStream"},
		{"RowIter"},
		{"postgres", "RowIter"},
		{"", "postgres", "RowIter"},
	}
)

// Classify returns the execution shape for a declared return type. A nil
// type means the function declares no return type at all.
func Classify(t *ir.TypeExpr) (ir.ResultShape, *ir.Diagnostic) {
	ok, d := SuccessType(t)
	if d != nil {
		return nil, d
	}

	if elem := genericElem(ok, listPaths); elem != nil {
		return ir.List{Elem: elem}, nil
	}
	if elem := genericElem(ok, optionPaths); elem != nil {
		return ir.Optional{Elem: elem}, nil
	}
	if path := ok.Unparen().AsPath(); path != nil && pathIsOneOf(path, streamPaths) {
		return ir.Stream{}, nil
	}
	if ok.Unparen().IsUnit() {
		return ir.Execute{}, nil
	}
	if isU64(ok) {
		return ir.RowCount{}, nil
	}

	return nil, &ir.Diagnostic{Code: ir.CodeUnsupportedShape, Message: msgUnsupported, Pos: ok.Pos}
}

// SuccessType unwraps Result<T> or Result<T, E> and returns T.
func SuccessType(t *ir.TypeExpr) (*ir.TypeExpr, *ir.Diagnostic) {
	if t == nil {
		return nil, &ir.Diagnostic{Code: ir.CodeNotAnErrorUnion, Message: msgMustReturnResult}
	}

	path := t.Unparen().AsPath()
	if path == nil {
		return nil, notAnErrorUnion(msgMustReturnResult, t.Pos)
	}
	last := path.Last()
	if last.Name != "Result" || last.Generics == nil {
		return nil, notAnErrorUnion(msgExpectedResult, last.Pos)
	}

	args := last.Args()
	if len(args) == 0 || len(args) > 2 {
		return nil, notAnErrorUnion(msgExpectedResult, last.Pos)
	}
	if args[0].Type == nil {
		return nil, notAnErrorUnion(msgExpectedTypeArg, args[0].Pos)
	}
	return args[0].Type, nil
}

// ErrorType returns E from Result<T, E>, or nil when the declared type
// names no failure type.
func ErrorType(t *ir.TypeExpr) *ir.TypeExpr {
	if _, d := SuccessType(t); d != nil {
		return nil
	}
	args := t.Unparen().AsPath().Last().Args()
	if len(args) != 2 {
		return nil
	}
	return args[1].Type
}

func notAnErrorUnion(msg string, pos queryir.Position) *ir.Diagnostic {
	return &ir.Diagnostic{Code: ir.CodeNotAnErrorUnion, Message: msg, Pos: pos}
}

// genericElem returns the first type argument of t when t is one of paths.
func genericElem(t *ir.TypeExpr, paths [][]string) *ir.TypeExpr {
	path := t.Unparen().AsPath()
	if path == nil || !pathIsOneOf(path, paths) {
		return nil
	}
	args := path.Last().Args()
	if len(args) == 0 {
		return nil
	}
	return args[0].Type
}

func pathIsOneOf(path *ir.PathType, candidates [][]string) bool {
	names := path.Names()
	for _, c := range candidates {
		if slices.Equal(names, c) {
			return true
		}
	}
	return false
}

func isU64(t *ir.TypeExpr) bool {
	path := t.Unparen().AsPath()
	return path != nil && !path.Leading && len(path.Segments) == 1 &&
		path.Segments[0].Name == "u64" && path.Segments[0].Generics == nil
}
