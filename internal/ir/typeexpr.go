package ir

import (
	"errors"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/roach88/inlinesql/internal/queryir"
)

// TypeExpr is a declared type as written in a function signature.
//
// Exactly one of Ref, Tuple, Slice or Path is set. Parenthesized types are
// one-element tuples; Unparen strips them.
type TypeExpr struct {
	Pos   lexer.Position
	Ref   *RefType   `  @@`
	Tuple *TupleType `| @@`
	Slice *SliceType `| @@`
	Path  *PathType  `| @@`
}

// RefType is a borrowed type: &T, &'a T or &mut T.
type RefType struct {
	Amp      string    `@"&"`
	Lifetime string    `@Lifetime?`
	Mut      bool      `@"mut"?`
	Elem     *TypeExpr `@@`
}

// TupleType is (), (T) or (A, B, ...).
type TupleType struct {
	Open  string      `@"("`
	Elems []*TypeExpr `( @@ ( "," @@ )* )? ")"`
}

// SliceType is [T].
type SliceType struct {
	Open string    `@"["`
	Elem *TypeExpr `@@ "]"`
}

// PathType is a possibly qualified type name such as ::std::vec::Vec<T>.
type PathType struct {
	Leading  bool       `@"::"?`
	Segments []*Segment `@@ ( "::" @@ )*`
}

// Segment is one path component with optional generic arguments.
type Segment struct {
	Pos      lexer.Position
	Name     string    `@Ident`
	Generics *Generics `@@?`
}

// Generics is an angle-bracketed argument list.
type Generics struct {
	Open string        `@"<"`
	Args []*GenericArg `( @@ ( "," @@ )* )? ">"`
}

// GenericArg is either a lifetime or a type.
type GenericArg struct {
	Pos      lexer.Position
	Lifetime string    `  @Lifetime`
	Type     *TypeExpr `| @@`
}

var typeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Lifetime", Pattern: `'[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "PathSep", Pattern: `::`},
	{Name: "Punct", Pattern: `[<>(),&\[\]]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var typeParser = participle.MustBuild[TypeExpr](
	participle.Lexer(typeLexer),
	participle.Elide("Whitespace"),
)

// ParseType parses a declared type. Syntax errors are reported as an
// InvalidTypeSyntax diagnostic.
func ParseType(filename, src string) (*TypeExpr, *Diagnostic) {
	t, err := typeParser.ParseString(filename, src)
	if err != nil {
		d := &Diagnostic{Code: CodeInvalidTypeSyntax, Message: err.Error()}
		var perr participle.Error
		if errors.As(err, &perr) {
			d.Message = perr.Message()
			d.Pos = perr.Position()
		}
		return nil, d
	}
	return t, nil
}

// ParseTypeAt parses a declared type that starts at base in a larger
// document and re-anchors every position accordingly.
func ParseTypeAt(src string, base queryir.Position) (*TypeExpr, *Diagnostic) {
	t, d := ParseType(base.Filename, src)
	if d != nil {
		if d.Pos.Line == 0 {
			d.Pos = base
		} else {
			d.Pos = queryir.ShiftPos(d.Pos, base)
		}
		return nil, d
	}
	t.walk(func(p *lexer.Position) { *p = queryir.ShiftPos(*p, base) })
	return t, nil
}

// MustParseType is like ParseType but panics on error.
// Use only in tests or for types known to be valid.
func MustParseType(src string) *TypeExpr {
	t, d := ParseType("", src)
	if d != nil {
		panic(d)
	}
	return t
}

func (t *TypeExpr) walk(fn func(*lexer.Position)) {
	if t == nil {
		return
	}
	fn(&t.Pos)
	switch {
	case t.Ref != nil:
		t.Ref.Elem.walk(fn)
	case t.Tuple != nil:
		for _, e := range t.Tuple.Elems {
			e.walk(fn)
		}
	case t.Slice != nil:
		t.Slice.Elem.walk(fn)
	case t.Path != nil:
		for _, seg := range t.Path.Segments {
			fn(&seg.Pos)
			if seg.Generics == nil {
				continue
			}
			for _, arg := range seg.Generics.Args {
				fn(&arg.Pos)
				arg.Type.walk(fn)
			}
		}
	}
}

// Unparen strips redundant parentheses: ((T)) is T. The unit type () and
// tuples of two or more elements are returned as is.
func (t *TypeExpr) Unparen() *TypeExpr {
	for t != nil && t.Tuple != nil && len(t.Tuple.Elems) == 1 {
		t = t.Tuple.Elems[0]
	}
	return t
}

// IsUnit reports whether t is the empty tuple ().
func (t *TypeExpr) IsUnit() bool {
	return t != nil && t.Tuple != nil && len(t.Tuple.Elems) == 0
}

// AsPath returns the path form of t, or nil when t is not a path.
func (t *TypeExpr) AsPath() *PathType {
	if t == nil {
		return nil
	}
	return t.Path
}

// Last returns the final segment of the path.
func (p *PathType) Last() *Segment {
	if p == nil || len(p.Segments) == 0 {
		return nil
	}
	return p.Segments[len(p.Segments)-1]
}

// Names returns the segment names, with a leading "" when the path starts
// with "::". ::std::vec::Vec yields ["", "std", "vec", "Vec"].
func (p *PathType) Names() []string {
	names := make([]string, 0, len(p.Segments)+1)
	if p.Leading {
		names = append(names, "")
	}
	for _, seg := range p.Segments {
		names = append(names, seg.Name)
	}
	return names
}

// Args returns the generic arguments of the segment, or nil.
func (s *Segment) Args() []*GenericArg {
	if s == nil || s.Generics == nil {
		return nil
	}
	return s.Generics.Args
}

// String renders t in normalized spelling: single spaces after commas,
// no spaces inside brackets.
func (t *TypeExpr) String() string {
	if t == nil {
		return ""
	}
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t *TypeExpr) write(sb *strings.Builder) {
	switch {
	case t.Ref != nil:
		sb.WriteByte('&')
		if t.Ref.Lifetime != "" {
			sb.WriteString(t.Ref.Lifetime)
			sb.WriteByte(' ')
		}
		if t.Ref.Mut {
			sb.WriteString("mut ")
		}
		t.Ref.Elem.write(sb)
	case t.Tuple != nil:
		sb.WriteByte('(')
		for i, e := range t.Tuple.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.write(sb)
		}
		sb.WriteByte(')')
	case t.Slice != nil:
		sb.WriteByte('[')
		t.Slice.Elem.write(sb)
		sb.WriteByte(']')
	case t.Path != nil:
		if t.Path.Leading {
			sb.WriteString("::")
		}
		for i, seg := range t.Path.Segments {
			if i > 0 {
				sb.WriteString("::")
			}
			sb.WriteString(seg.Name)
			if seg.Generics == nil {
				continue
			}
			sb.WriteByte('<')
			for j, arg := range seg.Generics.Args {
				if j > 0 {
					sb.WriteString(", ")
				}
				if arg.Type != nil {
					arg.Type.write(sb)
				} else {
					sb.WriteString(arg.Lifetime)
				}
			}
			sb.WriteByte('>')
		}
	}
}
