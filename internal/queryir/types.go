package queryir

import (
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"
)

// Position identifies a location in template source.
type Position = lexer.Position

// Token is one node of a template token tree.
//
// This is a sealed interface - only types in this package implement it.
type Token interface {
	// Pos returns the position of the token's first character.
	Pos() Position

	tokenNode() // Marker method - seals interface to this package
}

// Delimiter is the bracket kind of a Group.
type Delimiter int

const (
	// DelimNone marks a group without brackets. The compiler rejects it.
	DelimNone Delimiter = iota
	DelimParen
	DelimBrace
	DelimBracket
)

// Open returns the opening bracket character, or false for DelimNone.
func (d Delimiter) Open() (rune, bool) {
	switch d {
	case DelimParen:
		return '(', true
	case DelimBrace:
		return '{', true
	case DelimBracket:
		return '[', true
	default:
		return 0, false
	}
}

// Close returns the closing bracket character, or false for DelimNone.
func (d Delimiter) Close() (rune, bool) {
	switch d {
	case DelimParen:
		return ')', true
	case DelimBrace:
		return '}', true
	case DelimBracket:
		return ']', true
	default:
		return 0, false
	}
}

func (d Delimiter) String() string {
	switch d {
	case DelimNone:
		return "none"
	case DelimParen:
		return "paren"
	case DelimBrace:
		return "brace"
	case DelimBracket:
		return "bracket"
	default:
		return fmt.Sprintf("Delimiter(%d)", int(d))
	}
}

// delimiterFor maps an opening or closing bracket to its Delimiter.
func delimiterFor(c string) Delimiter {
	switch c {
	case "(", ")":
		return DelimParen
	case "{", "}":
		return DelimBrace
	case "[", "]":
		return DelimBracket
	default:
		return DelimNone
	}
}

// Ident is an identifier-shaped atom. Keywords are identifiers too.
type Ident struct {
	Name string
	At   Position
}

func (t Ident) Pos() Position { return t.At }
func (Ident) tokenNode() {}

// Literal is a string, quoted identifier or number, kept exactly as written
// (including quotes).
type Literal struct {
	Text string
	At   Position
}

func (t Literal) Pos() Position { return t.At }
func (Literal) tokenNode() {}

// Punct is a single punctuation character.
type Punct struct {
	Char rune
	At   Position
}

func (t Punct) Pos() Position { return t.At }
func (Punct) tokenNode() {}

// Group is a bracketed token sequence.
//
// At is the position of the opening bracket, End the position of the
// closing one (zero when the group was not built by Lex).
type Group struct {
	Delim  Delimiter
	Tokens []Token
	At     Position
	End    Position
}

func (t Group) Pos() Position { return t.At }
func (Group) tokenNode() {}

// Marker is a parameter reference resolved by a front end. Templates lexed
// from text never contain markers; the marker character followed by an
// identifier is resolved by the compiler instead.
type Marker struct {
	Name string
	At   Position
}

func (t Marker) Pos() Position { return t.At }
func (Marker) tokenNode() {}
