package queryir

import (
	"errors"
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"
)

// Lex error codes.
const (
	CodeUnbalancedGroup = "UnbalancedGroup"
	CodeUnexpectedInput = "UnexpectedInput"
)

// LexError reports a problem found while building the token tree.
type LexError struct {
	Code    string
	Message string
	Pos     Position
}

func (e *LexError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// TemplateLexer tokenizes template text. Comments and whitespace are
// dropped by Lex; only token boundaries reach the compiler.
var TemplateLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "LineComment", Pattern: `--[^\n]*`},
	{Name: "BlockComment", Pattern: `/\*(?:[^*]|\*+[^*/])*\*+/`},
	{Name: "String", Pattern: `'(?:''|[^'])*'`},
	{Name: "QuotedIdent", Pattern: `"(?:""|[^"])*"`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?(?:[eE][+-]?\d+)?`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{M}\p{N}\p{Pc}]*`},
	{Name: "Open", Pattern: `[(\[{]`},
	{Name: "Close", Pattern: `[)\]}]`},
	{Name: "Punct", Pattern: `[^\s\p{L}\p{N}_()\[\]{}'"]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var (
	symbols = TemplateLexer.Symbols()

	tokString      = symbols["String"]
	tokQuotedIdent = symbols["QuotedIdent"]
	tokNumber      = symbols["Number"]
	tokIdent       = symbols["Ident"]
	tokOpen        = symbols["Open"]
	tokClose       = symbols["Close"]
	tokPunct       = symbols["Punct"]
)

// Lex tokenizes src and nests bracketed runs into Groups.
//
// Lex never stops at the first problem: a stray closing bracket is dropped,
// a mismatched one closes the innermost group, and groups left open at the
// end are closed implicitly. Each case is reported as a LexError and the
// tree built so far is returned alongside. Input the lexer cannot tokenize
// (an unterminated string, for example) ends lexing at that point.
func Lex(filename, src string) ([]Token, []*LexError) {
	var errs []*LexError

	lex, err := TemplateLexer.LexString(filename, src)
	if err != nil {
		return nil, []*LexError{toLexError(err)}
	}

	b := newTreeBuilder()
	for {
		tok, err := lex.Next()
		if err != nil {
			errs = append(errs, toLexError(err))
			break
		}
		if tok.EOF() {
			break
		}

		switch tok.Type {
		case tokIdent:
			b.add(Ident{Name: tok.Value, At: tok.Pos})
		case tokString, tokQuotedIdent, tokNumber:
			b.add(Literal{Text: tok.Value, At: tok.Pos})
		case tokPunct:
			b.add(Punct{Char: []rune(tok.Value)[0], At: tok.Pos})
		case tokOpen:
			b.open(delimiterFor(tok.Value), tok.Pos)
		case tokClose:
			if lexErr := b.close(delimiterFor(tok.Value), tok.Value, tok.Pos); lexErr != nil {
				errs = append(errs, lexErr)
			}
		default:
			// Whitespace and comments.
		}
	}

	errs = append(errs, b.finish()...)
	return b.root(), errs
}

// toLexError converts a participle lexer error into a LexError.
func toLexError(err error) *LexError {
	var lerr *lexer.Error
	if errors.As(err, &lerr) {
		return &LexError{Code: CodeUnexpectedInput, Message: lerr.Msg, Pos: lerr.Pos}
	}
	return &LexError{Code: CodeUnexpectedInput, Message: err.Error()}
}

// treeBuilder nests tokens into groups using an explicit stack.
// stack[0] is the root sequence and never has a delimiter.
type treeBuilder struct {
	stack []*Group
}

func newTreeBuilder() *treeBuilder {
	return &treeBuilder{stack: []*Group{{Delim: DelimNone}}}
}

func (b *treeBuilder) top() *Group {
	return b.stack[len(b.stack)-1]
}

func (b *treeBuilder) add(t Token) {
	top := b.top()
	top.Tokens = append(top.Tokens, t)
}

func (b *treeBuilder) open(d Delimiter, pos Position) {
	b.stack = append(b.stack, &Group{Delim: d, At: pos})
}

func (b *treeBuilder) close(d Delimiter, text string, pos Position) *LexError {
	if len(b.stack) == 1 {
		return &LexError{
			Code:    CodeUnbalancedGroup,
			Message: fmt.Sprintf("unexpected closing %q with no open group", text),
			Pos:     pos,
		}
	}

	var lexErr *LexError
	top := b.top()
	if top.Delim != d {
		want, _ := top.Delim.Close()
		lexErr = &LexError{
			Code:    CodeUnbalancedGroup,
			Message: fmt.Sprintf("expected %q to close group opened at %d:%d, found %q", want, top.At.Line, top.At.Column, text),
			Pos:     pos,
		}
	}
	top.End = pos
	b.pop()
	return lexErr
}

// pop closes the innermost group and appends it to its parent.
func (b *treeBuilder) pop() {
	g := b.top()
	b.stack = b.stack[:len(b.stack)-1]
	b.add(*g)
}

func (b *treeBuilder) finish() []*LexError {
	var errs []*LexError
	for len(b.stack) > 1 {
		g := b.top()
		open, _ := g.Delim.Open()
		errs = append(errs, &LexError{
			Code:    CodeUnbalancedGroup,
			Message: fmt.Sprintf("unclosed %q", open),
			Pos:     g.At,
		})
		b.pop()
	}
	return errs
}

func (b *treeBuilder) root() []Token {
	return b.stack[0].Tokens
}

// Shift re-anchors token positions for a template that starts at base in a
// larger document. Columns are only adjusted on the template's first line.
// The input is not modified.
func Shift(tokens []Token, base Position) []Token {
	if len(tokens) == 0 {
		return tokens
	}
	out := make([]Token, len(tokens))
	for i, t := range tokens {
		out[i] = shiftToken(t, base)
	}
	return out
}

func shiftToken(t Token, base Position) Token {
	switch tok := t.(type) {
	case Ident:
		tok.At = ShiftPos(tok.At, base)
		return tok
	case Literal:
		tok.At = ShiftPos(tok.At, base)
		return tok
	case Punct:
		tok.At = ShiftPos(tok.At, base)
		return tok
	case Marker:
		tok.At = ShiftPos(tok.At, base)
		return tok
	case Group:
		tok.At = ShiftPos(tok.At, base)
		if tok.End.Line > 0 {
			tok.End = ShiftPos(tok.End, base)
		}
		tok.Tokens = Shift(tok.Tokens, base)
		return tok
	default:
		return t
	}
}

// ShiftPos re-anchors one position the same way Shift does.
func ShiftPos(p, base Position) Position {
	if p.Line == 1 {
		p.Column += base.Column - 1
	}
	p.Line += base.Line - 1
	p.Offset += base.Offset
	if base.Filename != "" {
		p.Filename = base.Filename
	}
	return p
}
