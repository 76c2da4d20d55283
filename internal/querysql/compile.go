package querysql

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/queryir"
)

// DefaultMarkers are the characters that introduce a named parameter.
var DefaultMarkers = []rune{'#', '$'}

// Compiler lowers template token trees to positional-parameter queries.
//
// Output text is normalized: fragments are joined by exactly one space, so
// source whitespace never reaches the query. Only token boundaries matter.
type Compiler struct {
	markers  map[rune]bool
	fallback queryir.Position
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithMarkers replaces the parameter marker characters.
func WithMarkers(markers ...rune) Option {
	return func(c *Compiler) {
		c.markers = make(map[rune]bool, len(markers))
		for _, m := range markers {
			c.markers[m] = true
		}
	}
}

// WithFallback sets the position reported when no token position is
// available, usually the position of the enclosing function.
func WithFallback(pos queryir.Position) Option {
	return func(c *Compiler) {
		c.fallback = pos
	}
}

// NewCompiler creates a Compiler with DefaultMarkers.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{}
	WithMarkers(DefaultMarkers...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Markers returns the marker characters in ascending order.
func (c *Compiler) Markers() []rune {
	return slices.Sorted(maps.Keys(c.markers))
}

// Compile is shorthand for NewCompiler(opts...).Compile(tokens).
func Compile(tokens []queryir.Token, opts ...Option) (ir.CompiledQuery, ir.Diagnostics) {
	return NewCompiler(opts...).Compile(tokens)
}

// frame is one open token sequence. close is the bracket emitted when the
// sequence is exhausted, 0 for the root and for undelimited groups.
type frame struct {
	tokens []queryir.Token
	next   int
	close  rune
}

func (f *frame) done() bool { return f.next >= len(f.tokens) }

func (f *frame) peek() queryir.Token { return f.tokens[f.next] }

// Compile walks the token tree with an explicit stack and returns the
// compiled query together with every problem found. The query is returned
// even when diagnostics are present.
func (c *Compiler) Compile(tokens []queryir.Token) (ir.CompiledQuery, ir.Diagnostics) {
	var (
		diags ir.Diagnostics
		out   = newEmitter()
		stack = []*frame{{tokens: tokens}}
	)

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if f.done() {
			if f.close != 0 {
				out.emit(string(f.close))
			}
			stack = stack[:len(stack)-1]
			continue
		}

		tok := f.peek()
		f.next++

		switch t := tok.(type) {
		case queryir.Ident:
			out.emit(t.Name)

		case queryir.Literal:
			out.emit(t.Text)

		case queryir.Punct:
			if c.markers[t.Char] {
				c.placeholder(f, t, out, &diags)
				continue
			}
			var run strings.Builder
			run.WriteRune(t.Char)
			for !f.done() {
				p, ok := f.peek().(queryir.Punct)
				if !ok || c.markers[p.Char] {
					break
				}
				run.WriteRune(p.Char)
				f.next++
			}
			out.emit(run.String())

		case queryir.Group:
			open, ok := t.Delim.Open()
			if !ok {
				diags.Add(ir.CodeUndelimitedGroup, c.pos(t.At), "group has no bracket delimiter")
				stack = append(stack, &frame{tokens: t.Tokens})
				continue
			}
			closeChar, _ := t.Delim.Close()
			out.emit(string(open))
			stack = append(stack, &frame{tokens: t.Tokens, close: closeChar})

		case queryir.Marker:
			if t.Name == "" {
				diags.Add(ir.CodeExpectedPlaceholderName, c.pos(t.At), "parameter marker has no name")
				continue
			}
			out.param(t.Name, t.At)
		}
	}

	return out.query(), diags
}

// placeholder resolves a marker character. The following token must be an
// identifier in the same frame; anything else is left in place so the walk
// continues with it.
func (c *Compiler) placeholder(f *frame, marker queryir.Punct, out *emitter, diags *ir.Diagnostics) {
	if f.done() {
		diags.Addf(ir.CodeExpectedPlaceholderName, c.pos(marker.At),
			"expected parameter name after %q, found end of input", marker.Char)
		return
	}
	next := f.peek()
	if id, ok := next.(queryir.Ident); ok {
		f.next++
		out.param(id.Name, marker.At)
		return
	}
	pos := next.Pos()
	if pos.Line == 0 {
		pos = marker.At
	}
	diags.Addf(ir.CodeExpectedPlaceholderName, c.pos(pos),
		"expected parameter name after %q", marker.Char)
}

func (c *Compiler) pos(p queryir.Position) queryir.Position {
	if p.Line == 0 {
		return c.fallback
	}
	return p
}

// emitter collects fragments and interns parameter names.
type emitter struct {
	fragments    []string
	slots        map[string]int
	placeholders []string
	positions    []queryir.Position
}

func newEmitter() *emitter {
	return &emitter{slots: make(map[string]int)}
}

func (e *emitter) emit(fragment string) {
	e.fragments = append(e.fragments, fragment)
}

// param emits the slot for name, assigning the next slot on first use.
// Names are NFC normalized so canonically equal spellings share a slot.
func (e *emitter) param(name string, at queryir.Position) {
	name = norm.NFC.String(name)
	slot, ok := e.slots[name]
	if !ok {
		slot = len(e.placeholders) + 1
		e.slots[name] = slot
		e.placeholders = append(e.placeholders, name)
		e.positions = append(e.positions, at)
	}
	e.emit("$" + strconv.Itoa(slot))
}

func (e *emitter) query() ir.CompiledQuery {
	return ir.CompiledQuery{
		Text:         strings.Join(e.fragments, " "),
		Placeholders: e.placeholders,
		Positions:    e.positions,
	}
}
