package compiler

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/inlinesql/internal/queryir"
)

// CompileError is a spec decoding error located in the CUE source.
type CompileError struct {
	Field   string // spec field, or "cue" for errors raised by CUE itself
	Message string
	Pos     queryir.Position
}

func (e *CompileError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldError(field string, pos token.Pos, format string, args ...any) *CompileError {
	return &CompileError{Field: field, Message: fmt.Sprintf(format, args...), Pos: position(pos)}
}

// cueError converts a CUE error list into CompileErrors, one per entry,
// joined.
func cueError(err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return err
	}

	out := make([]error, 0, len(list))
	for _, e := range list {
		ce := &CompileError{Field: "cue", Message: e.Error()}
		if ps := cueerrors.Positions(e); len(ps) > 0 {
			ce.Pos = position(ps[0])
		}
		out = append(out, ce)
	}
	return errors.Join(out...)
}

// position converts a CUE position into a template position.
func position(p token.Pos) queryir.Position {
	if !p.IsValid() {
		return queryir.Position{}
	}
	return queryir.Position{
		Filename: p.Filename(),
		Offset:   p.Offset(),
		Line:     p.Line(),
		Column:   p.Column(),
	}
}
