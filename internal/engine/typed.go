package engine

import (
	"context"
	"fmt"

	"github.com/roach88/inlinesql/internal/ir"
)

// Exec realizes a plan that returns nothing or a row count, discarding
// the count.
func (e *Engine) Exec(ctx context.Context, p *ir.ExecutionPlan, args map[string]any) error {
	if err := expectReturns(p, ir.ReturnUnit, ir.ReturnRowCount); err != nil {
		return err
	}
	_, err := e.Call(ctx, p, args)
	return err
}

// Count realizes a row-count plan.
func (e *Engine) Count(ctx context.Context, p *ir.ExecutionPlan, args map[string]any) (uint64, error) {
	if err := expectReturns(p, ir.ReturnRowCount); err != nil {
		return 0, err
	}
	v, err := e.Call(ctx, p, args)
	if err != nil {
		return 0, err
	}
	n, ok := v.(uint64)
	if !ok {
		return 0, unexpectedResult(p, v, n)
	}
	return n, nil
}

// Stream realizes a stream plan. The caller must Close the stream.
func (e *Engine) Stream(ctx context.Context, p *ir.ExecutionPlan, args map[string]any) (RowStream, error) {
	if err := expectReturns(p, ir.ReturnStream); err != nil {
		return nil, err
	}
	v, err := e.Call(ctx, p, args)
	if err != nil {
		return nil, err
	}
	stream, ok := v.(RowStream)
	if !ok {
		return nil, unexpectedResult(p, v, stream)
	}
	return stream, nil
}

// List realizes a collection plan, converting every row into a T.
func List[T any](ctx context.Context, e *Engine, p *ir.ExecutionPlan, args map[string]any) ([]T, error) {
	if err := expectReturns(p, ir.ReturnCollection); err != nil {
		return nil, err
	}
	v, err := e.call(ctx, p, args, decodeAs[T])
	if err != nil {
		return nil, err
	}

	items, ok := v.([]any)
	if !ok {
		return nil, unexpectedResult(p, v, items)
	}
	out := make([]T, len(items))
	for i, item := range items {
		if out[i], err = as[T](p, item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Optional realizes an optional plan. ok is false when no row matched.
func Optional[T any](ctx context.Context, e *Engine, p *ir.ExecutionPlan, args map[string]any) (v T, ok bool, err error) {
	if err := expectReturns(p, ir.ReturnOptional); err != nil {
		return v, false, err
	}
	res, err := e.call(ctx, p, args, decodeAs[T])
	if err != nil || res == nil {
		return v, false, err
	}
	v, err = as[T](p, res)
	return v, err == nil, err
}

// One realizes a plan that yields exactly one row.
func One[T any](ctx context.Context, e *Engine, p *ir.ExecutionPlan, args map[string]any) (T, error) {
	var zero T
	if err := expectReturns(p, ir.ReturnValue); err != nil {
		return zero, err
	}
	res, err := e.call(ctx, p, args, decodeAs[T])
	if err != nil {
		return zero, err
	}
	return as[T](p, res)
}

func decodeAs[T any](row Row) (any, error) {
	return DecodeRow[T](row)
}

// as asserts a converted value to T. Only a row mapper can produce a value
// of another type.
func as[T any](p *ir.ExecutionPlan, v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, &CallError{
			Function: p.Function,
			Op:       p.Call,
			Err:      fmt.Errorf("row mapper %s returned %T, want %T", p.Rows.Mapper, v, zero),
		}
	}
	return t, nil
}

// unexpectedResult reports a Call result whose type does not match the
// plan's return kind.
func unexpectedResult(p *ir.ExecutionPlan, got, want any) error {
	return &CallError{
		Function: p.Function,
		Op:       p.Call,
		Err:      fmt.Errorf("%s call returned %T, want %T", p.Returns, got, want),
	}
}

func expectReturns(p *ir.ExecutionPlan, want ...ir.ReturnKind) error {
	if p == nil {
		return &PrepareError{Message: "nil plan"}
	}
	for _, w := range want {
		if p.Returns == w {
			return nil
		}
	}
	return &PrepareError{
		Function: p.Function,
		Message:  fmt.Sprintf("plan returns %s, want %v", p.Returns, want),
	}
}
