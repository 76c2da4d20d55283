package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/inlinesql/internal/ir"
)

// IDGenerator generates call IDs for log correlation.
// Implemented by UUIDv7Generator and SequenceGenerator.
type IDGenerator interface {
	Generate() string
}

// RowMapper converts a row into the caller's element value. Its error is
// returned to the caller as is, without error conversion.
type RowMapper func(Row) (any, error)

// ErrorMapper converts a client or row-conversion failure into the
// declared failure type.
type ErrorMapper func(error) error

// decodeFunc is a default row conversion.
type decodeFunc func(Row) (any, error)

// Engine realizes execution plans.
//
// Thread-safety: registration and calls are safe from any goroutine. A
// registered mapper is called concurrently when calls overlap.
type Engine struct {
	client Client
	logger *slog.Logger
	ids    IDGenerator

	mu         sync.RWMutex
	rowMappers map[string]RowMapper
	errMappers map[string]ErrorMapper
	targets    map[string]decodeFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithClient sets the client used when the call arguments carry none.
func WithClient(c Client) Option {
	return func(e *Engine) {
		e.client = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets the call ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:     slog.Default(),
		ids:        UUIDv7Generator{},
		rowMappers: make(map[string]RowMapper),
		errMappers: make(map[string]ErrorMapper),
		targets:    make(map[string]decodeFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterRowMapper makes fn available to plans naming it in map_row.
func (e *Engine) RegisterRowMapper(name string, fn RowMapper) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rowMappers[name] = fn
}

// RegisterErrorMapper makes fn available to plans naming it in map_err.
func (e *Engine) RegisterErrorMapper(name string, fn ErrorMapper) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errMappers[name] = fn
}

// RegisterType binds a declared element type name to T, so Call converts
// rows of plans targeting name into T values through DecodeRow. Without a
// registration Call hands back the Row itself.
func RegisterType[T any](e *Engine, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.targets[name] = func(row Row) (any, error) {
		return DecodeRow[T](row)
	}
}

// opReturns lists the return kinds each client operation can produce.
var opReturns = map[ir.ClientOp][]ir.ReturnKind{
	ir.OpExecute:       {ir.ReturnUnit, ir.ReturnRowCount},
	ir.OpQueryRows:     {ir.ReturnCollection},
	ir.OpQueryOptional: {ir.ReturnOptional},
	ir.OpQueryOne:      {ir.ReturnValue},
	ir.OpQueryStream:   {ir.ReturnStream},
}

// Prepare checks that the engine can realize p: the client operation is
// known and agrees with the return kind, and every mapper p names is
// registered.
func (e *Engine) Prepare(p *ir.ExecutionPlan) error {
	if p == nil {
		return &PrepareError{Message: "nil plan"}
	}

	returns, ok := opReturns[p.Call]
	if !ok {
		return &PrepareError{Function: p.Function, Message: fmt.Sprintf("unknown client operation %q", p.Call)}
	}
	if !slices.Contains(returns, p.Returns) {
		return &PrepareError{
			Function: p.Function,
			Message:  fmt.Sprintf("client operation %s cannot return %s, want one of %v", p.Call, p.Returns, returns),
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if p.Rows.Strategy == ir.RowsMapper {
		if _, ok := e.rowMappers[p.Rows.Mapper]; !ok {
			return &PrepareError{Function: p.Function, Message: fmt.Sprintf("row mapper %q is not registered", p.Rows.Mapper)}
		}
	}
	if p.Errors.Strategy == ir.ErrorsMapper {
		if _, ok := e.errMappers[p.Errors.Mapper]; !ok {
			return &PrepareError{Function: p.Function, Message: fmt.Sprintf("error mapper %q is not registered", p.Errors.Mapper)}
		}
	}
	return nil
}

// Call realizes p with named arguments. The result depends on p.Returns:
//
//	unit       nil
//	row_count  uint64
//	collection []any
//	optional   the converted row, or nil
//	value      the converted row
//	stream     RowStream
//
// Converted rows come from the plan's row mapper, or from the type
// registered for the row target, or are the Row itself.
func (e *Engine) Call(ctx context.Context, p *ir.ExecutionPlan, args map[string]any) (any, error) {
	return e.call(ctx, p, args, nil)
}

func (e *Engine) call(ctx context.Context, p *ir.ExecutionPlan, args map[string]any, decode decodeFunc) (any, error) {
	callID := e.ids.Generate()

	if err := e.Prepare(p); err != nil {
		return nil, &CallError{Function: functionName(p), CallID: callID, Err: err}
	}

	log := e.logger.With("call_id", callID, "function", p.Function)
	start := time.Now()

	client, err := e.clientFor(p, args)
	if err != nil {
		return nil, &CallError{Function: p.Function, CallID: callID, Err: err}
	}
	bound, err := bind(p, args)
	if err != nil {
		return nil, &CallError{Function: p.Function, CallID: callID, Err: err}
	}

	log.Debug("calling client",
		"op", p.Call,
		"query", p.Query.Text,
		"args", len(bound),
	)

	if decode == nil {
		decode = e.targetDecoder(p.Rows.Target)
	}
	x := &execution{engine: e, plan: p, callID: callID, decode: decode}

	result, err := x.run(ctx, client, bound)
	if err != nil {
		log.Error("call failed", "op", p.Call, "error", err)
		return nil, err
	}

	log.Debug("call complete", "op", p.Call, "duration", time.Since(start))
	return result, nil
}

func (e *Engine) clientFor(p *ir.ExecutionPlan, args map[string]any) (Client, error) {
	if c, ok := args[p.Client].(Client); ok {
		return c, nil
	}
	if e.client != nil {
		return e.client, nil
	}
	return nil, fmt.Errorf("%w: no argument %q implements Client and the engine has no default", ErrNoClient, p.Client)
}

// bind lays named arguments out in slot order. Binding names are in NFC;
// an argument key matches when its NFC form does.
func bind(p *ir.ExecutionPlan, args map[string]any) ([]any, error) {
	bound := make([]any, len(p.Bindings))
	for i, b := range p.Bindings {
		v, ok := lookupArg(args, b.Name)
		if !ok {
			return nil, fmt.Errorf("%w %q for slot $%d", ErrMissingArgument, b.Name, b.Slot)
		}
		bound[i] = v
	}
	return bound, nil
}

func lookupArg(args map[string]any, name string) (any, bool) {
	if v, ok := args[name]; ok {
		return v, true
	}
	for k, v := range args {
		if norm.NFC.String(k) == name {
			return v, true
		}
	}
	return nil, false
}

func (e *Engine) targetDecoder(target string) decodeFunc {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if fn, ok := e.targets[target]; ok {
		return fn
	}
	return func(row Row) (any, error) { return row, nil }
}

func functionName(p *ir.ExecutionPlan) string {
	if p == nil {
		return ""
	}
	return p.Function
}

// execution is the state of one Call.
type execution struct {
	engine *Engine
	plan   *ir.ExecutionPlan
	callID string
	decode decodeFunc
}

func (x *execution) run(ctx context.Context, client Client, args []any) (any, error) {
	p := x.plan
	query := p.Query.Text

	switch p.Call {
	case ir.OpExecute:
		n, err := client.Execute(ctx, query, args)
		if err != nil {
			return nil, x.fail(err)
		}
		if p.Returns == ir.ReturnRowCount {
			return n, nil
		}
		return nil, nil

	case ir.OpQueryRows:
		stream, err := client.QueryRows(ctx, query, args)
		if err != nil {
			return nil, x.fail(err)
		}
		return x.collect(ctx, stream)

	case ir.OpQueryOptional:
		row, ok, err := client.QueryOptional(ctx, query, args)
		if err != nil {
			return nil, x.fail(err)
		}
		if !ok {
			return nil, nil
		}
		return x.convert(row)

	case ir.OpQueryOne:
		row, err := client.QueryOne(ctx, query, args)
		if err != nil {
			return nil, x.fail(err)
		}
		return x.convert(row)

	case ir.OpQueryStream:
		stream, err := client.QueryStream(ctx, query, args)
		if err != nil {
			return nil, x.fail(err)
		}
		return stream, nil

	default:
		return nil, x.fail(fmt.Errorf("unknown client operation %q", p.Call))
	}
}

// collect converts rows as they are read and stops reading at the first
// failure.
func (x *execution) collect(ctx context.Context, stream RowStream) (out []any, err error) {
	defer func() {
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = x.fail(cerr)
		}
	}()

	out = []any{}
	for {
		row, ok, err := stream.Next(ctx)
		if err != nil {
			return nil, x.fail(err)
		}
		if !ok {
			return out, nil
		}
		v, err := x.convert(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// convert turns one row into the element value. Row mapper failures are
// returned as is; default conversion failures go through error conversion.
func (x *execution) convert(row Row) (any, error) {
	if x.plan.Rows.Strategy == ir.RowsMapper {
		x.engine.mu.RLock()
		mapper := x.engine.rowMappers[x.plan.Rows.Mapper]
		x.engine.mu.RUnlock()

		return mapper(row)
	}

	v, err := x.decode(row)
	if err != nil {
		return nil, x.fail(fmt.Errorf("convert row to %s: %w", x.plan.Rows.Target, err))
	}
	return v, nil
}

// fail applies the plan's error conversion.
func (x *execution) fail(err error) error {
	if x.plan.Errors.Strategy == ir.ErrorsMapper {
		x.engine.mu.RLock()
		mapper := x.engine.errMappers[x.plan.Errors.Mapper]
		x.engine.mu.RUnlock()

		if mapped := mapper(err); mapped != nil {
			err = mapped
		}
	}
	return &CallError{Function: x.plan.Function, Op: x.plan.Call, CallID: x.callID, Err: err}
}
