package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

var (
	// ErrNoRows is returned by QueryOne when the query yields no row.
	ErrNoRows = errors.New("query returned no rows")

	// ErrTooManyRows is returned by QueryOptional and QueryOne when the
	// query yields more than one row.
	ErrTooManyRows = errors.New("query returned more than one row")
)

// Client is the five-operation surface a plan is realized against.
//
// Arguments are positional: args[i] binds slot i+1 of the query text.
type Client interface {
	// Execute runs a statement and reports the number of affected rows.
	Execute(ctx context.Context, query string, args []any) (uint64, error)

	// QueryRows runs a query whose rows are all consumed by the caller.
	QueryRows(ctx context.Context, query string, args []any) (RowStream, error)

	// QueryOptional returns the single row of the result, or ok=false when
	// there is none. More than one row is ErrTooManyRows.
	QueryOptional(ctx context.Context, query string, args []any) (row Row, ok bool, err error)

	// QueryOne returns the single row of the result. No row is ErrNoRows,
	// more than one is ErrTooManyRows.
	QueryOne(ctx context.Context, query string, args []any) (Row, error)

	// QueryStream runs a query whose rows are handed to the caller lazily.
	QueryStream(ctx context.Context, query string, args []any) (RowStream, error)
}

// RowStream yields rows one at a time. Next returns ok=false once the
// stream is exhausted. Close must be called when the caller is done.
type RowStream interface {
	Next(ctx context.Context) (row Row, ok bool, err error)
	Close() error
}

// Row is one result row: column names and their values in select order.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column. Names are matched
// case-insensitively.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a column-name keyed map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// Scan decodes the row into dst, which must be a pointer to a struct or a
// map. Struct fields are matched by their `db` tag, falling back to a
// case-insensitive field name match. Input is weakly typed, so a TEXT
// column stored as []byte decodes into a string field.
func (r Row) Scan(dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "db",
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return fmt.Errorf("row decoder: %w", err)
	}
	if err := dec.Decode(r.Map()); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// FromRow is implemented by types that convert rows themselves. The
// default row conversion prefers it over Row.Scan.
type FromRow interface {
	FromRow(Row) error
}

// DecodeRow converts a row into a new T: through FromRow when *T
// implements it, through Row.Scan otherwise.
func DecodeRow[T any](row Row) (T, error) {
	var v T
	if fr, ok := any(&v).(FromRow); ok {
		if err := fr.FromRow(row); err != nil {
			return v, err
		}
		return v, nil
	}
	if err := row.Scan(&v); err != nil {
		return v, err
	}
	return v, nil
}

// sliceStream is a RowStream over rows already in memory.
type sliceStream struct {
	rows []Row
	next int
}

// NewRowStream returns a RowStream over rows.
func NewRowStream(rows ...Row) RowStream {
	return &sliceStream{rows: rows}
}

func (s *sliceStream) Next(ctx context.Context) (Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, false, err
	}
	if s.next >= len(s.rows) {
		return Row{}, false, nil
	}
	row := s.rows[s.next]
	s.next++
	return row, true, nil
}

func (s *sliceStream) Close() error {
	s.next = len(s.rows)
	return nil
}
