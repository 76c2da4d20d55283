package engine

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLConn is the subset of *sql.DB, *sql.Tx and *sql.Conn SQLClient uses.
type SQLConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLClient implements Client over database/sql.
type SQLClient struct {
	conn SQLConn
}

// NewSQLClient wraps a database/sql connection, transaction or pool.
func NewSQLClient(conn SQLConn) *SQLClient {
	return &SQLClient{conn: conn}
}

func (c *SQLClient) Execute(ctx context.Context, query string, args []any) (uint64, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n < 0 {
		return 0, nil
	}
	return uint64(n), nil
}

func (c *SQLClient) QueryRows(ctx context.Context, query string, args []any) (RowStream, error) {
	return c.QueryStream(ctx, query, args)
}

func (c *SQLClient) QueryOptional(ctx context.Context, query string, args []any) (Row, bool, error) {
	rows, err := c.atMostTwo(ctx, query, args)
	if err != nil {
		return Row{}, false, err
	}
	switch len(rows) {
	case 0:
		return Row{}, false, nil
	case 1:
		return rows[0], true, nil
	default:
		return Row{}, false, ErrTooManyRows
	}
}

func (c *SQLClient) QueryOne(ctx context.Context, query string, args []any) (Row, error) {
	rows, err := c.atMostTwo(ctx, query, args)
	if err != nil {
		return Row{}, err
	}
	switch len(rows) {
	case 0:
		return Row{}, ErrNoRows
	case 1:
		return rows[0], nil
	default:
		return Row{}, ErrTooManyRows
	}
}

func (c *SQLClient) QueryStream(ctx context.Context, query string, args []any) (RowStream, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("columns: %w", err)
	}
	return &sqlStream{rows: rows, cols: cols}, nil
}

// atMostTwo reads no more than two rows, enough to tell zero, one and many
// apart without draining the result.
func (c *SQLClient) atMostTwo(ctx context.Context, query string, args []any) (rows []Row, err error) {
	stream, err := c.QueryStream(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for len(rows) < 2 {
		row, ok, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type sqlStream struct {
	rows *sql.Rows
	cols []string
}

func (s *sqlStream) Next(ctx context.Context) (Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, false, err
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return Row{}, false, err
		}
		return Row{}, false, nil
	}

	values := make([]any, len(s.cols))
	ptrs := make([]any, len(s.cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return Row{}, false, fmt.Errorf("scan row: %w", err)
	}
	return Row{Columns: s.cols, Values: values}, true, nil
}

func (s *sqlStream) Close() error {
	return s.rows.Close()
}
