package engine

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxConn is the subset of *pgx.Conn, pgx.Tx and *pgxpool.Pool PgxClient
// uses.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgxClient implements Client over pgx. Query text uses the $n slot
// syntax pgx expects natively.
type PgxClient struct {
	conn PgxConn
}

// NewPgxClient wraps a pgx connection, transaction or pool.
func NewPgxClient(conn PgxConn) *PgxClient {
	return &PgxClient{conn: conn}
}

func (c *PgxClient) Execute(ctx context.Context, query string, args []any) (uint64, error) {
	tag, err := c.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n := tag.RowsAffected()
	if n < 0 {
		return 0, nil
	}
	return uint64(n), nil
}

func (c *PgxClient) QueryRows(ctx context.Context, query string, args []any) (RowStream, error) {
	return c.QueryStream(ctx, query, args)
}

func (c *PgxClient) QueryOptional(ctx context.Context, query string, args []any) (Row, bool, error) {
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

func (c *PgxClient) QueryOne(ctx context.Context, query string, args []any) (Row, error) {
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

func (c *PgxClient) QueryStream(ctx context.Context, query string, args []any) (RowStream, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return &pgxStream{rows: rows, cols: cols}, nil
}

func (c *PgxClient) atMostTwo(ctx context.Context, query string, args []any) (rows []Row, err error) {
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

type pgxStream struct {
	rows pgx.Rows
	cols []string
}

func (s *pgxStream) Next(ctx context.Context) (Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, false, err
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return Row{}, false, err
		}
		return Row{}, false, nil
	}
	values, err := s.rows.Values()
	if err != nil {
		return Row{}, false, fmt.Errorf("row values: %w", err)
	}
	return Row{Columns: s.cols, Values: values}, true, nil
}

// Close releases the rows. pgx reports deferred query errors through Err
// after Close.
func (s *pgxStream) Close() error {
	s.rows.Close()
	return s.rows.Err()
}
