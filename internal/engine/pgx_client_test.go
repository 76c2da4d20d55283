package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/inlinesql/internal/testutil"
)

// fakePgx answers every query with the same rows.
type fakePgx struct {
	cols     []string
	rows     [][]any
	affected string
	err      error
	closeErr error

	gotSQL  string
	gotArgs []any
}

func (f *fakePgx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.gotSQL, f.gotArgs = sql, args
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	return pgconn.NewCommandTag(f.affected), nil
}

func (f *fakePgx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.gotSQL, f.gotArgs = sql, args
	if f.err != nil {
		return nil, f.err
	}
	return &fakeRows{cols: f.cols, rows: f.rows, idx: -1, closeErr: f.closeErr}, nil
}

// fakeRows reports closeErr from Err once closed.
type fakeRows struct {
	cols     []string
	rows     [][]any
	idx      int
	closed   bool
	closeErr error
}

func (r *fakeRows) Close() { r.closed = true }

func (r *fakeRows) Err() error {
	if r.closed {
		return r.closeErr
	}
	return nil
}

func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }
func (r *fakeRows) Scan(...any) error             { return errors.New("not supported") }
func (r *fakeRows) RawValues() [][]byte           { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.cols))
	for i, c := range r.cols {
		fields[i] = pgconn.FieldDescription{Name: c}
	}
	return fields
}

func (r *fakeRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx], nil
}

func TestPgxClient(t *testing.T) {
	ctx := context.Background()

	t.Run("execute", func(t *testing.T) {
		conn := &fakePgx{affected: "DELETE 2"}
		e := New(WithClient(NewPgxClient(conn)), WithLogger(testutil.NewTestLogger(t)))
		p := testutil.Plan(t, "delete_pets", "Result<u64, Error>", "DELETE FROM pets WHERE species = #species", "species")

		n, err := e.Count(ctx, p, map[string]any{"species": "cat"})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), n)
		assert.Equal(t, "DELETE FROM pets WHERE species = $1", conn.gotSQL)
		assert.Equal(t, []any{"cat"}, conn.gotArgs)
	})

	t.Run("list", func(t *testing.T) {
		conn := &fakePgx{
			cols: []string{"name", "species"},
			rows: [][]any{{"Rex", "dog"}, {"Tom", "cat"}},
		}
		e := New(WithClient(NewPgxClient(conn)), WithLogger(testutil.NewTestLogger(t)))
		p := testutil.Plan(t, "all_pets", "Result<Vec<Pet>, Error>", "SELECT * FROM pets")

		pets, err := List[Pet](ctx, e, p, nil)
		require.NoError(t, err)
		assert.Equal(t, []Pet{{"Rex", "dog"}, {"Tom", "cat"}}, pets)
	})

	t.Run("optional and one", func(t *testing.T) {
		client := NewPgxClient(&fakePgx{cols: []string{"name"}, rows: [][]any{{"Rex"}, {"Tom"}}})
		_, _, err := client.QueryOptional(ctx, "SELECT name FROM pets", nil)
		assert.ErrorIs(t, err, ErrTooManyRows)

		client = NewPgxClient(&fakePgx{cols: []string{"name"}})
		_, ok, err := client.QueryOptional(ctx, "SELECT name FROM pets", nil)
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = client.QueryOne(ctx, "SELECT name FROM pets", nil)
		assert.ErrorIs(t, err, ErrNoRows)

		client = NewPgxClient(&fakePgx{cols: []string{"name"}, rows: [][]any{{"Rex"}}})
		row, err := client.QueryOne(ctx, "SELECT name FROM pets", nil)
		require.NoError(t, err)
		assert.Equal(t, []any{"Rex"}, row.Values)
	})

	t.Run("close error is reported", func(t *testing.T) {
		errClose := errors.New("connection reset")
		client := NewPgxClient(&fakePgx{cols: []string{"name"}, rows: [][]any{{"Rex"}}, closeErr: errClose})

		_, err := client.QueryOne(ctx, "SELECT name FROM pets", nil)
		assert.ErrorIs(t, err, errClose)
		_, _, err = client.QueryOptional(ctx, "SELECT name FROM pets", nil)
		assert.ErrorIs(t, err, errClose)
	})

	t.Run("client error is widened", func(t *testing.T) {
		errDown := errors.New("server down")
		e := New(WithClient(NewPgxClient(&fakePgx{err: errDown})), WithLogger(testutil.NewTestLogger(t)))
		p := testutil.Plan(t, "all_pets", "Result<Vec<Pet>, Error>", "SELECT * FROM pets")

		_, err := e.Call(ctx, p, nil)
		assert.ErrorIs(t, err, errDown)
		assert.Equal(t, "all_pets: query_rows: server down", err.Error())
	})
}
