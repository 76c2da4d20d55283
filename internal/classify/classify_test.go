package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/inlinesql/internal/ir"
)

func TestClassify_Shapes(t *testing.T) {
	tests := []struct {
		returns string
		want    string
	}{
		{"Result<Vec<Pet>, Error>", "List(Pet)"},
		{"Result<(), Error>", "Execute"},
		{"Result<u64, Error>", "RowCount"},
		{"Result<Option<Pet>, Error>", "Optional(Pet)"},

		{"Result<std::vec::Vec<Pet>, Error>", "List(Pet)"},
		{"Result<alloc::vec::Vec<Pet>, Error>", "List(Pet)"},
		{"Result<::std::vec::Vec<Pet>, Error>", "List(Pet)"},
		{"Result<::alloc::vec::Vec<models::Pet>, Error>", "List(models::Pet)"},

		{"Result<std::option::Option<Pet>, Error>", "Optional(Pet)"},
		{"Result<core::option::Option<Pet>, Error>", "Optional(Pet)"},
		{"Result<::std::option::Option<Pet>, Error>", "Optional(Pet)"},
		{"Result<::core::option::Option<Pet>, Error>", "Optional(Pet)"},

		{"Result<RowStream, Error>", "Stream"},
		{"Result<tokio_postgres::RowStream, Error>", "Stream"},
		{"Result<::tokio_postgres::RowStream, Error>", "Stream"},
		{"Result<RowIter<'static>, Error>", "Stream"},
		{"Result<postgres::RowIter<'_>, Error>", "Stream"},
		{"Result<::postgres::RowIter, Error>", "Stream"},

		{"Result<()>", "Execute"},
		{"std::result::Result<u64, Error>", "RowCount"},
		{"((Result<((u64)), Error>))", "RowCount"},
		{"Result<(()), Error>", "Execute"},
		{"Result<Vec<(i64, String)>, Error>", "List((i64, String))"},
		{"Result<Option<Vec<Pet>>, Error>", "Optional(Vec<Pet>)"},
	}

	for _, tt := range tests {
		t.Run(tt.returns, func(t *testing.T) {
			shape, d := Classify(ir.MustParseType(tt.returns))
			require.Nil(t, d)
			assert.Equal(t, tt.want, shape.String())
		})
	}
}

func TestClassify_NeverProducesOne(t *testing.T) {
	for _, src := range []string{"Result<Pet, Error>", "Result<One<Pet>, Error>", "Result<Row, Error>"} {
		shape, _ := Classify(ir.MustParseType(src))
		_, isOne := shape.(ir.One)
		assert.False(t, isOne, src)
	}
}

func TestClassify_NotAnErrorUnion(t *testing.T) {
	tests := []struct {
		name     string
		returns  string
		wantNote bool
		wantMsg  string
	}{
		{"zero type arguments", "Result<>", true, "expected `Result<_, _>`"},
		{"no angle brackets", "Result", true, "expected `Result<_, _>`"},
		{"three type arguments", "Result<A, B, C>", true, "expected `Result<_, _>`"},
		{"lifetime argument", "Result<'a, Error>", true, "expected a type argument"},
		{"wrong wrapper", "Option<Pet>", true, "expected `Result<_, _>`"},
		{"alias", "QueryResult<Pet>", true, "expected `Result<_, _>`"},
		{"unit", "()", false, "function must return a `Result<_, _>`"},
		{"reference", "&Result<(), E>", false, "function must return a `Result<_, _>`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, d := Classify(ir.MustParseType(tt.returns))
			assert.Nil(t, shape)
			require.NotNil(t, d)
			assert.Equal(t, ir.CodeNotAnErrorUnion, d.Code)
			assert.Contains(t, d.Message, tt.wantMsg)
			if tt.wantNote {
				assert.Contains(t, d.Message, "type alias")
			} else {
				assert.NotContains(t, d.Message, "type alias")
			}
		})
	}
}

func TestClassify_MissingReturnType(t *testing.T) {
	shape, d := Classify(nil)
	assert.Nil(t, shape)
	require.NotNil(t, d)
	assert.Equal(t, ir.CodeNotAnErrorUnion, d.Code)
	assert.Equal(t, "function must return a `Result<_, _>`", d.Message)
}

func TestClassify_UnsupportedShape(t *testing.T) {
	tests := []string{
		"Result<Pet, Error>",
		"Result<i64, Error>",
		"Result<::u64, Error>",
		"Result<std::u64, Error>",
		"Result<Vec, Error>",
		"Result<vec::Vec<Pet>, Error>",
		"Result<my::Option<Pet>, Error>",
		"Result<RowStreams, Error>",
		"Result<(u64, u64), Error>",
		"Result<&[Pet], Error>",
	}

	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			shape, d := Classify(ir.MustParseType(src))
			assert.Nil(t, shape)
			require.NotNil(t, d)
			assert.Equal(t, ir.CodeUnsupportedShape, d.Code)
			assert.Contains(t, d.Message, "expected `()`, `u64`, `Vec<_>`, `Option<_>`, `RowStream` or `RowIter`")
			assert.Contains(t, d.Message, "type alias")
		})
	}
}

func TestClassify_DiagnosticPosition(t *testing.T) {
	_, d := Classify(ir.MustParseType("Result<Pet, Error>"))
	require.NotNil(t, d)
	assert.Equal(t, 8, d.Pos.Column)

	_, d = Classify(ir.MustParseType("db::QueryResult<Pet>"))
	require.NotNil(t, d)
	assert.Equal(t, 5, d.Pos.Column)
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "sqlx::Error", ErrorType(ir.MustParseType("Result<(), sqlx::Error>")).String())
	assert.Nil(t, ErrorType(ir.MustParseType("Result<()>")))
	assert.Nil(t, ErrorType(ir.MustParseType("Option<()>")))
	assert.Nil(t, ErrorType(nil))
}
