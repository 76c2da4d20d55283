package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/inlinesql/internal/queryir"
)

func TestParseType_Normalizes(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"()", "()"},
		{"u64", "u64"},
		{"Result<Vec<Pet>,Error>", "Result<Vec<Pet>, Error>"},
		{"::std::vec::Vec< Pet >", "::std::vec::Vec<Pet>"},
		{"( ( Result<(), E> ) )", "((Result<(), E>))"},
		{"Result<Cow<'a, str>, sqlx::Error>", "Result<Cow<'a, str>, sqlx::Error>"},
		{"&'a mut [u8]", "&'a mut [u8]"},
		{"(i32, String)", "(i32, String)"},
		{"Result<'a>", "Result<'a>"},
		{"Result<>", "Result<>"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			typ, d := ParseType("", tt.src)
			require.Nil(t, d)
			assert.Equal(t, tt.want, typ.String())
		})
	}
}

func TestParseType_Structure(t *testing.T) {
	typ := MustParseType("::std::option::Option<Pet>")

	path := typ.AsPath()
	require.NotNil(t, path)
	assert.True(t, path.Leading)
	assert.Equal(t, []string{"", "std", "option", "Option"}, path.Names())

	args := path.Last().Args()
	require.Len(t, args, 1)
	assert.Equal(t, "Pet", args[0].Type.String())
	assert.Equal(t, 23, args[0].Pos.Column)
}

func TestParseType_SyntaxError(t *testing.T) {
	_, d := ParseType("pets.cue", "Result<Vec<Pet>")
	require.NotNil(t, d)
	assert.Equal(t, CodeInvalidTypeSyntax, d.Code)
	assert.Equal(t, "pets.cue", d.Pos.Filename)
	assert.NotEmpty(t, d.Message)
}

func TestParseTypeAt_ShiftsPositions(t *testing.T) {
	base := queryir.Position{Filename: "specs/pets.cue", Offset: 40, Line: 4, Column: 12}
	typ, d := ParseTypeAt("Result<Vec<Pet>, Error>", base)
	require.Nil(t, d)

	assert.Equal(t, "specs/pets.cue", typ.Pos.Filename)
	assert.Equal(t, 4, typ.Pos.Line)
	assert.Equal(t, 12, typ.Pos.Column)

	second := typ.AsPath().Last().Args()[1]
	assert.Equal(t, 29, second.Pos.Column)
}

func TestTypeExpr_Unparen(t *testing.T) {
	assert.Equal(t, "u64", MustParseType("((u64))").Unparen().String())
	assert.True(t, MustParseType("(())").Unparen().IsUnit())
	assert.Equal(t, "(A, B)", MustParseType("((A, B))").Unparen().String())
	assert.Nil(t, (*TypeExpr)(nil).Unparen())
}
