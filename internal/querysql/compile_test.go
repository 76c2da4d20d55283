package querysql

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/queryir"
)

func lex(t *testing.T, src string) []queryir.Token {
	t.Helper()
	tokens, errs := queryir.Lex("query.sql", src)
	require.Empty(t, errs)
	return tokens
}

func TestCompile_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		template     string
		wantText     string
		placeholders []string
	}{
		{
			name:         "select by name",
			template:     "SELECT * FROM pets WHERE name = #name",
			wantText:     "SELECT * FROM pets WHERE name = $1",
			placeholders: []string{"name"},
		},
		{
			name:         "insert with groups",
			template:     "INSERT INTO pets (name, species) VALUES (#name, #species)",
			wantText:     "INSERT INTO pets ( name , species ) VALUES ( $1 , $2 )",
			placeholders: []string{"name", "species"},
		},
		{
			name:         "repeated parameter",
			template:     "SELECT * FROM pets WHERE name = #name OR nickname = #name",
			wantText:     "SELECT * FROM pets WHERE name = $1 OR nickname = $1",
			placeholders: []string{"name"},
		},
		{
			name:         "dollar marker",
			template:     "DELETE FROM pets WHERE id = $id",
			wantText:     "DELETE FROM pets WHERE id = $1",
			placeholders: []string{"id"},
		},
		{
			name:         "no parameters",
			template:     "SELECT count(*) FROM pets",
			wantText:     "SELECT count ( * ) FROM pets",
			placeholders: nil,
		},
		{
			name:         "whitespace is irrelevant",
			template:     "SELECT\n\t*\n  FROM   pets -- all of them\n",
			wantText:     "SELECT * FROM pets",
			placeholders: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, diags := Compile(lex(t, tt.template))
			require.Empty(t, diags)
			assert.Equal(t, tt.wantText, q.Text)
			assert.Equal(t, tt.placeholders, q.Placeholders)
		})
	}
}

func TestCompile_PunctuationRuns(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{"a <= b", "a <= b"},
		{"a<>b", "a <> b"},
		{"x::int", "x :: int"},
		{"data->>'name'", "data ->> 'name'"},
		{"a=#b", "a = $1"},
		{"a >= #b;", "a >= $1 ;"},
	}

	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			q, diags := Compile(lex(t, tt.template))
			require.Empty(t, diags)
			assert.Equal(t, tt.want, q.Text)
		})
	}
}

func TestCompile_PlaceholderDedup(t *testing.T) {
	for n := 1; n <= 5; n++ {
		t.Run(fmt.Sprintf("%d occurrences", n), func(t *testing.T) {
			refs := make([]string, n)
			for i := range refs {
				refs[i] = "#p"
			}
			q, diags := Compile(lex(t, "SELECT "+strings.Join(refs, " , ")))
			require.Empty(t, diags)

			assert.Equal(t, []string{"p"}, q.Placeholders)
			assert.Equal(t, n, strings.Count(q.Text, "$1"))
			assert.NotContains(t, q.Text, "$2")
		})
	}
}

func TestCompile_FirstOccurrenceOrdering(t *testing.T) {
	q, diags := Compile(lex(t, "UPDATE pets SET name = #b, species = #a WHERE id = #c AND owner = #b"))
	require.Empty(t, diags)

	assert.Equal(t, []string{"b", "a", "c"}, q.Placeholders)
	assert.Equal(t, "UPDATE pets SET name = $1 , species = $2 WHERE id = $3 AND owner = $1", q.Text)
	assert.Less(t, q.Slot("b"), q.Slot("a"))
	assert.Less(t, q.Slot("a"), q.Slot("c"))

	require.Len(t, q.Positions, 3)
	assert.Equal(t, 24, q.Positions[0].Column)
}

func TestCompile_BracketBalance(t *testing.T) {
	q, diags := Compile(lex(t, "f((a), [b, {c}])"))
	require.Empty(t, diags)
	assert.Equal(t, "f ( ( a ) , [ b , { c } ] )", q.Text)

	var brackets strings.Builder
	for _, r := range q.Text {
		if strings.ContainsRune("()[]{}", r) {
			brackets.WriteRune(r)
		}
	}
	assert.Equal(t, "(()[{}])", brackets.String())
}

func TestCompile_DeepNesting(t *testing.T) {
	depth := 10000
	src := strings.Repeat("(", depth) + "#x" + strings.Repeat(")", depth)

	q, diags := Compile(lex(t, src))
	require.Empty(t, diags)
	assert.Equal(t, []string{"x"}, q.Placeholders)
	assert.Equal(t, depth, strings.Count(q.Text, "("))
	assert.Equal(t, depth, strings.Count(q.Text, ")"))
}

func TestCompile_ExpectedPlaceholderName(t *testing.T) {
	tests := []struct {
		name       string
		template   string
		wantText   string
		wantColumn int
	}{
		{
			name:       "end of input points at marker",
			template:   "SELECT * FROM pets WHERE name = #",
			wantText:   "SELECT * FROM pets WHERE name =",
			wantColumn: 33,
		},
		{
			name:       "literal after marker is kept",
			template:   "LIMIT #10",
			wantText:   "LIMIT 10",
			wantColumn: 8,
		},
		{
			name:       "end of group points at marker",
			template:   "VALUES (#)",
			wantText:   "VALUES ( )",
			wantColumn: 9,
		},
		{
			name:       "group after marker is still compiled",
			template:   "IN #(#ids)",
			wantText:   "IN ( $1 )",
			wantColumn: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, diags := Compile(lex(t, tt.template))
			require.Len(t, diags, 1)
			assert.Equal(t, ir.CodeExpectedPlaceholderName, diags[0].Code)
			assert.Equal(t, tt.wantColumn, diags[0].Pos.Column)
			assert.Equal(t, tt.wantText, q.Text)
		})
	}
}

func TestCompile_AccumulatesAllErrors(t *testing.T) {
	q, diags := Compile(lex(t, "SELECT # , #name FROM t WHERE a = #1 AND b = #"))

	assert.Equal(t, []ir.Code{
		ir.CodeExpectedPlaceholderName,
		ir.CodeExpectedPlaceholderName,
		ir.CodeExpectedPlaceholderName,
	}, diags.Codes())
	assert.Equal(t, []string{"name"}, q.Placeholders)
	assert.Equal(t, "SELECT , $1 FROM t WHERE a = 1 AND b =", q.Text)
}

func TestCompile_UndelimitedGroup(t *testing.T) {
	at := queryir.Position{Filename: "q.sql", Line: 1, Column: 8}
	tokens := []queryir.Token{
		queryir.Ident{Name: "SELECT"},
		queryir.Group{Delim: queryir.DelimNone, At: at, Tokens: []queryir.Token{
			queryir.Ident{Name: "a"},
			queryir.Punct{Char: '#'},
		}},
		queryir.Marker{Name: "b"},
	}

	q, diags := Compile(tokens)
	assert.Equal(t, []ir.Code{ir.CodeUndelimitedGroup, ir.CodeExpectedPlaceholderName}, diags.Codes())
	assert.Equal(t, at, diags[0].Pos)
	assert.Equal(t, "SELECT a $1", q.Text)
	assert.Equal(t, []string{"b"}, q.Placeholders)
}

func TestCompile_FallbackPosition(t *testing.T) {
	fallback := queryir.Position{Filename: "pets.cue", Line: 7, Column: 3}
	tokens := []queryir.Token{queryir.Ident{Name: "SELECT"}, queryir.Punct{Char: '#'}}

	_, diags := Compile(tokens, WithFallback(fallback))
	require.Len(t, diags, 1)
	assert.Equal(t, fallback, diags[0].Pos)
}

func TestCompile_Markers(t *testing.T) {
	tokens := []queryir.Token{
		queryir.Ident{Name: "a"},
		queryir.Punct{Char: '='},
		queryir.Marker{Name: "x"},
		queryir.Ident{Name: "AND"},
		queryir.Ident{Name: "b"},
		queryir.Punct{Char: '='},
		queryir.Punct{Char: ':'},
		queryir.Ident{Name: "y"},
	}

	q, diags := Compile(tokens, WithMarkers(':'))
	require.Empty(t, diags)
	assert.Equal(t, "a = $1 AND b = $2", q.Text)
	assert.Equal(t, []string{"x", "y"}, q.Placeholders)

	q, diags = Compile(lex(t, "WHERE a = #b"), WithMarkers(':'))
	require.Empty(t, diags)
	assert.Equal(t, "WHERE a = # b", q.Text)
	assert.Empty(t, q.Placeholders)
}

func TestCompile_NormalizesNames(t *testing.T) {
	composed := "caf" + string(rune(0x00e9))
	decomposed := "cafe" + string(rune(0x0301))
	tokens := []queryir.Token{
		queryir.Marker{Name: composed},
		queryir.Marker{Name: decomposed},
	}

	q, diags := Compile(tokens)
	require.Empty(t, diags)
	assert.Equal(t, "$1 $1", q.Text)
	assert.Equal(t, []string{composed}, q.Placeholders)
}

func TestCompile_EmptyMarkerName(t *testing.T) {
	_, diags := Compile([]queryir.Token{queryir.Marker{}})
	assert.True(t, diags.Has(ir.CodeExpectedPlaceholderName))
}

func TestCompile_DecomposedMarkerName(t *testing.T) {
	composed := "caf" + string(rune(0x00e9))
	tokens, errs := queryir.Lex("", "SELECT #cafe"+string(rune(0x0301)))
	require.Empty(t, errs)

	q, diags := Compile(tokens)
	require.Empty(t, diags)
	assert.Equal(t, "SELECT $1", q.Text)
	assert.Equal(t, []string{composed}, q.Placeholders)
}
