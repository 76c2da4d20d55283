package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/inlinesql/internal/ir"
)

const petsYAML = `functions:
  - name: pets_by_species
    params:
      - name: client
      - name: species
        type: "&str"
    returns: Result<Vec<Pet>, Error>
    map_row: pet_from_row
    query: |
      SELECT * FROM pets
      WHERE species = #species
  - name: count_pets
    returns: "Result<u64, Error>"
    query: "DELETE FROM pets WHERE owner = $owner"
`

func TestCompileYAML_Functions(t *testing.T) {
	fns, errs := CompileYAML("pets.yaml", []byte(petsYAML))
	require.Empty(t, errs)
	require.Len(t, fns, 2)

	list := fns[0].Spec
	assert.Empty(t, fns[0].Diagnostics)
	assert.Equal(t, "pets_by_species", list.Name)
	assert.Equal(t, []ir.Param{{Name: "client"}, {Name: "species", Type: "&str"}}, list.Params)
	assert.Equal(t, "Result<Vec<Pet>, Error>", list.Returns.String())
	assert.Equal(t, "pet_from_row", list.MapRow)
	assert.Equal(t, 2, list.Pos.Line)
	assert.Equal(t, 11, list.Pos.Column)

	// Block scalar content starts on the line after the indicator.
	assert.Equal(t, 10, list.Template[0].Pos().Line)
	assert.Equal(t, 11, list.Template[len(list.Template)-1].Pos().Line)

	count := fns[1].Spec
	assert.Equal(t, 14, count.Template[0].Pos().Line)
	assert.Equal(t, 13, count.Template[0].Pos().Column)
	assert.Equal(t, 15, count.Returns.Pos.Column)
}

func TestCompileYAML_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"unknown field", "functions:\n  - name: f\n    query: x\n    mapper: y\n", "mapper"},
		{"missing name", "functions:\n  - query: x\n", "name is required"},
		{"missing query", "functions:\n  - name: f\n", "query is required"},
		{"duplicate param", "functions:\n  - name: f\n    params: [{name: a}, {name: a}]\n    query: x\n", "duplicate parameter"},
		{"not yaml", "functions: [", "pets.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fns, errs := CompileYAML("pets.yaml", []byte(tt.src))
			assert.Empty(t, fns)
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.wantErr)
		})
	}
}

func TestCompileYAML_Empty(t *testing.T) {
	fns, errs := CompileYAML("empty.yaml", nil)
	assert.Empty(t, fns)
	assert.Empty(t, errs)
}

func TestCompileFile_DispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()

	cuePath := filepath.Join(dir, "pets.cue")
	require.NoError(t, os.WriteFile(cuePath, []byte(petsCUE), 0o644))
	yamlPath := filepath.Join(dir, "pets.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(petsYAML), 0o644))
	txtPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o644))

	fns, errs := CompileFile(cuePath)
	require.Empty(t, errs)
	assert.Len(t, fns, 2)

	fns, errs = CompileFile(yamlPath)
	require.Empty(t, errs)
	assert.Len(t, fns, 2)

	_, errs = CompileFile(txtPath)
	require.Len(t, errs, 1)
	assert.False(t, IsSpecFile(txtPath))
	assert.True(t, IsSpecFile(yamlPath))

	_, errs = CompileFile(filepath.Join(dir, "missing.cue"))
	require.Len(t, errs, 1)
}
