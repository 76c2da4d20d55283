package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/inlinesql/internal/ir"
	"github.com/roach88/inlinesql/internal/plan"
	"github.com/roach88/inlinesql/internal/querysql"
	"github.com/roach88/inlinesql/internal/testutil"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func petByName(t *testing.T) *ir.ExecutionPlan {
	return testutil.Plan(t, "pet_by_name", "Result<Option<Pet>, Error>",
		"SELECT * FROM pets WHERE name = #name AND species <> '<none>'", "name")
}

func TestSavePlan_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := petByName(t)

	changed, err := s.SavePlan(ctx, p)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := s.LoadPlan(ctx, "pet_by_name")
	require.NoError(t, err)
	assert.Equal(t, p.Query, got.Query)
	assert.Equal(t, p.Bindings, got.Bindings)
	assert.Equal(t, p.Rows, got.Rows)
	assert.Equal(t, p.Errors, got.Errors)
	assert.Equal(t, p.Fingerprint, got.Fingerprint)
	assert.Equal(t, "Optional(Pet)", got.Shape.String())

	var stored string
	require.NoError(t, s.db.QueryRow(`SELECT plan FROM plans`).Scan(&stored))
	assert.Contains(t, stored, "'<none>'", "query text must not be HTML-escaped")
}

func TestSavePlan_UnchangedIsNoop(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := petByName(t)

	_, err := s.SavePlan(ctx, p)
	require.NoError(t, err)

	changed, err := s.SavePlan(ctx, p)
	require.NoError(t, err)
	assert.False(t, changed)

	list, err := s.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].Seq)
}

func TestSavePlan_NewFingerprintBumpsSeq(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	count := testutil.Plan(t, "count_pets", "Result<u64, Error>", "DELETE FROM pets")
	_, err := s.SavePlan(ctx, count)
	require.NoError(t, err)
	_, err = s.SavePlan(ctx, petByName(t))
	require.NoError(t, err)

	edited := testutil.Plan(t, "count_pets", "Result<u64, Error>", "DELETE FROM pets WHERE owner = #owner", "owner")
	require.NotEqual(t, count.Fingerprint, edited.Fingerprint)

	changed, err := s.SavePlan(ctx, edited)
	require.NoError(t, err)
	assert.True(t, changed)

	fp, err := s.Fingerprint(ctx, "count_pets")
	require.NoError(t, err)
	assert.Equal(t, edited.Fingerprint, fp)

	list, err := s.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "count_pets", list[0].Function)
	assert.Equal(t, int64(3), list[0].Seq)
	assert.Equal(t, ir.OpExecute, list[0].Call)
	assert.Equal(t, "RowCount", list[0].Shape)
	assert.Equal(t, "DELETE FROM pets WHERE owner = $1", list[0].Query)
	assert.Equal(t, "pet_by_name", list[1].Function)
	assert.Equal(t, int64(2), list[1].Seq)
}

func TestSavePlans_Transaction(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := testutil.Plan(t, "a", "Result<(), Error>", "SELECT 1")
	b := testutil.Plan(t, "b", "Result<(), Error>", "SELECT 2")
	bad := testutil.Plan(t, "c", "Result<(), Error>", "SELECT 3")
	bad.Fingerprint = ""

	_, err := s.SavePlans(ctx, []*ir.ExecutionPlan{a, b, bad})
	require.ErrorIs(t, err, ErrNoFingerprint)

	list, err := s.ListPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "failed batch must not leave partial writes")

	n, err := s.SavePlans(ctx, []*ir.ExecutionPlan{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.SavePlans(ctx, []*ir.ExecutionPlan{a, b})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadPlan_NotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.LoadPlan(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Fingerprint(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePlan(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.SavePlan(ctx, petByName(t))
	require.NoError(t, err)

	deleted, err := s.DeletePlan(ctx, "pet_by_name")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeletePlan(ctx, "pet_by_name")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListPlans_EmptyIsNotNil(t *testing.T) {
	s := setupTestStore(t)

	list, err := s.ListPlans(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestSavePlan_MarkerChangeReplacesPlan(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	spec := testutil.FunctionSpec(t, "delete_pet", "Result<u64, Error>", "DELETE FROM pets WHERE name = :name", "name")

	before, diags := plan.Compile(spec)
	require.Empty(t, diags)
	changed, err := s.SavePlan(ctx, before)
	require.NoError(t, err)
	require.True(t, changed)

	after, diags := plan.Compile(spec, querysql.WithMarkers(':'))
	require.Empty(t, diags)
	changed, err = s.SavePlan(ctx, after)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := s.LoadPlan(ctx, "delete_pet")
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM pets WHERE name = $1", got.Query.Text)
	assert.Equal(t, []string{"name"}, got.Query.Placeholders)
}
