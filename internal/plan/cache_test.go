package plan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/inlinesql/internal/querysql"
)

func TestCache_HitAndMiss(t *testing.T) {
	c, err := NewCache(2)
	require.NoError(t, err)

	s := spec(t, "pet_by_name", "Result<Option<Pet>, Error>", "SELECT * FROM pets WHERE name = #name", "name")

	p1, diags, hit := c.Get(s)
	require.Empty(t, diags)
	assert.False(t, hit)

	// Same content from a different source still hits.
	again := spec(t, "pet_by_name", "Result<Option<Pet>, Error>", "SELECT *\nFROM pets WHERE name = #name", "name")
	p2, _, hit := c.Get(again)
	assert.True(t, hit)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, c.Len())
}

func TestCache_SkipsPlansWithDiagnostics(t *testing.T) {
	c, err := NewCache(0)
	require.NoError(t, err)

	s := spec(t, "bad", "Result<Pet, Error>", "SELECT 1")
	_, diags, _ := c.Get(s)
	require.NotEmpty(t, diags)

	_, _, hit := c.Get(s)
	assert.False(t, hit)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Evicts(t *testing.T) {
	c, err := NewCache(2)
	require.NoError(t, err)

	a := spec(t, "a", "Result<(), E>", "SELECT 1")
	b := spec(t, "b", "Result<(), E>", "SELECT 2")
	d := spec(t, "d", "Result<(), E>", "SELECT 3")

	c.Get(a)
	c.Get(b)
	c.Get(d)
	assert.Equal(t, 2, c.Len())

	_, _, hit := c.Get(a)
	assert.False(t, hit, "least recently used entry should have been evicted")

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Concurrent(t *testing.T) {
	c, err := NewCache(16)
	require.NoError(t, err)
	s := spec(t, "shared", "Result<Vec<Pet>, E>", "SELECT * FROM pets")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, diags, _ := c.Get(s)
			assert.Empty(t, diags)
			assert.Equal(t, "SELECT * FROM pets", p.Query.Text)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}

func TestCache_CanonicallyEqualLiteralsDoNotShare(t *testing.T) {
	c, err := NewCache(4)
	require.NoError(t, err)

	composed := spec(t, "pet", "Result<Vec<Pet>, Error>", "SELECT * FROM pets WHERE name = 'caf\u00e9'")
	split := spec(t, "pet", "Result<Vec<Pet>, Error>", "SELECT * FROM pets WHERE name = 'cafe\u0301'")

	p1, diags, _ := c.Get(composed)
	require.Empty(t, diags)
	p2, diags, hit := c.Get(split)
	require.Empty(t, diags)

	assert.False(t, hit)
	assert.NotEqual(t, p1.Query.Text, p2.Query.Text)
	assert.Equal(t, "SELECT * FROM pets WHERE name = 'cafe\u0301'", p2.Query.Text)
}

func TestCache_KeysIncludeMarkers(t *testing.T) {
	s := spec(t, "delete_pet", "Result<u64, Error>", "DELETE FROM pets WHERE name = :name", "name")

	def, err := NewCache(4)
	require.NoError(t, err)
	colon, err := NewCache(4, querysql.WithMarkers(':'))
	require.NoError(t, err)

	p1, _, _ := def.Get(s)
	p2, _, _ := colon.Get(s)
	assert.NotEqual(t, p1.Fingerprint, p2.Fingerprint)

	again, _, hit := colon.Get(s)
	assert.True(t, hit)
	assert.Same(t, p2, again)
}
