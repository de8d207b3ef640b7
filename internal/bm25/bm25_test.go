package bm25

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocs() []Doc {
	return []Doc{
		{ID: "1:0", Text: "Transformers are a neural network architecture for sequence modeling."},
		{ID: "1:1", Text: "Attention mechanisms let transformers weigh relevant tokens."},
		{ID: "2:0", Text: "Recurrent networks process sequences step by step."},
	}
}

func TestQueryOnlyReturnsPositiveScores(t *testing.T) {
	idx := New()
	idx.Build(sampleDocs())

	results := idx.Query("transformers attention", 10)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
	}
}

func TestQuerySortedDescending(t *testing.T) {
	idx := New()
	idx.Build(sampleDocs())

	results := idx.Query("transformers attention", 10)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestQueryRespectsTopK(t *testing.T) {
	idx := New()
	idx.Build(sampleDocs())

	results := idx.Query("transformers sequence networks", 1)
	assert.Len(t, results, 1)
}

func TestEmptyIndexReturnsNoResults(t *testing.T) {
	idx := New()
	assert.Empty(t, idx.Query("anything", 5))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := New()
	idx.Build(sampleDocs())

	path := filepath.Join(t.TempDir(), "bm25_index.json")
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, idx.TotalDocs, loaded.TotalDocs)
	assert.Equal(t, idx.Query("transformers", 10), loaded.Query("transformers", 10))
}

func TestStoreDegradesGracefullyWhenFileAbsent(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	results, err := store.Query("anything", 5)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestStoreMemoizesAfterReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25_index.json")
	store := NewStore(path)

	idx := New()
	idx.Build(sampleDocs())
	require.NoError(t, store.Replace(idx))

	results, err := store.Query("transformers", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestBuildIsFullRebuild(t *testing.T) {
	idx := New()
	idx.Build(sampleDocs())
	assert.Equal(t, 3, idx.Count())

	idx.Build([]Doc{{ID: "only", Text: "one document now"}})
	assert.Equal(t, 1, idx.Count())
}
