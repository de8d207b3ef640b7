package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarrag/zoterag/internal/predicate"
)

func noopEmbed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0, 0, 0}, nil
}

func testCollection(t *testing.T) *Collection {
	t.Helper()
	store := NewInMemory(nil)
	col, err := store.Collection(context.Background(), "zotero_lib_test-model", 3, noopEmbed)
	require.NoError(t, err)
	return col
}

func seed(t *testing.T, col *Collection) {
	t.Helper()
	err := col.Add(context.Background(),
		[]string{"c1", "c2", "c3"},
		[]string{"attention is all you need", "recurrent nets for sequences", "diffusion models for images"},
		[]Metadata{
			{"item_id": "item-1", "year": 2017, "item_type": "conferencePaper"},
			{"item_id": "item-2", "year": 2014, "item_type": "journalArticle"},
			{"item_id": "item-3", "year": 2020, "item_type": "conferencePaper"},
		},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	)
	require.NoError(t, err)
}

func TestAddRejectsMismatchedLengths(t *testing.T) {
	col := testCollection(t)
	err := col.Add(context.Background(), []string{"a"}, []string{"x"}, []Metadata{{}}, nil)
	assert.Error(t, err)
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	col := testCollection(t)
	err := col.Add(context.Background(), []string{"a"}, []string{"x"}, []Metadata{{}}, [][]float32{{1, 2}})
	assert.Error(t, err)
}

func TestAddRejectsDuplicateIDs(t *testing.T) {
	col := testCollection(t)
	err := col.Add(context.Background(),
		[]string{"a", "a"}, []string{"x", "y"}, []Metadata{{}, {}}, [][]float32{{1, 0, 0}, {0, 1, 0}})
	assert.Error(t, err)
}

func TestGetByIDs(t *testing.T) {
	col := testCollection(t)
	seed(t, col)
	ids, docs, metas := col.Get(context.Background(), []string{"c2"}, nil, 0)
	require.Len(t, ids, 1)
	assert.Equal(t, "c2", ids[0])
	assert.Equal(t, "recurrent nets for sequences", docs[0])
	assert.Equal(t, "item-2", metas[0]["item_id"])
}

func TestGetByPredicate(t *testing.T) {
	col := testCollection(t)
	seed(t, col)
	p := predicate.Predicate{"item_type": map[string]any{"$eq": "conferencePaper"}}
	ids, _, _ := col.Get(context.Background(), nil, p, 0)
	assert.ElementsMatch(t, []string{"c1", "c3"}, ids)
}

func TestGetRespectsLimit(t *testing.T) {
	col := testCollection(t)
	seed(t, col)
	ids, _, _ := col.Get(context.Background(), nil, nil, 2)
	assert.Len(t, ids, 2)
}

func TestQueryFiltersByPredicateAfterSimilaritySearch(t *testing.T) {
	col := testCollection(t)
	seed(t, col)
	p := predicate.Predicate{"year": map[string]any{"$gte": 2017}}
	results, err := col.Query(context.Background(), []float32{1, 0, 0}, 3, p)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Metadata["year"], 2017)
	}
}

func TestQueryRejectsWrongDimension(t *testing.T) {
	col := testCollection(t)
	_, err := col.Query(context.Background(), []float32{1, 0}, 3, nil)
	assert.Error(t, err)
}

func TestDeleteRemovesFromShadowAndStore(t *testing.T) {
	col := testCollection(t)
	seed(t, col)
	require.NoError(t, col.Delete(context.Background(), []string{"c1"}))
	ids, _, _ := col.Get(context.Background(), nil, nil, 0)
	assert.NotContains(t, ids, "c1")
	assert.Equal(t, 2, col.Count())
}

func TestDeleteByPredicate(t *testing.T) {
	col := testCollection(t)
	seed(t, col)
	p := predicate.Predicate{"item_type": map[string]any{"$eq": "conferencePaper"}}
	require.NoError(t, col.DeleteBy(context.Background(), p))
	ids, _, _ := col.Get(context.Background(), nil, nil, 0)
	assert.ElementsMatch(t, []string{"c2"}, ids)
}

func TestIndexedItemIDs(t *testing.T) {
	col := testCollection(t)
	seed(t, col)
	ids := col.IndexedItemIDs()
	assert.True(t, ids["item-1"])
	assert.True(t, ids["item-2"])
	assert.True(t, ids["item-3"])
	assert.Len(t, ids, 3)
}

func TestCount(t *testing.T) {
	col := testCollection(t)
	assert.Equal(t, 0, col.Count())
	seed(t, col)
	assert.Equal(t, 3, col.Count())
}
