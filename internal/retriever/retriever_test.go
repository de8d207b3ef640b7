package retriever

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarrag/zoterag/internal/bm25"
	"github.com/scholarrag/zoterag/internal/embedding"
	"github.com/scholarrag/zoterag/internal/predicate"
	"github.com/scholarrag/zoterag/internal/vectorstore"
)

type fakeEmbedBackend struct {
	vectors map[string][]float32
}

func (f fakeEmbedBackend) Encode(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0}, nil
}

func setup(t *testing.T) (*Retriever, *vectorstore.Collection, *bm25.Store) {
	t.Helper()
	dir := t.TempDir()

	backend := fakeEmbedBackend{vectors: map[string][]float32{
		"attention transformers": {1, 0, 0},
	}}
	embedder := embedding.NewAdapter(func(modelID string, spec embedding.ModelSpec) (embedding.Backend, error) {
		return backend, nil
	}, nil)
	embedder.RegisterModel("test-model", embedding.ModelSpec{BackendModelName: "test", Dimension: 3})

	store := vectorstore.NewInMemory(nil)
	col, err := store.Collection(context.Background(), "zotero_lib_test-model", 3, func(ctx context.Context, text string) ([]float32, error) {
		return []float32{0, 0, 0}, nil
	})
	require.NoError(t, err)

	require.NoError(t, col.Add(context.Background(),
		[]string{"item-1:0", "item-1:1", "item-2:0", "item-3:0"},
		[]string{
			"transformers rely entirely on attention mechanisms for sequence modeling",
			"attention mechanisms let transformers skip recurrence entirely",
			"recurrent networks process sequences step by step",
			"diffusion models generate images through iterative denoising",
		},
		[]vectorstore.Metadata{
			{"item_id": "item-1", "title": "Attention Is All You Need", "year": 2017, "item_type": "conferencePaper", "tags": "nlp|transformers"},
			{"item_id": "item-1", "title": "Attention Is All You Need", "year": 2017, "item_type": "conferencePaper", "tags": "nlp|transformers"},
			{"item_id": "item-2", "title": "Recurrent Sequence Models", "year": 2014, "item_type": "journalArticle", "tags": "rnn"},
			{"item_id": "item-3", "title": "Denoising Diffusion", "year": 2020, "item_type": "conferencePaper", "tags": "vision"},
		},
		[][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}, {0, 0, 1}},
	))

	bmStore := bm25.NewStore(filepath.Join(dir, "bm25.json"))
	bmIdx := bm25.New()
	bmIdx.Build([]bm25.Doc{
		{ID: "item-1:0", Text: "transformers rely entirely on attention mechanisms for sequence modeling"},
		{ID: "item-1:1", Text: "attention mechanisms let transformers skip recurrence entirely"},
		{ID: "item-2:0", Text: "recurrent networks process sequences step by step"},
		{ID: "item-3:0", Text: "diffusion models generate images through iterative denoising"},
	})
	require.NoError(t, bmStore.Replace(bmIdx))

	return New(col, bmStore, embedder, nil), col, bmStore
}

func TestRetrieveReturnsRelevantPassages(t *testing.T) {
	r, _, _ := setup(t)
	passages, err := r.Retrieve(context.Background(), "attention transformers", Options{K: 4, ModelID: "test-model"})
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	assert.Equal(t, "item-1", passages[0].Metadata["item_id"])
}

func TestRetrieveAppliesPredicateFilter(t *testing.T) {
	r, _, _ := setup(t)
	pred := predicate.Predicate{"item_type": map[string]any{"$eq": "journalArticle"}}
	passages, err := r.Retrieve(context.Background(), "attention transformers", Options{K: 4, ModelID: "test-model", Predicate: pred})
	require.NoError(t, err)
	for _, p := range passages {
		assert.Equal(t, "journalArticle", p.Metadata["item_type"])
	}
}

func TestRetrieveDiversityCapsSnippetsPerPaper(t *testing.T) {
	r, _, _ := setup(t)
	passages, err := r.Retrieve(context.Background(), "attention transformers", Options{K: 4, ModelID: "test-model", MaxPerPaper: 1, MaxSnippets: 10})
	require.NoError(t, err)
	seen := map[string]int{}
	for _, p := range passages {
		seen[p.Metadata["item_id"].(string)]++
	}
	for id, count := range seen {
		assert.LessOrEqual(t, count, 1, "item %s exceeded max_per_paper", id)
	}
}

func TestRetrieveFocusedModeWidensCaps(t *testing.T) {
	assert.Equal(t, FocusedMaxPerPaper, maxPerPaper(Options{Focused: true}))
	assert.Equal(t, FocusedMaxSnippets, maxSnippets(Options{Focused: true}))
	assert.Equal(t, DefaultMaxPerPaper, maxPerPaper(Options{}))
	assert.Equal(t, DefaultMaxSnippets, maxSnippets(Options{}))
}

func TestContextMultiplierThresholds(t *testing.T) {
	assert.Equal(t, 1, contextMultiplier(0))
	assert.Equal(t, 2, contextMultiplier(32_000))
	assert.Equal(t, 3, contextMultiplier(100_000))
	assert.Equal(t, 4, contextMultiplier(200_000))
	assert.Equal(t, 5, contextMultiplier(1_000_000))
}

func TestFuseOrdersByRRFScore(t *testing.T) {
	dense := []vectorstore.QueryResult{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	sparse := []string{"b", "a", "d"}
	fused := fuse(dense, sparse, RRFConstant)
	require.Len(t, fused, 4)
	assert.Equal(t, "a", fused[0].id)
	assert.Equal(t, "b", fused[1].id)
}
