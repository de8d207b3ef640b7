package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarrag/zoterag/internal/bm25"
	"github.com/scholarrag/zoterag/internal/catalog"
	"github.com/scholarrag/zoterag/internal/embedding"
	"github.com/scholarrag/zoterag/internal/pdfextract"
	"github.com/scholarrag/zoterag/internal/vectorstore"
)

type fakeCatalogue struct {
	items []catalog.Item
}

func (f *fakeCatalogue) ItemsWithPDFs(ctx context.Context) ([]catalog.Item, error) { return f.items, nil }
func (f *fakeCatalogue) AllTags(ctx context.Context) ([]string, error)             { return nil, nil }
func (f *fakeCatalogue) AllCollections(ctx context.Context) ([]catalog.NamedCount, error) {
	return nil, nil
}
func (f *fakeCatalogue) AllItemTypes(ctx context.Context) ([]catalog.NamedCount, error) {
	return nil, nil
}
func (f *fakeCatalogue) Close() error { return nil }

type fakeExtractor struct {
	pages map[string][]pdfextract.Page
}

func (f *fakeExtractor) Pages(path string) ([]pdfextract.Page, error) {
	pages, ok := f.pages[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return pages, nil
}

func fakeEmbedFactory(modelID string, spec embedding.ModelSpec) (embedding.Backend, error) {
	return fakeBackendStub{dim: spec.Dimension}, nil
}

type fakeBackendStub struct{ dim int }

func (b fakeBackendStub) Encode(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, b.dim)
	for i := range v {
		v[i] = float32(len(text)%7) + 0.1
	}
	return v, nil
}

func newTestIndexer(t *testing.T, items []catalog.Item, pages map[string][]pdfextract.Page) (*Indexer, *vectorstore.Collection, *bm25.Store) {
	t.Helper()
	dir := t.TempDir()

	embedder := embedding.NewAdapter(fakeEmbedFactory, nil)
	embedder.RegisterModel("test-model", embedding.ModelSpec{BackendModelName: "test", Dimension: 3})

	store := vectorstore.NewInMemory(nil)
	col, err := store.Collection(context.Background(), "zotero_lib_test-model", 3, func(ctx context.Context, text string) ([]float32, error) {
		return []float32{0, 0, 0}, nil
	})
	require.NoError(t, err)

	bmStore := bm25.NewStore(filepath.Join(dir, "bm25.json"))

	deps := Deps{
		Catalogue:  &fakeCatalogue{items: items},
		Extractor:  &fakeExtractor{pages: pages},
		Embedder:   embedder,
		ModelID:    "test-model",
		Collection: col,
		BM25:       bmStore,
	}
	idx := New(deps, filepath.Join(dir, "indexing.lock"), nil)
	return idx, col, bmStore
}

func waitForCompletion(t *testing.T, idx *Indexer) Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := idx.Status()
		if !s.InProgress {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("indexing job did not complete in time")
	return Status{}
}

func makePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0644))
	return path
}

func TestFullIndexingWritesChunksAndRebuildsBM25(t *testing.T) {
	dir := t.TempDir()
	path := makePDF(t, dir, "paper.pdf")
	items := []catalog.Item{
		{ItemID: "item-1", Title: "Attention Is All You Need", Year: 2017, ItemType: "conferencePaper", PDFPath: path},
	}
	pages := map[string][]pdfextract.Page{
		path: {{PageNum: 1, Text: "Transformers rely entirely on attention mechanisms. They dispense with recurrence and convolutions."}},
	}
	idx, col, bmStore := newTestIndexer(t, items, pages)

	idx.Start(context.Background(), ModeFull)
	status := waitForCompletion(t, idx)

	assert.Equal(t, 1, status.ProcessedItems)
	assert.Equal(t, 0, status.SkippedItems)
	assert.Greater(t, col.Count(), 0)

	bm, err := bmStore.Get()
	require.NoError(t, err)
	require.NotNil(t, bm)
	assert.Greater(t, bm.Count(), 0)
}

func TestSkipsItemWithMissingFile(t *testing.T) {
	items := []catalog.Item{
		{ItemID: "item-missing", Title: "Ghost Paper", PDFPath: "/nonexistent/path.pdf"},
	}
	idx, _, _ := newTestIndexer(t, items, nil)

	idx.Start(context.Background(), ModeFull)
	status := waitForCompletion(t, idx)

	assert.Equal(t, 1, status.SkippedItems)
	require.Len(t, status.SkipReasons, 1)
	assert.Contains(t, status.SkipReasons[0], "file missing")
}

func TestSkipsItemWithEmptyExtractedText(t *testing.T) {
	dir := t.TempDir()
	path := makePDF(t, dir, "empty.pdf")
	items := []catalog.Item{{ItemID: "item-empty", PDFPath: path}}
	pages := map[string][]pdfextract.Page{path: {{PageNum: 1, Text: ""}}}
	idx, _, _ := newTestIndexer(t, items, pages)

	idx.Start(context.Background(), ModeFull)
	status := waitForCompletion(t, idx)

	assert.Equal(t, 1, status.SkippedItems)
	assert.Contains(t, status.SkipReasons[0], "empty text")
}

func TestIncrementalModeSkipsAlreadyIndexedItems(t *testing.T) {
	dir := t.TempDir()
	path1 := makePDF(t, dir, "a.pdf")
	path2 := makePDF(t, dir, "b.pdf")
	items := []catalog.Item{
		{ItemID: "item-1", PDFPath: path1},
		{ItemID: "item-2", PDFPath: path2},
	}
	pages := map[string][]pdfextract.Page{
		path1: {{PageNum: 1, Text: "Some text about transformers and attention."}},
		path2: {{PageNum: 1, Text: "Some other text about recurrent networks."}},
	}
	idx, col, _ := newTestIndexer(t, items, pages)

	idx.Start(context.Background(), ModeFull)
	waitForCompletion(t, idx)
	require.True(t, col.IndexedItemIDs()["item-1"])

	idx2, _, _ := newTestIndexer(t, items, pages)
	idx2.deps.Collection = col
	idx2.Start(context.Background(), ModeIncremental)
	status := waitForCompletion(t, idx2)
	assert.Equal(t, 0, status.ProcessedItems)
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	items := []catalog.Item{{ItemID: "item-1", PDFPath: "/nonexistent.pdf"}}
	idx, _, _ := newTestIndexer(t, items, nil)

	idx.Start(context.Background(), ModeFull)
	idx.Start(context.Background(), ModeFull)
	waitForCompletion(t, idx)
}

func TestCancelStopsJobBetweenItems(t *testing.T) {
	dir := t.TempDir()
	path := makePDF(t, dir, "paper.pdf")
	items := []catalog.Item{
		{ItemID: "item-1", PDFPath: path},
		{ItemID: "item-2", PDFPath: path},
	}
	pages := map[string][]pdfextract.Page{
		path: {{PageNum: 1, Text: "Attention mechanisms process sequences without recurrence at all."}},
	}
	idx, _, _ := newTestIndexer(t, items, pages)

	idx.Start(context.Background(), ModeFull)
	idx.Cancel()
	waitForCompletion(t, idx)
}
