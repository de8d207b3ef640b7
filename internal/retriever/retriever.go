// Package retriever implements the Hybrid Retriever: dense vector search
// and BM25 sparse search fused by Reciprocal Rank Fusion, reranked by a
// cross-encoder, and capped for per-paper diversity.
package retriever

import (
	"context"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/scholarrag/zoterag/internal/bm25"
	"github.com/scholarrag/zoterag/internal/embedding"
	"github.com/scholarrag/zoterag/internal/predicate"
	"github.com/scholarrag/zoterag/internal/vectorstore"
)

// RRFConstant is the rrf_k term in the fusion formula.
const RRFConstant = 60.0

// Defaults for diversity capping; focus mode widens both.
const (
	DefaultMaxPerPaper = 3
	DefaultMaxSnippets = 6
	FocusedMaxPerPaper = 8
	FocusedMaxSnippets = 10
)

// Passage is one retrieved, reranked, diversity-capped snippet.
type Passage struct {
	ChunkID     string
	Text        string
	Metadata    vectorstore.Metadata
	RRFScore    float64
	RerankScore float64
}

// Options configures one retrieve call.
type Options struct {
	K             int
	Predicate     predicate.Predicate
	ModelID       string
	Focused       bool
	ContextLength int     // active LM's context length, 0 if unknown
	MaxPerPaper   int     // 0 selects the mode default
	MaxSnippets   int     // 0 selects the mode default
	RRFConstant   float64 // 0 selects RRFConstant
}

// Retriever bundles the collaborators a retrieve call needs.
type Retriever struct {
	Collection   *vectorstore.Collection
	BM25         *bm25.Store
	Embedder     *embedding.Adapter
	CrossEncoder embedding.CrossEncoder
}

// New constructs a Retriever. A nil CrossEncoder defaults to
// embedding.LexicalCrossEncoder{}.
func New(collection *vectorstore.Collection, bmStore *bm25.Store, embedder *embedding.Adapter, ce embedding.CrossEncoder) *Retriever {
	if ce == nil {
		ce = embedding.LexicalCrossEncoder{}
	}
	return &Retriever{Collection: collection, BM25: bmStore, Embedder: embedder, CrossEncoder: ce}
}

// contextMultiplier derives the focus-mode candidate-width multiplier
// from the active LM's context length.
func contextMultiplier(contextLength int) int {
	switch {
	case contextLength >= 1_000_000:
		return 5
	case contextLength >= 200_000:
		return 4
	case contextLength >= 100_000:
		return 3
	case contextLength >= 32_000:
		return 2
	default:
		return 1
	}
}

// Retrieve runs the full hybrid-retrieval pipeline and returns up to
// opts.MaxSnippets diversity-capped passages, most relevant first.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]Passage, error) {
	storePred, clientPred := predicate.Split(opts.Predicate)

	m := 2
	if clientPred != nil {
		m = 3
	}
	mult := 1
	if opts.Focused {
		mult = contextMultiplier(opts.ContextLength)
	}
	n := opts.K * m * mult
	if n <= 0 {
		n = opts.K
	}

	// Dense search (embed then query the vector store) and sparse BM25
	// search share no inputs besides the raw query text, so they run
	// concurrently: the slow leg is almost always the embedding call, and
	// there's no reason the in-process BM25 lookup should wait on it.
	var dense []vectorstore.QueryResult
	var sparseRaw []bm25.Result
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		queryVector, err := r.Embedder.Embed(gctx, query, opts.ModelID)
		if err != nil {
			return err
		}
		dense, err = r.Collection.Query(gctx, queryVector, n, storePred)
		return err
	})
	group.Go(func() error {
		var err error
		sparseRaw, err = r.BM25.Query(query, n)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	denseFiltered := make([]vectorstore.QueryResult, 0, len(dense))
	for _, d := range dense {
		if predicate.Matches(d.Metadata, clientPred) {
			denseFiltered = append(denseFiltered, d)
		}
	}

	sparseIDs := make([]string, len(sparseRaw))
	for i, s := range sparseRaw {
		sparseIDs[i] = s.ChunkID
	}
	gotIDs, gotDocs, gotMetas := r.Collection.Get(ctx, sparseIDs, nil, 0)
	metaByID := make(map[string]vectorstore.Metadata, len(gotIDs))
	docByID := make(map[string]string, len(gotIDs))
	for i, id := range gotIDs {
		metaByID[id] = gotMetas[i]
		docByID[id] = gotDocs[i]
	}
	sparseFiltered := make([]string, 0, len(sparseRaw))
	for _, s := range sparseRaw {
		meta, ok := metaByID[s.ChunkID]
		if !ok {
			continue
		}
		if predicate.Matches(meta, opts.Predicate) {
			sparseFiltered = append(sparseFiltered, s.ChunkID)
		}
	}

	rrfK := opts.RRFConstant
	if rrfK <= 0 {
		rrfK = RRFConstant
	}
	fusedIDs := fuse(denseFiltered, sparseFiltered, rrfK)
	if len(fusedIDs) > opts.K {
		fusedIDs = fusedIDs[:opts.K]
	}
	if len(fusedIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(fusedIDs))
	rrfScores := make(map[string]float64, len(fusedIDs))
	for i, f := range fusedIDs {
		ids[i] = f.id
		rrfScores[f.id] = f.score
	}

	finalIDs, finalDocs, finalMetas := r.Collection.Get(ctx, ids, nil, 0)
	// Collection.Get preserves the order of the requested ids, so
	// finalIDs already matches the RRF order save for any id it
	// couldn't find (deleted between fusion and fetch).
	if len(finalDocs) == 0 {
		return nil, nil
	}

	ranked, err := embedding.Rerank(ctx, r.CrossEncoder, query, finalDocs)
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, len(ranked))
	for i, rk := range ranked {
		id := finalIDs[rk.Index]
		passages[i] = Passage{
			ChunkID:     id,
			Text:        finalDocs[rk.Index],
			Metadata:    finalMetas[rk.Index],
			RRFScore:    rrfScores[id],
			RerankScore: rk.Score,
		}
	}

	return capDiversity(passages, maxPerPaper(opts), maxSnippets(opts)), nil
}

type fusedID struct {
	id    string
	score float64
}

// fuse combines dense and sparse ranked id lists by Reciprocal Rank
// Fusion, returning ids sorted by descending fused score. Ties are
// broken by first appearance in dense, then sparse — guaranteed by
// sort.SliceStable over an order-of-first-sight id list.
func fuse(dense []vectorstore.QueryResult, sparse []string, rrfK float64) []fusedID {
	scores := make(map[string]float64)
	var order []string
	seen := make(map[string]bool)

	for i, d := range dense {
		scores[d.ID] += 1.0 / (rrfK + float64(i+1))
		if !seen[d.ID] {
			seen[d.ID] = true
			order = append(order, d.ID)
		}
	}
	for i, id := range sparse {
		scores[id] += 1.0 / (rrfK + float64(i+1))
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}

	result := make([]fusedID, len(order))
	for i, id := range order {
		result[i] = fusedID{id: id, score: scores[id]}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].score > result[j].score
	})
	return result
}

func maxPerPaper(opts Options) int {
	if opts.MaxPerPaper > 0 {
		return opts.MaxPerPaper
	}
	if opts.Focused {
		return FocusedMaxPerPaper
	}
	return DefaultMaxPerPaper
}

func maxSnippets(opts Options) int {
	if opts.MaxSnippets > 0 {
		return opts.MaxSnippets
	}
	if opts.Focused {
		return FocusedMaxSnippets
	}
	return DefaultMaxSnippets
}

// capDiversity keeps at most perPaperCap passages sharing a (title, year)
// key, truncating to totalCap overall, preserving input order.
func capDiversity(passages []Passage, perPaperCap, totalCap int) []Passage {
	counts := make(map[string]int)
	out := make([]Passage, 0, totalCap)
	for _, p := range passages {
		key := paperKey(p.Metadata)
		if counts[key] >= perPaperCap {
			continue
		}
		counts[key]++
		out = append(out, p)
		if len(out) >= totalCap {
			break
		}
	}
	return out
}

func paperKey(meta vectorstore.Metadata) string {
	title, _ := meta["title"].(string)
	var year string
	if y, ok := meta["year"].(int); ok {
		year = strconv.Itoa(y)
	}
	return title + "\x00" + year
}
