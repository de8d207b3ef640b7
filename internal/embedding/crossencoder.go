// Cross-encoder passage reranking. No pure-Go cross-encoder inference
// library exists in the example corpus, so the default CrossEncoder is a
// CPU-bound lexical scorer (normalized term overlap) honoring the same
// (query, passage)-pair contract a real cross-encoder would — callers can
// supply a different CrossEncoder (e.g. one that shells out to a local
// reranker server) without changing Rerank's interface.
package embedding

import (
	"context"
	"sort"
	"strings"
)

// CrossEncoder scores each passage jointly against the query. Index i of
// the result corresponds to passages[i].
type CrossEncoder interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// RankedPassage is one reranked result: the original index into the input
// passages slice, and its score.
type RankedPassage struct {
	Index int
	Score float64
}

// LexicalCrossEncoder scores (query, passage) pairs by normalized term
// overlap: |terms(query) ∩ terms(passage)| / |terms(query)|.
type LexicalCrossEncoder struct{}

// Score implements CrossEncoder.
func (LexicalCrossEncoder) Score(_ context.Context, query string, passages []string) ([]float64, error) {
	queryTerms := termSet(query)
	scores := make([]float64, len(passages))
	if len(queryTerms) == 0 {
		return scores, nil
	}
	for i, p := range passages {
		passageTerms := termSet(p)
		overlap := 0
		for t := range queryTerms {
			if passageTerms[t] {
				overlap++
			}
		}
		scores[i] = float64(overlap) / float64(len(queryTerms))
	}
	return scores, nil
}

func termSet(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		terms[w] = true
	}
	return terms
}

// Rerank scores passages against query with the given CrossEncoder and
// returns them sorted by score descending.
func Rerank(ctx context.Context, ce CrossEncoder, query string, passages []string) ([]RankedPassage, error) {
	scores, err := ce.Score(ctx, query, passages)
	if err != nil {
		return nil, err
	}
	ranked := make([]RankedPassage, len(passages))
	for i, s := range scores {
		ranked[i] = RankedPassage{Index: i, Score: s}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, nil
}
