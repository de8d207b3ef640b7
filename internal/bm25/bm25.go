// Package bm25 implements the sparse keyword index that runs alongside
// the vector store: a classical BM25 ranking function over lowercase,
// whitespace-tokenized chunk text, persisted as a single JSON file and
// rebuilt in full after each indexing job.
package bm25

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
)

// Parameters controls BM25 term-frequency saturation (K1) and document
// length normalization (B).
type Parameters struct {
	K1 float64
	B  float64
}

// DefaultParameters returns the standard BM25 tuning: K1=1.5, B=0.75.
func DefaultParameters() Parameters {
	return Parameters{K1: 1.5, B: 0.75}
}

// Doc is one document handed to Build: a chunk id and its verbatim text.
type Doc struct {
	ID   string
	Text string
}

// Result is a scored match returned by Query. Only scores > 0 are
// returned, sorted descending.
type Result struct {
	ChunkID string
	Score   float64
}

// Index is a thread-safe, file-persistable BM25 index.
type Index struct {
	mu sync.RWMutex

	TermFreq     map[string]map[string]int `json:"term_freq"`
	DocFreq      map[string]int            `json:"doc_freq"`
	DocLength    map[string]int            `json:"doc_length"`
	AvgDocLength float64                   `json:"avg_doc_length"`
	TotalDocs    int                       `json:"total_docs"`
	Params       Parameters                `json:"params"`
}

// New returns an empty index with default parameters.
func New() *Index {
	return &Index{
		TermFreq:  make(map[string]map[string]int),
		DocFreq:   make(map[string]int),
		DocLength: make(map[string]int),
		Params:    DefaultParameters(),
	}
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Build performs a full rebuild of the index from the given documents,
// discarding any prior state.
func (idx *Index) Build(docs []Doc) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.TermFreq = make(map[string]map[string]int, len(docs))
	idx.DocFreq = make(map[string]int)
	idx.DocLength = make(map[string]int, len(docs))
	idx.TotalDocs = 0

	var totalLength int
	for _, d := range docs {
		terms := tokenize(d.Text)
		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		idx.TermFreq[d.ID] = tf
		idx.DocLength[d.ID] = len(terms)
		totalLength += len(terms)
		for term := range tf {
			idx.DocFreq[term]++
		}
		idx.TotalDocs++
	}
	if idx.TotalDocs > 0 {
		idx.AvgDocLength = float64(totalLength) / float64(idx.TotalDocs)
	} else {
		idx.AvgDocLength = 0
	}
}

// Query scores every indexed document against the query text and returns
// the top k matches with a strictly positive score, descending.
func (idx *Index) Query(queryText string, k int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.TotalDocs == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for _, term := range tokenize(queryText) {
		df, ok := idx.DocFreq[term]
		if !ok || df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(idx.TotalDocs)-float64(df)+0.5)/(float64(df)+0.5))
		for docID, docTerms := range idx.TermFreq {
			tf, ok := docTerms[term]
			if !ok {
				continue
			}
			docLen := float64(idx.DocLength[docID])
			numerator := float64(tf) * (idx.Params.K1 + 1)
			denominator := float64(tf) + idx.Params.K1*(1-idx.Params.B+idx.Params.B*docLen/idx.AvgDocLength)
			scores[docID] += idf * numerator / denominator
		}
	}

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		if score > 0 {
			results = append(results, Result{ChunkID: id, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.TotalDocs
}

// Save writes the index to path as JSON.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	data, err := json.Marshal(idx)
	idx.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads an index previously written by Save. A missing file is
// returned as the os.ReadFile error; the Store below interprets that
// error as "no sparse index yet" and degrades to dense-only retrieval.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	idx := New()
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Store memoizes a file-backed Index, loading it lazily on first use and
// caching it in-process thereafter. It is safe for concurrent use.
type Store struct {
	path string

	mu     sync.Mutex
	loaded bool
	idx    *Index
}

// NewStore returns a Store backed by the index file at path. Nothing is
// read from disk until Get is first called.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Get returns the memoized index, loading it from disk on first call. If
// the file does not exist, Get returns (nil, nil): the caller should
// treat this as "sparse retrieval unavailable" rather than an error.
func (s *Store) Get() (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.idx, nil
	}

	idx, err := Load(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			s.idx = nil
			return nil, nil
		}
		return nil, err
	}
	s.loaded = true
	s.idx = idx
	return idx, nil
}

// Replace swaps in a freshly built index, persists it to disk, and
// updates the in-process memoization. Called by the indexer after a bulk
// write completes.
func (s *Store) Replace(idx *Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := idx.Save(s.path); err != nil {
		return err
	}
	s.idx = idx
	s.loaded = true
	return nil
}

// Query is a convenience wrapper: it loads the index (if not already
// loaded) and queries it, returning an empty result set if no index file
// exists yet.
func (s *Store) Query(queryText string, k int) ([]Result, error) {
	idx, err := s.Get()
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, nil
	}
	return idx.Query(queryText, k), nil
}
