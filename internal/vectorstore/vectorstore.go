// Package vectorstore implements the Vector Store Client over
// philippgille/chromem-go, the same embedded pure-Go vector database the
// teacher framework used, but driven by our own Embedding Adapter instead
// of chromem's built-in OpenAI embedding function.
//
// chromem-go's metadata values are flat strings and its query-time "where"
// filter only matches string equality — far less expressive than the
// store-native operator set ($eq/$ne/$gt/$gte/$lt/$lte/$in/$nin) the
// predicate engine assumes a vector store can push down. Rather than
// pretend chromem supports operators it doesn't, this client keeps its
// own in-memory shadow index of (id → metadata, document) alongside
// chromem's vector index, and evaluates every predicate — store part and
// client part alike — against that shadow with the predicate engine's
// generic matcher. chromem itself is used for what it's good at: the ANN
// vector query.
package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/scholarrag/zoterag/internal/logging"
	"github.com/scholarrag/zoterag/internal/predicate"
	"github.com/scholarrag/zoterag/internal/zerrors"
)

// Metadata is a flat scalar metadata map for one chunk.
type Metadata map[string]any

// EmbedFunc matches chromem.EmbeddingFunc; collections are created with
// one so chromem can embed ad hoc query text if ever asked to, even
// though this client always supplies pre-computed vectors.
type EmbedFunc = chromem.EmbeddingFunc

// integer-valued metadata fields, converted back from chromem's string
// storage on read.
var intFields = map[string]bool{
	"chunk_idx": true,
	"page":      true,
	"year":      true,
}

func metadataToChromem(m Metadata) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func chromemToMetadata(m map[string]string) Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		if intFields[k] {
			if n, err := strconv.Atoi(v); err == nil {
				out[k] = n
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Store wraps a chromem.DB and hands out Collections, one per embedding
// model id per the spec's "zotero_lib_<model_id>" naming convention.
type Store struct {
	db  *chromem.DB
	log logging.Logger

	mu          sync.Mutex
	collections map[string]*Collection
}

// NewPersistent opens (or creates) a persistent chromem database at dir.
func NewPersistent(dir string, log logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, zerrors.NewDataError("vectorstore", err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dir, "chromem.db"), false)
	if err != nil {
		return nil, zerrors.NewDataError("vectorstore", err)
	}
	return &Store{db: db, log: logging.OrGlobal(log), collections: make(map[string]*Collection)}, nil
}

// NewInMemory opens a non-persistent chromem database, used by tests.
func NewInMemory(log logging.Logger) *Store {
	return &Store{db: chromem.NewDB(), log: logging.OrGlobal(log), collections: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it if absent and
// rehydrating its shadow metadata index from whatever chromem already
// has on disk.
func (s *Store) Collection(ctx context.Context, name string, dimension int, embed EmbedFunc) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		return c, nil
	}

	col := s.db.GetCollection(name, embed)
	if col == nil {
		created, err := s.db.CreateCollection(name, map[string]string{"dimension": strconv.Itoa(dimension)}, embed)
		if err != nil {
			return nil, zerrors.NewDataError("vectorstore", fmt.Errorf("create collection %s: %w", name, err))
		}
		col = created
	}

	c := &Collection{
		name:      name,
		dimension: dimension,
		col:       col,
		log:       s.log,
		meta:      make(map[string]Metadata),
		docs:      make(map[string]string),
		vectors:   make(map[string][]float32),
	}
	c.rehydrate(ctx)
	s.collections[name] = c
	return c, nil
}

// Collection is one logical zotero_lib_<model_id> collection: a chromem
// vector index plus a shadow metadata/document map used to serve get,
// predicate matching, and deletion-by-predicate.
type Collection struct {
	name      string
	dimension int
	col       *chromem.Collection
	log       logging.Logger

	mu      sync.RWMutex
	meta    map[string]Metadata
	docs    map[string]string
	vectors map[string][]float32
}

// enumerateLimit bounds the zero-knowledge "fetch everything" query used
// to rehydrate the shadow index; a personal reference library's chunk
// count is comfortably under this.
const enumerateLimit = 1_000_000

func onesVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = 1
	}
	return v
}

// rehydrate pulls every existing document out of chromem into the shadow
// index. chromem-go exposes no direct "list all" call, so this issues a
// single non-selective similarity query wide enough to capture the whole
// collection; the similarity scores it returns are discarded. Failure is
// non-fatal — a fresh collection has nothing to rehydrate, and a
// population error just means Get/DeleteBy degrade until the next Add.
func (c *Collection) rehydrate(ctx context.Context) {
	count := c.col.Count()
	if count == 0 {
		return
	}
	results, err := c.col.QueryEmbedding(ctx, onesVector(c.dimension), min(count, enumerateLimit), nil, nil)
	if err != nil {
		c.log.Warn("vectorstore rehydrate failed", "collection", c.name, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		c.meta[r.ID] = chromemToMetadata(r.Metadata)
		c.docs[r.ID] = r.Content
		c.vectors[r.ID] = r.Embedding
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Add bulk-writes chunks. All slices must be equal length; ids must be
// unique; every vector must match the collection's declared dimension,
// or the whole batch fails before any document is written.
func (c *Collection) Add(ctx context.Context, ids, documents []string, metadatas []Metadata, vectors [][]float32) error {
	if len(ids) != len(documents) || len(ids) != len(metadatas) || len(ids) != len(vectors) {
		return zerrors.NewConfigError("add", "ids, documents, metadatas, and vectors must have equal length")
	}
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if seen[id] {
			return zerrors.NewConfigError("add", fmt.Sprintf("duplicate id %q in batch", id))
		}
		seen[id] = true
		if len(vectors[i]) != c.dimension {
			return zerrors.NewConfigError("add", fmt.Sprintf("id %q: vector dimension %d != collection dimension %d", id, len(vectors[i]), c.dimension))
		}
	}

	for i, id := range ids {
		doc := chromem.Document{
			ID:        id,
			Content:   documents[i],
			Metadata:  metadataToChromem(metadatas[i]),
			Embedding: vectors[i],
		}
		if err := c.col.AddDocument(ctx, doc); err != nil {
			return zerrors.NewDataError("vectorstore", fmt.Errorf("add document %s: %w", id, err))
		}
	}

	c.mu.Lock()
	for i, id := range ids {
		c.meta[id] = metadatas[i]
		c.docs[id] = documents[i]
		c.vectors[id] = vectors[i]
	}
	c.mu.Unlock()
	return nil
}

// UpdateMetadata rewrites the metadata of existing chunks in place,
// without touching their vectors or document text — the operation
// metadata migration needs, since re-embedding is never required just to
// reshape metadata fields. ids not present in the collection are ignored.
func (c *Collection) UpdateMetadata(ctx context.Context, ids []string, metadatas []Metadata) error {
	if len(ids) != len(metadatas) {
		return zerrors.NewConfigError("update_metadata", "ids and metadatas must have equal length")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range ids {
		doc, ok := c.docs[id]
		if !ok {
			continue
		}
		vector := c.vectors[id]
		chromemDoc := chromem.Document{
			ID:        id,
			Content:   doc,
			Metadata:  metadataToChromem(metadatas[i]),
			Embedding: vector,
		}
		if err := c.col.AddDocument(ctx, chromemDoc); err != nil {
			return zerrors.NewDataError("vectorstore", fmt.Errorf("update metadata %s: %w", id, err))
		}
		c.meta[id] = metadatas[i]
	}
	return nil
}

// Get retrieves chunks by id and/or predicate. When ids is non-empty,
// only those ids are considered (still subject to where, if given).
// limit <= 0 means unbounded.
func (c *Collection) Get(ctx context.Context, ids []string, where predicate.Predicate, limit int) (resultIDs, documents []string, metadatas []Metadata) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	candidates := ids
	if len(candidates) == 0 {
		candidates = make([]string, 0, len(c.meta))
		for id := range c.meta {
			candidates = append(candidates, id)
		}
		sort.Strings(candidates)
	}

	for _, id := range candidates {
		meta, ok := c.meta[id]
		if !ok {
			continue
		}
		if !predicate.Matches(meta, where) {
			continue
		}
		resultIDs = append(resultIDs, id)
		documents = append(documents, c.docs[id])
		metadatas = append(metadatas, meta)
		if limit > 0 && len(resultIDs) >= limit {
			break
		}
	}
	return resultIDs, documents, metadatas
}

// QueryResult is one scored match from Query.
type QueryResult struct {
	ID       string
	Document string
	Metadata Metadata
	// Similarity is chromem's cosine similarity, higher is better.
	Similarity float32
}

// Query runs an ANN similarity search for vector, widening the candidate
// pool internally so that client-side predicate filtering still yields up
// to k results when possible, and returns at most k matches satisfying
// where. where may contain any operator the predicate engine supports —
// this client evaluates it entirely against its shadow metadata rather
// than relying on chromem's native (equality-only) filter.
func (c *Collection) Query(ctx context.Context, vector []float32, k int, where predicate.Predicate) ([]QueryResult, error) {
	if len(vector) != c.dimension {
		return nil, zerrors.NewConfigError("query", fmt.Sprintf("query vector dimension %d != collection dimension %d", len(vector), c.dimension))
	}

	widened := k
	if where != nil {
		widened = k * 4
	}
	count := c.col.Count()
	if widened > count {
		widened = count
	}
	if widened == 0 {
		return nil, nil
	}

	raw, err := c.col.QueryEmbedding(ctx, vector, widened, nil, nil)
	if err != nil {
		return nil, zerrors.NewDataError("vectorstore", fmt.Errorf("query: %w", err))
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make([]QueryResult, 0, k)
	for _, r := range raw {
		meta := chromemToMetadata(r.Metadata)
		if !predicate.Matches(meta, where) {
			continue
		}
		results = append(results, QueryResult{
			ID:         r.ID,
			Document:   r.Content,
			Metadata:   meta,
			Similarity: r.Similarity,
		})
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

// Delete removes chunks by id.
func (c *Collection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.col.Delete(ctx, nil, nil, ids...); err != nil {
		return zerrors.NewDataError("vectorstore", fmt.Errorf("delete: %w", err))
	}
	c.mu.Lock()
	for _, id := range ids {
		delete(c.meta, id)
		delete(c.docs, id)
	}
	c.mu.Unlock()
	return nil
}

// DeleteBy removes every chunk whose metadata matches where.
func (c *Collection) DeleteBy(ctx context.Context, where predicate.Predicate) error {
	c.mu.RLock()
	var ids []string
	for id, meta := range c.meta {
		if predicate.Matches(meta, where) {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	return c.Delete(ctx, ids)
}

// Count returns the number of chunks in the collection.
func (c *Collection) Count() int {
	return c.col.Count()
}

// IndexedItemIDs returns the set of distinct item_id values across every
// chunk, string-normalized (trimmed) on both sides per the spec's
// incremental-mode subtraction rule.
func (c *Collection) IndexedItemIDs() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make(map[string]bool)
	for _, meta := range c.meta {
		if itemID, ok := meta["item_id"].(string); ok {
			ids[normalizeID(itemID)] = true
		}
	}
	return ids
}

func normalizeID(s string) string {
	return strings.TrimSpace(s)
}
