// Package embedding implements the Embedding Adapter: a registry of
// embedding models keyed by model id, a memoized backend per model, and
// an LRU cache of already-computed vectors keyed by content hash — the
// same cache-per-model pattern amanmcp's embed.CachedEmbedder uses,
// adapted to a registry that serves several model ids from one process.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/scholarrag/zoterag/internal/logging"
	"github.com/scholarrag/zoterag/internal/zerrors"
)

// MaxInputTokens is the token budget enforced before encoding. Most
// embedding backends (Ollama's nomic-embed-text, OpenAI's
// text-embedding-3-*) share roughly this context window; truncating on
// the client side avoids a backend-side length rejection turning into a
// failed indexing run.
const MaxInputTokens = 512

// tokenEncoding is shared across all Adapter instances; cl100k_base is
// close enough to every embedding backend's real tokenizer for a
// conservative truncation boundary, and none of the backends this adapter
// talks to expose their own encoder.
var tokenEncoding = sync.OnceValue(func() *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// Falls back to a nil encoder; truncate() degrades to a no-op
		// rather than panicking on a corpus/network hiccup at init time.
		return nil
	}
	return enc
})

// DefaultCacheSize bounds the in-process vector cache.
const DefaultCacheSize = 4096

// ModelSpec describes one registered embedding model: the backend-native
// model name and its fixed output dimension.
type ModelSpec struct {
	BackendModelName string
	Dimension        int
}

// Backend performs the actual text-to-vector call for one model.
type Backend interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// BackendFactory constructs a Backend for a given model id/spec. Adapter
// calls this at most once per model id and memoizes the result.
type BackendFactory func(modelID string, spec ModelSpec) (Backend, error)

// Adapter is the Embedding Adapter component: embed(text, model_id) →
// vector, enforcing the dimension invariant and caching both the loaded
// backend and computed vectors.
type Adapter struct {
	log            logging.Logger
	newBackend     BackendFactory
	cacheSize      int

	mu       sync.RWMutex
	registry map[string]ModelSpec
	backends map[string]Backend
	cache    *lru.Cache[string, []float32]
}

// NewAdapter constructs an Adapter. newBackend is called lazily, once per
// model id, the first time that model is used.
func NewAdapter(newBackend BackendFactory, log logging.Logger) *Adapter {
	cache, _ := lru.New[string, []float32](DefaultCacheSize)
	return &Adapter{
		log:        logging.OrGlobal(log),
		newBackend: newBackend,
		cacheSize:  DefaultCacheSize,
		registry:   make(map[string]ModelSpec),
		backends:   make(map[string]Backend),
		cache:      cache,
	}
}

// RegisterModel adds or replaces a model-id → spec mapping.
func (a *Adapter) RegisterModel(modelID string, spec ModelSpec) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registry[modelID] = spec
}

// Dimension returns the declared dimension for a registered model id.
func (a *Adapter) Dimension(modelID string) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	spec, ok := a.registry[modelID]
	return spec.Dimension, ok
}

func (a *Adapter) backendFor(modelID string) (Backend, ModelSpec, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	spec, ok := a.registry[modelID]
	if !ok {
		return nil, ModelSpec{}, zerrors.NewConfigError("model_id", fmt.Sprintf("unknown embedding model %q", modelID))
	}
	if backend, ok := a.backends[modelID]; ok {
		return backend, spec, nil
	}
	backend, err := a.newBackend(modelID, spec)
	if err != nil {
		return nil, spec, zerrors.NewTransportError(modelID, err)
	}
	a.backends[modelID] = backend
	return backend, spec, nil
}

func cacheKey(modelID, text string) string {
	h := sha256.Sum256([]byte(modelID + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func truncate(text string) string {
	enc := tokenEncoding()
	if enc == nil {
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= MaxInputTokens {
		return text
	}
	return enc.Decode(tokens[:MaxInputTokens])
}

// Embed produces a fixed-dimension vector for text using the given model
// id, truncating the input to MaxInputTokens first. Results are memoized
// by (modelID, text) hash. A dimension mismatch between the backend's
// output and the registry's declared dimension is a ConfigError — the
// caller should treat this as fatal, per the spec's dimension invariant.
func (a *Adapter) Embed(ctx context.Context, text, modelID string) ([]float32, error) {
	text = truncate(text)
	key := cacheKey(modelID, text)

	if v, ok := a.cache.Get(key); ok {
		return v, nil
	}

	backend, spec, err := a.backendFor(modelID)
	if err != nil {
		return nil, err
	}

	vector, err := backend.Encode(ctx, text)
	if err != nil {
		return nil, zerrors.NewTransportError(modelID, err)
	}
	if len(vector) != spec.Dimension {
		return nil, zerrors.NewConfigError("embedding_dimension",
			fmt.Sprintf("model %q produced dimension %d, registry declares %d", modelID, len(vector), spec.Dimension))
	}

	a.cache.Add(key, vector)
	return vector, nil
}
