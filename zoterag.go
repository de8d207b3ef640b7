// Package zoterag wires every internal/* collaborator into the library
// API the host (CLI or otherwise) calls against: start/cancel/status for
// indexing, chat for conversational QA, and the provider/metadata/filter
// utility operations of spec §6.
package zoterag

import (
	"context"
	"fmt"

	"github.com/scholarrag/zoterag/config"
	"github.com/scholarrag/zoterag/internal/bm25"
	"github.com/scholarrag/zoterag/internal/catalog"
	"github.com/scholarrag/zoterag/internal/condenser"
	"github.com/scholarrag/zoterag/internal/conversation"
	"github.com/scholarrag/zoterag/internal/embedding"
	"github.com/scholarrag/zoterag/internal/extractor"
	"github.com/scholarrag/zoterag/internal/indexer"
	"github.com/scholarrag/zoterag/internal/llm"
	"github.com/scholarrag/zoterag/internal/logging"
	"github.com/scholarrag/zoterag/internal/pdfextract"
	"github.com/scholarrag/zoterag/internal/predicate"
	"github.com/scholarrag/zoterag/internal/rag"
	"github.com/scholarrag/zoterag/internal/retriever"
	"github.com/scholarrag/zoterag/internal/vectorstore"
)

// MetadataVersion reports a collection's chunk metadata shape, per
// spec §3's sampling rule: v0 means empty/unreadable, v1 is legacy
// (string year or missing tags/collections keys), v2 is current.
type MetadataVersion int

const (
	MetadataVersionEmpty  MetadataVersion = 0
	MetadataVersionLegacy MetadataVersion = 1
	MetadataVersionCurrent MetadataVersion = 2
)

// MetadataVersionInfo is metadata_version()'s return shape.
type MetadataVersionInfo struct {
	Version         MetadataVersion
	MigrationNeeded bool
	Message         string
}

// FilteredCount is count_filtered()'s return shape.
type FilteredCount struct {
	UniqueItems int
	TotalChunks int
}

// Service bundles every collaborator into the library API described in
// spec §6. One Service instance serves one profile (one catalogue, one
// vector collection, one BM25 index, one active LM provider/model).
type Service struct {
	cfg *config.Config
	log logging.Logger

	catalogue  catalog.Catalogue
	extractor  pdfextract.Extractor
	embedder   *embedding.Adapter
	collection *vectorstore.Collection
	bm25Store  *bm25.Store

	Manager    *llm.Manager
	Conversation *conversation.Store
	Controller *rag.Controller
	Indexer    *indexer.Indexer
}

// New constructs a Service from a resolved Config. embedderFactory and
// crossEncoder are supplied by the host so Service stays agnostic of
// which concrete embedding backend (Ollama, OpenAI, etc.) is in play.
// modelSpec is the active embedding model's backend name and output
// dimension, registered against the Embedding Adapter before the vector
// collection is opened (the collection's dimension is fixed at creation).
func New(
	cfg *config.Config,
	cat catalog.Catalogue,
	pdf pdfextract.Extractor,
	embedderFactory embedding.BackendFactory,
	modelSpec embedding.ModelSpec,
	crossEncoder embedding.CrossEncoder,
	log logging.Logger,
) (*Service, error) {
	log = logging.OrGlobal(log)

	embedder := embedding.NewAdapter(embedderFactory, log)
	embedder.RegisterModel(cfg.EmbeddingModelID, modelSpec)

	store, err := vectorstore.NewPersistent(cfg.ProfileDir, log)
	if err != nil {
		return nil, fmt.Errorf("zoterag: opening vector store: %w", err)
	}
	collection, err := store.Collection(context.Background(), cfg.VectorCollectionName(), modelSpec.Dimension, func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text, cfg.EmbeddingModelID)
	})
	if err != nil {
		return nil, fmt.Errorf("zoterag: opening vector collection: %w", err)
	}

	bmStore := bm25.NewStore(cfg.BM25IndexPath())

	retr := retriever.New(collection, bmStore, embedder, crossEncoder)

	registry := llm.NewRegistry()
	manager := llm.NewManager(registry)
	for providerID, apiKey := range cfg.APIKeys {
		manager.SetCredentials(providerID, llm.Credentials{APIKey: apiKey, BaseURL: cfg.ProviderBaseURLs[providerID]})
	}
	if cfg.ActiveProvider != "" {
		if err := manager.SetActive(cfg.ActiveProvider, cfg.ActiveModel); err != nil {
			return nil, fmt.Errorf("zoterag: setting active provider: %w", err)
		}
	}

	conv := conversation.New()
	cond := condenser.New(manager, log)
	extr := extractor.New(manager, log)
	controller := rag.New(conv, cond, extr, retr, manager, log)
	controller.RetrievalK = cfg.RetrievalK
	controller.RRFConstant = cfg.RRFConstant
	controller.MaxSnippets = cfg.MaxSnippets
	controller.MaxPerPaper = cfg.MaxSnippetsPerPaper

	idx := indexer.New(indexer.Deps{
		Catalogue:  cat,
		Extractor:  pdf,
		Embedder:   embedder,
		ModelID:    cfg.EmbeddingModelID,
		Collection: collection,
		BM25:       bmStore,
		ChunkSize:  cfg.ChunkSize,
		Overlap:    cfg.ChunkOverlap,
	}, cfg.IndexLockPath(), log)

	return &Service{
		cfg:          cfg,
		log:          log,
		catalogue:    cat,
		extractor:    pdf,
		embedder:     embedder,
		collection:   collection,
		bm25Store:    bmStore,
		Manager:      manager,
		Conversation: conv,
		Controller:   controller,
		Indexer:      idx,
	}, nil
}

// StartIndexing begins a background indexing job. incremental selects
// ModeIncremental over ModeFull. Returns immediately; poll IndexStatus.
func (s *Service) StartIndexing(ctx context.Context, incremental bool) {
	mode := indexer.ModeFull
	if incremental {
		mode = indexer.ModeIncremental
	}
	s.Indexer.Start(ctx, mode)
}

// CancelIndexing requests cancellation of a running job.
func (s *Service) CancelIndexing() {
	s.Indexer.Cancel()
}

// IndexStatus returns the current (or last completed) job's status.
func (s *Service) IndexStatus() indexer.Status {
	return s.Indexer.Status()
}

// Chat runs one RAG Controller turn.
func (s *Service) Chat(ctx context.Context, req rag.Request) rag.Response {
	return s.Controller.Chat(ctx, req)
}

// ListProviders returns every registered LM provider's metadata.
func (s *Service) ListProviders() []llm.Metadata {
	return s.Manager.ListProviders()
}

// ListModels lists providerID's available models using its stored
// credentials.
func (s *Service) ListModels(ctx context.Context, providerID string) ([]llm.ModelInfo, error) {
	return s.Manager.ListModels(ctx, providerID)
}

// Validate checks providerID's credentials with a cheap authenticated
// round-trip, storing creds first so the check (and any subsequent Chat
// call, if the caller then activates this provider) uses them.
func (s *Service) Validate(ctx context.Context, providerID string, creds llm.Credentials) error {
	s.Manager.SetCredentials(providerID, creds)
	return s.Manager.Validate(ctx, providerID)
}

// MetadataVersion samples the active collection's stored chunks to
// determine their metadata shape, per spec §3's sampling rule.
func (s *Service) MetadataVersion(ctx context.Context) MetadataVersionInfo {
	_, _, metadatas := s.collection.Get(ctx, nil, nil, 25)
	if len(metadatas) == 0 {
		return MetadataVersionInfo{Version: MetadataVersionEmpty}
	}

	legacy := false
	for _, m := range metadatas {
		if _, isString := m["year"].(string); isString {
			legacy = true
			break
		}
		if _, ok := m["tags"]; !ok {
			legacy = true
			break
		}
		if _, ok := m["collections"]; !ok {
			legacy = true
			break
		}
	}

	if legacy {
		return MetadataVersionInfo{
			Version:         MetadataVersionLegacy,
			MigrationNeeded: true,
			Message:         "legacy metadata format; run migration",
		}
	}
	return MetadataVersionInfo{Version: MetadataVersionCurrent}
}

// MigrateMetadata rewrites every chunk's metadata to the current (v2)
// shape in place: string years are parsed to integers (UnknownYear on
// failure), missing tags/collections keys are filled with empty strings.
// No re-embedding is performed — vectors are untouched.
func (s *Service) MigrateMetadata(ctx context.Context) error {
	ids, _, metadatas := s.collection.Get(ctx, nil, nil, 0)
	if len(ids) == 0 {
		return nil
	}

	migrated := make([]vectorstore.Metadata, len(metadatas))
	for i, m := range metadatas {
		out := vectorstore.Metadata{}
		for k, v := range m {
			out[k] = v
		}
		if yearStr, ok := out["year"].(string); ok {
			out["year"] = catalog.ExtractYear(yearStr)
		}
		if _, ok := out["tags"]; !ok {
			out["tags"] = ""
		}
		if _, ok := out["collections"]; !ok {
			out["collections"] = ""
		}
		migrated[i] = out
	}

	return s.collection.UpdateMetadata(ctx, ids, migrated)
}

// CountFiltered reports how many distinct items and total chunks match
// filters, without running retrieval.
func (s *Service) CountFiltered(ctx context.Context, filters predicate.Predicate) FilteredCount {
	_, _, metadatas := s.collection.Get(ctx, nil, filters, 0)
	items := make(map[string]bool)
	for _, m := range metadatas {
		if id, ok := m["item_id"].(string); ok {
			items[id] = true
		}
	}
	return FilteredCount{UniqueItems: len(items), TotalChunks: len(metadatas)}
}

// AllTags, AllCollections, AllItemTypes proxy the catalogue reader for a
// host-facing filter-builder UI.
func (s *Service) AllTags(ctx context.Context) ([]string, error) {
	return s.catalogue.AllTags(ctx)
}

func (s *Service) AllCollections(ctx context.Context) ([]catalog.NamedCount, error) {
	return s.catalogue.AllCollections(ctx)
}

func (s *Service) AllItemTypes(ctx context.Context) ([]catalog.NamedCount, error) {
	return s.catalogue.AllItemTypes(ctx)
}

// Close releases the catalogue reader's underlying connection.
func (s *Service) Close() error {
	return s.catalogue.Close()
}
