// Package indexer orchestrates the indexing pipeline: extract → chunk →
// embed → write → bm25-rebuild, against a Zotero-style catalogue, with
// cancellable background execution and crash-safe lock-file recovery in
// the style of amanmcp's BackgroundIndexer.
package indexer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/scholarrag/zoterag/internal/bm25"
	"github.com/scholarrag/zoterag/internal/catalog"
	"github.com/scholarrag/zoterag/internal/chunk"
	"github.com/scholarrag/zoterag/internal/embedding"
	"github.com/scholarrag/zoterag/internal/logging"
	"github.com/scholarrag/zoterag/internal/pdfextract"
	"github.com/scholarrag/zoterag/internal/vectorstore"
)

// Mode selects full reindexing or incremental (new items only).
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// maxEmbedConcurrency bounds how many chunks of one item embed in
// parallel.
const maxEmbedConcurrency = 4

// Status is a read-only snapshot of job progress, returned by Indexer.Status.
type Status struct {
	InProgress     bool     `json:"in_progress"`
	Mode           Mode     `json:"mode"`
	TotalItems     int      `json:"total_items"`
	ProcessedItems int      `json:"processed_items"`
	SkippedItems   int      `json:"skipped_items"`
	SkipReasons    []string `json:"skip_reasons"`
	StartTime      string   `json:"start_time,omitempty"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
	ETASeconds     float64  `json:"eta_seconds"`
}

type progress struct {
	mu             sync.RWMutex
	inProgress     bool
	mode           Mode
	totalItems     int
	processedItems int
	skippedItems   int
	skipReasons    []string
	startTime      time.Time
}

func (p *progress) snapshot() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	elapsed := time.Since(p.startTime).Seconds()
	var eta float64
	if p.processedItems > 0 {
		remaining := p.totalItems - p.processedItems
		if remaining < 0 {
			remaining = 0
		}
		eta = (elapsed / float64(p.processedItems)) * float64(remaining)
	}
	reasons := make([]string, len(p.skipReasons))
	copy(reasons, p.skipReasons)

	var started string
	if !p.startTime.IsZero() {
		started = p.startTime.Format(time.RFC3339)
	}
	return Status{
		InProgress:     p.inProgress,
		Mode:           p.mode,
		TotalItems:     p.totalItems,
		ProcessedItems: p.processedItems,
		SkippedItems:   p.skippedItems,
		SkipReasons:    reasons,
		StartTime:      started,
		ElapsedSeconds: elapsed,
		ETASeconds:     eta,
	}
}

func (p *progress) recordSkip(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skippedItems++
	p.skipReasons = append(p.skipReasons, reason)
}

func (p *progress) recordProcessed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processedItems++
}

// Deps bundles every collaborator an indexing job calls through.
type Deps struct {
	Catalogue  catalog.Catalogue
	Extractor  pdfextract.Extractor
	Embedder   *embedding.Adapter
	ModelID    string
	Collection *vectorstore.Collection
	BM25       *bm25.Store
	ChunkSize  int
	Overlap    int
}

// Indexer runs at most one job per process. start is idempotent while a
// job is running: a second call returns immediately without starting a
// new job.
type Indexer struct {
	deps     Deps
	log      logging.Logger
	lockPath string

	mu       sync.Mutex
	running  bool
	progress *progress
	cancel   context.CancelFunc
	doneCh   chan struct{}
}

// New constructs an Indexer. lockPath is the crash-recovery lock file
// (config.Config.IndexLockPath()); its presence across process restarts
// signals an indexing job that never completed cleanly.
func New(deps Deps, lockPath string, log logging.Logger) *Indexer {
	return &Indexer{deps: deps, lockPath: lockPath, log: logging.OrGlobal(log)}
}

// HasIncompleteLock reports whether a prior job was interrupted without
// cleaning up its lock file.
func HasIncompleteLock(lockPath string) bool {
	_, err := os.Stat(lockPath)
	return err == nil
}

// Start launches a job in the background, unless one is already running,
// and returns immediately. Callers poll Status.
func (idx *Indexer) Start(ctx context.Context, mode Mode) {
	idx.mu.Lock()
	if idx.running {
		idx.mu.Unlock()
		return
	}
	idx.running = true
	p := &progress{inProgress: true, mode: mode, startTime: time.Now()}
	idx.progress = p
	jobCtx, cancel := context.WithCancel(ctx)
	idx.cancel = cancel
	idx.doneCh = make(chan struct{})
	idx.mu.Unlock()

	go idx.run(jobCtx, mode, p)
}

// Cancel requests cancellation of a running job and returns without
// waiting for it to unwind.
func (idx *Indexer) Cancel() {
	idx.mu.Lock()
	cancel := idx.cancel
	idx.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns a snapshot of the current (or last completed) job.
func (idx *Indexer) Status() Status {
	idx.mu.Lock()
	p := idx.progress
	idx.mu.Unlock()
	if p == nil {
		return Status{Mode: ModeFull}
	}
	return p.snapshot()
}

func (idx *Indexer) run(ctx context.Context, mode Mode, p *progress) {
	// An OS-level advisory lock stops two zoterag processes (two CLI
	// invocations, or a CLI run racing a host app) from indexing the same
	// profile at once; it is released automatically if this process dies,
	// which is exactly why it can't also serve as the crash marker below.
	fl := flock.New(idx.lockPath + ".flock")
	locked, err := fl.TryLock()
	if err != nil {
		idx.log.Error("indexer: failed to acquire process lock", "error", err)
		idx.mu.Lock()
		idx.running = false
		idx.mu.Unlock()
		return
	}
	if !locked {
		idx.log.Info("indexer: another process is already indexing this profile")
		idx.mu.Lock()
		idx.running = false
		idx.mu.Unlock()
		return
	}

	defer func() {
		idx.mu.Lock()
		idx.running = false
		idx.mu.Unlock()
		p.mu.Lock()
		p.inProgress = false
		p.mu.Unlock()
		close(idx.doneCh)
		_ = os.Remove(idx.lockPath)
		_ = fl.Unlock()
	}()

	if err := os.WriteFile(idx.lockPath, []byte(time.Now().Format(time.RFC3339)), 0644); err != nil {
		idx.log.Error("indexer: failed to write lock file", "error", err)
		return
	}

	items, err := idx.deps.Catalogue.ItemsWithPDFs(ctx)
	if err != nil {
		idx.log.Error("indexer: catalogue unreadable, aborting job", "error", err)
		return
	}

	if mode == ModeIncremental {
		already := idx.deps.Collection.IndexedItemIDs()
		filtered := items[:0]
		for _, it := range items {
			if !already[strings.TrimSpace(it.ItemID)] {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	p.mu.Lock()
	p.totalItems = len(items)
	p.mu.Unlock()

	wroteAny := false
	for _, item := range items {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ok := idx.indexItem(ctx, item, p); ok {
			wroteAny = true
		}
		p.recordProcessed()
	}

	if wroteAny {
		idx.rebuildBM25(ctx)
	}
}

// indexItem runs the per-item pipeline: extract, chunk, embed, write.
// Any failure is recorded as a skip reason rather than aborting the job.
// Returns true if at least one chunk was written.
func (idx *Indexer) indexItem(ctx context.Context, item catalog.Item, p *progress) bool {
	if item.PDFPath == "" {
		p.recordSkip(fmt.Sprintf("%s: no PDF path", item.ItemID))
		return false
	}
	if _, err := os.Stat(item.PDFPath); err != nil {
		p.recordSkip(fmt.Sprintf("%s: file missing (%v)", item.ItemID, err))
		return false
	}

	pages, err := idx.deps.Extractor.Pages(item.PDFPath)
	if err != nil {
		p.recordSkip(fmt.Sprintf("%s: PDF parse error (%v)", item.ItemID, err))
		return false
	}

	chunkPages := make([]chunk.Page, len(pages))
	anyText := false
	for i, pg := range pages {
		chunkPages[i] = chunk.Page{PageNum: pg.PageNum, Text: pg.Text}
		if pg.Text != "" {
			anyText = true
		}
	}
	if !anyText {
		p.recordSkip(fmt.Sprintf("%s: extraction yielded empty text", item.ItemID))
		return false
	}

	chunks := chunk.PagesWithParams(chunkPages, idx.chunkSize(), idx.overlap())
	if len(chunks) == 0 {
		p.recordSkip(fmt.Sprintf("%s: chunker produced zero chunks", item.ItemID))
		return false
	}

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	metadatas := make([]vectorstore.Metadata, len(chunks))
	vectors := make([][]float32, len(chunks))

	// Chunks within one item embed independently, so bound their
	// concurrency instead of paying one round-trip per chunk serially —
	// maxEmbedConcurrency caps how many in-flight calls a slow local
	// embedding server (ollama) has to serve at once.
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(maxEmbedConcurrency)
	for i, c := range chunks {
		i, c := i, c
		group.Go(func() error {
			vec, err := idx.deps.Embedder.Embed(gctx, c.Text, idx.deps.ModelID)
			if err != nil {
				return fmt.Errorf("embedding failed: %w", err)
			}
			if dim, ok := idx.deps.Embedder.Dimension(idx.deps.ModelID); ok && len(vec) != dim {
				return fmt.Errorf("dimension mismatch (got %d, want %d)", len(vec), dim)
			}

			ids[i] = fmt.Sprintf("%s:%d", item.ItemID, c.ChunkIdx)
			texts[i] = c.Text
			vectors[i] = vec
			metadatas[i] = vectorstore.Metadata{
				"item_id":     item.ItemID,
				"title":       item.Title,
				"authors":     item.Authors,
				"year":        item.Year,
				"item_type":   item.ItemType,
				"tags":        joinPipe(item.Tags),
				"collections": joinPipe(item.Collections),
				"pdf_path":    item.PDFPath,
				"page":        c.Page,
				"chunk_idx":   c.ChunkIdx,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		p.recordSkip(fmt.Sprintf("%s: %v", item.ItemID, err))
		return false
	}

	if err := idx.deps.Collection.Add(ctx, ids, texts, metadatas, vectors); err != nil {
		p.recordSkip(fmt.Sprintf("%s: store write failed (%v)", item.ItemID, err))
		return false
	}
	return true
}

func (idx *Indexer) rebuildBM25(ctx context.Context) {
	ids, documents, _ := idx.deps.Collection.Get(ctx, nil, nil, 0)
	docs := make([]bm25.Doc, len(ids))
	for i, id := range ids {
		docs[i] = bm25.Doc{ID: id, Text: documents[i]}
	}
	bm := bm25.New()
	bm.Build(docs)
	if err := idx.deps.BM25.Replace(bm); err != nil {
		idx.log.Error("indexer: bm25 rebuild failed to persist", "error", err)
	}
}

func (idx *Indexer) chunkSize() int {
	if idx.deps.ChunkSize > 0 {
		return idx.deps.ChunkSize
	}
	return chunk.DefaultSize
}

func (idx *Indexer) overlap() int {
	if idx.deps.Overlap > 0 {
		return idx.deps.Overlap
	}
	return chunk.DefaultOverlap
}

func joinPipe(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += "|"
		}
		out += v
	}
	return out
}
