// Package rag implements the RAG Controller: the chat() entry point that
// composes query condensation, metadata extraction, hybrid retrieval,
// prompt assembly, the active LM provider, and the conversation store
// into one stateful multi-turn turn.
package rag

import (
	"context"
	"strconv"
	"strings"

	"github.com/scholarrag/zoterag/internal/condenser"
	"github.com/scholarrag/zoterag/internal/conversation"
	"github.com/scholarrag/zoterag/internal/extractor"
	"github.com/scholarrag/zoterag/internal/llm"
	"github.com/scholarrag/zoterag/internal/logging"
	"github.com/scholarrag/zoterag/internal/predicate"
	"github.com/scholarrag/zoterag/internal/retriever"
	"github.com/scholarrag/zoterag/internal/vectorstore"
)

// defaultRetrievalK is the k passed to the retriever when Controller.RetrievalK
// is left unset. Spec.md §4.6 passes a single k regardless of focus mode —
// focus widens the retriever's internal candidate width and diversity caps,
// not k itself.
const defaultRetrievalK = 15

const maxSnippetChars = 800

// Snippet is one citation-bearing piece of evidence surfaced to the
// caller alongside the generated answer.
type Snippet struct {
	CitationID int
	Snippet    string
	Title      string
	Year       string
	Authors    string
	PDFPath    string
	Page       int
}

// Citation is one entry of the turn's citation list, in first-occurrence
// order.
type Citation struct {
	ID      int
	Title   string
	Year    string
	Authors string
	PDFPath string
}

// Request describes one chat turn.
type Request struct {
	Query          string
	SessionID      string
	ItemFilter     []string            // explicit item_id allow-list
	UseAutoFilters bool                // run the metadata extractor over retrieval_query
	ManualFilters  predicate.Predicate // caller-supplied scope-panel filters
	Focused        bool                // widen k / diversity caps
	ModelID        string              // active embedding model id
	ContextLength  int                 // active LM's context length, 0 if unknown
}

// Response is chat()'s return value.
type Response struct {
	Summary        string
	Citations      []Citation
	Snippets       []Snippet
	GeneratedTitle *string
}

// Controller bundles chat()'s collaborators.
type Controller struct {
	Conversation *conversation.Store
	Condenser    *condenser.Condenser
	Extractor    *extractor.Extractor
	Retriever    *retriever.Retriever
	Manager      *llm.Manager
	Log          logging.Logger

	// RetrievalK is the k passed to Retriever.Retrieve. Zero selects
	// defaultRetrievalK.
	RetrievalK int
	// MaxPerPaper/MaxSnippets override the retriever's non-focused
	// diversity-cap defaults (retriever.DefaultMaxPerPaper/DefaultMaxSnippets).
	// Zero selects the retriever's own defaults. Focused turns are left
	// alone — they always get the retriever's wider focused caps.
	MaxPerPaper int
	MaxSnippets int
	// RRFConstant overrides the retriever's rrf_k fusion term. Zero
	// selects retriever.RRFConstant.
	RRFConstant float64
}

// New constructs a Controller.
func New(conv *conversation.Store, cond *condenser.Condenser, extr *extractor.Extractor, retr *retriever.Retriever, manager *llm.Manager, log logging.Logger) *Controller {
	return &Controller{Conversation: conv, Condenser: cond, Extractor: extr, Retriever: retr, Manager: manager, Log: log}
}

// Chat runs one full turn per the control flow in package rag's doc
// comment, returning the generated answer, its citations/snippets, and
// (for a brand-new session) a generated title.
func (c *Controller) Chat(ctx context.Context, req Request) Response {
	// 1. Load history.
	var history []llm.Message
	isNewSession := true
	if req.SessionID != "" {
		history = c.Conversation.Messages(req.SessionID)
		isNewSession = !hasUserTurn(history)
	}

	// 2. Condensation.
	retrievalQuery := req.Query
	if req.SessionID != "" && condenser.ShouldCondense(req.Query, history) {
		retrievalQuery = c.Condenser.Condense(ctx, req.Query, history)
	}

	// 3. Filter resolution.
	p := c.resolvePredicate(ctx, req, retrievalQuery)

	// 4. Retrieval.
	k := c.RetrievalK
	if k <= 0 {
		k = defaultRetrievalK
	}
	opts := retriever.Options{
		K:             k,
		Predicate:     p,
		ModelID:       req.ModelID,
		Focused:       req.Focused,
		ContextLength: req.ContextLength,
		RRFConstant:   c.RRFConstant,
	}
	if !req.Focused {
		opts.MaxPerPaper = c.MaxPerPaper
		opts.MaxSnippets = c.MaxSnippets
	}
	passages, err := c.Retriever.Retrieve(ctx, retrievalQuery, opts)
	if err != nil {
		c.Log.Warn("retrieval failed, proceeding without evidence", "error", err)
		passages = nil
	}

	// 5. Citation assignment.
	snippets, citations := assignCitations(passages)

	// 6. Prompt assembly.
	var messages []llm.Message
	if req.SessionID != "" {
		userMessage := req.Query
		if isNewSession && len(snippets) > 0 {
			userMessage = buildFirstTurnMessage(req.Query, snippets)
		}
		c.Conversation.Append(req.SessionID, "user", userMessage)
		full := c.Conversation.Messages(req.SessionID)
		messages = conversation.Trim(full, conversation.DefaultMaxMessages, conversation.DefaultMaxChars)
	} else {
		messages = []llm.Message{{Role: "user", Content: buildFirstTurnMessage(req.Query, snippets)}}
	}

	// 7. Generate.
	summary := c.generate(ctx, messages, snippets, req.SessionID)

	// 8. Title generation.
	var generatedTitle *string
	if req.SessionID != "" && isNewSession {
		title := c.generateTitle(ctx, req.Query, summary)
		generatedTitle = &title
	}

	return Response{Summary: summary, Citations: citations, Snippets: snippets, GeneratedTitle: generatedTitle}
}

func hasUserTurn(history []llm.Message) bool {
	for _, m := range history {
		if m.Role == "user" {
			return true
		}
	}
	return false
}

func (c *Controller) resolvePredicate(ctx context.Context, req Request, retrievalQuery string) predicate.Predicate {
	var p predicate.Predicate

	if len(req.ItemFilter) > 0 {
		ids := make([]any, len(req.ItemFilter))
		for i, id := range req.ItemFilter {
			ids[i] = id
		}
		p = predicate.Merge(p, predicate.Predicate{"item_id": map[string]any{"$in": ids}})
	}
	if req.ManualFilters != nil {
		p = predicate.Merge(p, req.ManualFilters)
	}
	if req.UseAutoFilters {
		filters := c.Extractor.ExtractFilters(ctx, retrievalQuery)
		if auto := filters.ToPredicate(); auto != nil {
			p = predicate.Merge(p, auto)
		}
	}
	return p
}

// assignCitations maps retrieved passages to snippets, giving each
// distinct (title, year, pdf_path) a stable 1-based citation id in
// first-occurrence order. The retriever has already applied the spec's
// diversity cap (focus-aware); this step only assigns ids, it doesn't
// truncate further.
func assignCitations(passages []retriever.Passage) ([]Snippet, []Citation) {
	type key struct{ title, year, pdfPath string }

	citationIDs := make(map[key]int)
	var citations []Citation
	var snippets []Snippet

	for _, p := range passages {
		title := stringField(p.Metadata, "title", "Untitled")
		year := yearField(p.Metadata)
		authors := stringField(p.Metadata, "authors", "")
		pdfPath := stringField(p.Metadata, "pdf_path", "")
		page := intField(p.Metadata, "page")

		k := key{title, year, pdfPath}
		id, ok := citationIDs[k]
		if !ok {
			id = len(citationIDs) + 1
			citationIDs[k] = id
			citations = append(citations, Citation{ID: id, Title: title, Year: year, Authors: authors, PDFPath: pdfPath})
		}

		text := p.Text
		if len(text) > maxSnippetChars {
			text = text[:maxSnippetChars]
		}
		snippets = append(snippets, Snippet{
			CitationID: id,
			Snippet:    text,
			Title:      title,
			Year:       year,
			Authors:    authors,
			PDFPath:    pdfPath,
			Page:       page,
		})
	}

	return snippets, citations
}

func stringField(meta vectorstore.Metadata, field, fallback string) string {
	if v, ok := meta[field]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func yearField(meta vectorstore.Metadata) string {
	v, ok := meta["year"]
	if !ok {
		return ""
	}
	switch y := v.(type) {
	case int:
		if y == predicate.UnknownYear {
			return ""
		}
		return strconv.Itoa(y)
	case string:
		return y
	default:
		return ""
	}
}

func intField(meta vectorstore.Metadata, field string) int {
	v, ok := meta[field]
	if !ok {
		return 0
	}
	if n, ok := v.(int); ok {
		return n
	}
	return 0
}

// generate calls the active provider with the standard academic preset,
// falling back to the first snippet's text on any LM failure so the turn
// still returns something useful.
func (c *Controller) generate(ctx context.Context, messages []llm.Message, snippets []Snippet, sessionID string) string {
	resp, err := c.Manager.Chat(ctx, messages, llm.Params{
		Temperature:       standardParams.Temperature,
		TopP:              standardParams.TopP,
		TopK:              standardParams.TopK,
		RepetitionPenalty: standardParams.RepetitionPenalty,
		MaxTokens:         standardParams.MaxTokens,
	})
	if err != nil {
		c.Log.Warn("chat generation failed", "error", err)
		if len(snippets) > 0 {
			return snippets[0].Snippet
		}
		return "Error: failed to generate a response."
	}

	if len(resp.Warnings) > 0 {
		c.Log.Warn("response validation issues", "issues", resp.Warnings)
	}

	if sessionID != "" {
		c.Conversation.Append(sessionID, "assistant", resp.Content)
	}
	return resp.Content
}

// generateTitle makes one additional, cheap LM call to produce a short
// session title. Any failure falls back to a truncated prefix of the
// question.
func (c *Controller) generateTitle(ctx context.Context, question, answer string) string {
	prompt := buildTitlePrompt(question, answer)
	resp, err := c.Manager.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.Params{
		Temperature:       titleParams.Temperature,
		TopP:              titleParams.TopP,
		TopK:              titleParams.TopK,
		RepetitionPenalty: titleParams.RepetitionPenalty,
		MaxTokens:         titleParams.MaxTokens,
	})
	if err != nil {
		return truncate(question, 50)
	}

	title := strings.TrimSpace(resp.Content)
	title = strings.Trim(title, `"'`)
	if len(title) > 80 {
		title = title[:77] + "..."
	}
	if title == "" {
		return truncate(question, 50)
	}
	return title
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
