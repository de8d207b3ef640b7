// Package extractor pulls structured metadata filters — year range, tags,
// collections, author, title, item types — out of a natural language
// query using an LM, so a question like "papers by Berlant about
// optimism" narrows retrieval the same way a manual scope-panel filter
// would.
package extractor

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/scholarrag/zoterag/internal/llm"
	"github.com/scholarrag/zoterag/internal/logging"
	"github.com/scholarrag/zoterag/internal/predicate"
)

const extractionPrompt = `Extract structured metadata filters from this academic library search query.
Return JSON with these fields (use null / empty list when the field is absent):

- year_min   : earliest year as integer (e.g. 2018), or null
- year_max   : latest year as integer (e.g. 2023), or null
- tags       : list of topic/keyword tags EXPLICITLY mentioned (e.g. ["NLP", "deep learning"])
- collections: list of Zotero collection names EXPLICITLY mentioned (e.g. ["PhD Research"])
- author     : last name or full name of a specific author EXPLICITLY mentioned, or null
- title      : title fragment of a specific paper/book/thesis EXPLICITLY mentioned, or null
- item_types : list of document types EXPLICITLY mentioned — use only these Zotero names:
               "journalArticle", "book", "bookSection", "conferencePaper", "thesis",
               "preprint", "webpage", "report", "presentation", "manuscript"

Rules:
- Only extract what is EXPLICITLY stated. Do not infer topics from the question subject.
  Example: "What does Berlant argue?" → no tags, no author (just a rhetorical question)
  Example: "Papers by Berlant about optimism" → author: "Berlant", tags: ["optimism"]
- "thesis", "dissertation", "master's thesis", "PhD thesis" → item_types: ["thesis"]
- Author names: extract only if the query asks for a specific person's work, not just mentions a name.
- "recent" / "latest" alone is not a year filter.

Query: "%s"

Return ONLY valid JSON, no explanation:`

var (
	jsonFence = regexp.MustCompile(`(?s)` + "```json\\s*(\\{.*?\\})\\s*```")
	jsonBlob  = regexp.MustCompile(`(?s)\{.*\}`)
)

// Filters is the structured result of extraction. HasFilters is false
// when nothing actionable was found, signalling the caller to skip
// predicate construction entirely.
type Filters struct {
	YearMin     *int     `json:"year_min"`
	YearMax     *int     `json:"year_max"`
	Tags        []string `json:"tags"`
	Collections []string `json:"collections"`
	Author      string   `json:"author"`
	Title       string   `json:"title"`
	ItemTypes   []string `json:"item_types"`
	HasFilters  bool     `json:"has_filters"`
}

// rawFilters mirrors the model's JSON response shape before nil-safety
// normalization.
type rawFilters struct {
	YearMin     *int     `json:"year_min"`
	YearMax     *int     `json:"year_max"`
	Tags        []string `json:"tags"`
	Collections []string `json:"collections"`
	Author      *string  `json:"author"`
	Title       *string  `json:"title"`
	ItemTypes   []string `json:"item_types"`
}

// Extractor extracts Filters from a query using an llm.Manager.
type Extractor struct {
	manager *llm.Manager
	log     logging.Logger
}

// New constructs an Extractor. manager may be nil, in which case
// ExtractFilters always returns an empty, has_filters=false result.
func New(manager *llm.Manager, log logging.Logger) *Extractor {
	return &Extractor{manager: manager, log: log}
}

// ExtractFilters asks the active model for any explicitly-stated metadata
// constraints in query. Any failure — no active provider, malformed JSON,
// a transport error — yields an empty Filters rather than an error, since
// a failed extraction should never block retrieval.
func (e *Extractor) ExtractFilters(ctx context.Context, query string) Filters {
	if e.manager == nil {
		return Filters{}
	}

	resp, err := e.manager.Chat(ctx, []llm.Message{{Role: "user", Content: sprintfPrompt(query)}}, llm.Params{
		Temperature: 0.0,
		MaxTokens:   200,
	})
	if err != nil {
		e.log.Warn("metadata extraction failed, returning empty filters", "error", err)
		return Filters{}
	}

	filters, err := parseFilters(resp.Content)
	if err != nil {
		e.log.Warn("metadata extraction failed, returning empty filters", "error", err)
		return Filters{}
	}

	e.log.Debug("LLM-extracted filters", "filters", filters)
	return filters
}

func sprintfPrompt(query string) string {
	return strings.Replace(extractionPrompt, "%s", query, 1)
}

func parseFilters(content string) (Filters, error) {
	body := content
	if m := jsonFence.FindStringSubmatch(body); m != nil {
		body = m[1]
	} else if m := jsonBlob.FindString(body); m != "" {
		body = m
	}

	var raw rawFilters
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Filters{}, err
	}

	f := Filters{
		YearMin:     raw.YearMin,
		YearMax:     raw.YearMax,
		Tags:        raw.Tags,
		Collections: raw.Collections,
		ItemTypes:   raw.ItemTypes,
	}
	if raw.Author != nil {
		f.Author = *raw.Author
	}
	if raw.Title != nil {
		f.Title = *raw.Title
	}
	f.HasFilters = f.YearMin != nil || f.YearMax != nil || len(f.Tags) > 0 ||
		len(f.Collections) > 0 || f.Author != "" || f.Title != "" || len(f.ItemTypes) > 0
	return f, nil
}

// ToPredicate converts extracted Filters into a predicate.Predicate via
// predicate.Build, or nil if nothing was extracted.
func (f Filters) ToPredicate() predicate.Predicate {
	if !f.HasFilters {
		return nil
	}
	return predicate.Build(predicate.BuildArgs{
		YearMin:     f.YearMin,
		YearMax:     f.YearMax,
		Tags:        f.Tags,
		Collections: f.Collections,
		Title:       f.Title,
		Author:      f.Author,
		ItemTypes:   f.ItemTypes,
	})
}
