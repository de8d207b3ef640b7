// Package condenser rewrites context-dependent follow-up questions into
// standalone queries suitable for vector retrieval, using conversation
// history and a cheap, low-temperature LM call. Without this step,
// follow-ups like "is there overlap?" or "what about GPT?" retrieve the
// wrong passages because the retriever only ever sees the literal text of
// the latest turn.
package condenser

import (
	"context"
	"strings"

	"github.com/scholarrag/zoterag/internal/llm"
	"github.com/scholarrag/zoterag/internal/logging"
)

// condensePrompt instructs the model to extract a standalone question
// rather than answer one, so it doesn't trigger meta-response chatter
// ("I'm ready to help...").
const condensePrompt = `You are converting a follow-up question into a standalone question by incorporating relevant context from the conversation history.

## Task

Given a conversation history and a follow-up question, rephrase the follow-up into a standalone question that:
1. **Replaces pronouns** (it, they, that, these) with specific nouns
2. **Includes implicit context** needed to understand the question
3. **Maintains the original intent** exactly
4. **Is suitable for semantic search** (clear, self-contained)

## Rules

- **Output ONLY the standalone question** - no explanations, no preamble
- **Keep the question format** - if input is a question, output is a question
- **Preserve key terms** from the follow-up exactly
- **Don't add information** not implied by the history
- **Be concise** - only add necessary context

## Examples

**Conversation:**
User: What is multi-task learning in NLP?
Assistant: Multi-task learning (MTL) in NLP is a training paradigm where...

**Follow-up:** Is there an overlap with causal approaches?
**Standalone:** Is there an overlap between multi-task learning in NLP and causal inference approaches?

---

**Conversation:**
User: How does BERT handle contextualized embeddings?
Assistant: BERT generates contextualized embeddings through...

**Follow-up:** What about GPT?
**Standalone:** How does GPT handle contextualized embeddings?

---

**Conversation:**
User: What are the main challenges in few-shot learning?
Assistant: The main challenges include limited training data...

**Follow-up:** Can you elaborate on the data efficiency issue?
**Standalone:** Can you elaborate on the data efficiency challenges in few-shot learning?

---

Now do the same for the conversation below.`

const (
	maxHistoryChars = 1500
	maxTurnsKept    = 6 // last 3 user/assistant turn pairs
	truncateAt      = 500
	minQueryLen     = 5
	maxQueryLen     = 300
)

var anaphoraWords = []string{"it", "they", "them", "that", "this", "these", "those", "its", "their"}

var formalAnaphoraPhrases = []string{"said", "such", "aforementioned", "the former", "the latter"}

var ellipsisPhrases = []string{
	"what about", "how about", "and", "also", "additionally",
	"the above", "the previous", "earlier", "you mentioned",
	"as mentioned", "like you said",
}

var comparisonPhrases = []string{
	"overlap", "relationship", "compare", "contrast", "versus", "vs",
	"difference", "similar", "relate", "connection", "between",
}

// Condenser rewrites follow-up questions into standalone queries using an
// LM and a cheap heuristic gate that decides when condensation is worth
// the extra round-trip.
type Condenser struct {
	manager *llm.Manager
	log     logging.Logger
}

// New constructs a Condenser over an active llm.Manager.
func New(manager *llm.Manager, log logging.Logger) *Condenser {
	return &Condenser{manager: manager, log: log}
}

// ShouldCondense reports whether query looks like a follow-up that needs
// context from history to retrieve correctly: it has no effect on turn
// one, and beyond that keys on anaphora, elliptical phrasing, or a short
// comparative question.
func ShouldCondense(query string, history []llm.Message) bool {
	if !hasUserTurn(history) {
		return false
	}

	q := strings.ToLower(strings.TrimSpace(query))

	hasAnaphora := false
	for _, word := range anaphoraWords {
		if wordBoundaryMatch(q, word) {
			hasAnaphora = true
			break
		}
	}

	hasFormalAnaphora := containsAny(q, formalAnaphoraPhrases)
	hasEllipsis := containsAny(q, ellipsisPhrases)
	hasComparison := containsAny(q, comparisonPhrases)
	isShort := len(strings.Fields(q)) < 8

	return hasAnaphora || hasFormalAnaphora || hasEllipsis || (hasComparison && isShort)
}

func hasUserTurn(history []llm.Message) bool {
	for _, m := range history {
		if m.Role == "user" {
			return true
		}
	}
	return false
}

func wordBoundaryMatch(q, word string) bool {
	return strings.HasPrefix(q, word+" ") || strings.Contains(q, " "+word+" ") || strings.HasSuffix(q, " "+word)
}

func containsAny(q string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

// Condense rewrites query into a standalone question using the last few
// turns of history. On any failure — LM error, malformed or implausible
// output — it falls back to returning query unchanged, since a failed
// condensation should never block retrieval.
func (c *Condenser) Condense(ctx context.Context, query string, history []llm.Message) string {
	historyStr := buildHistoryString(history)
	if historyStr == "" {
		return query
	}

	prompt := condensePrompt + "\n\n## Conversation History\n\n" + historyStr +
		"\n\n## Follow-up Question\n\n" + query + "\n\n## Standalone Question"

	resp, err := c.manager.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.Params{
		Temperature:       0.2,
		TopP:              0.9,
		TopK:              40,
		RepetitionPenalty: 1.1,
		MaxTokens:         150,
	})
	if err != nil {
		c.log.Warn("query condensation failed, using original query", "error", err)
		return query
	}

	standalone := strings.TrimSpace(resp.Content)
	if len(standalone) < minQueryLen || len(standalone) > maxQueryLen {
		c.log.Warn("condensed query seems malformed, using original", "length", len(standalone))
		return query
	}

	standalone = strings.Trim(standalone, `"'`)
	if lower := strings.ToLower(standalone); strings.HasPrefix(lower, "standalone question:") {
		standalone = strings.TrimSpace(standalone[len("standalone question:"):])
	}

	c.log.Debug("condensed query", "original", query, "standalone", standalone)
	return standalone
}

// buildHistoryString renders the last maxTurnsKept user/assistant
// messages as "Role: content" lines, truncating individual messages and
// stopping once maxHistoryChars is reached.
func buildHistoryString(history []llm.Message) string {
	var relevant []llm.Message
	for _, m := range history {
		if m.Role == "user" || m.Role == "assistant" {
			relevant = append(relevant, m)
		}
	}
	if len(relevant) > maxTurnsKept {
		relevant = relevant[len(relevant)-maxTurnsKept:]
	}

	var lines []string
	total := 0
	for _, m := range relevant {
		prefix := "Assistant:"
		if m.Role == "user" {
			prefix = "User:"
		}
		content := m.Content
		if len(content) > truncateAt {
			content = content[:truncateAt]
		}
		line := prefix + " " + content
		if total+len(line) > maxHistoryChars {
			break
		}
		lines = append(lines, line)
		total += len(line)
	}

	return strings.Join(lines, "\n")
}
