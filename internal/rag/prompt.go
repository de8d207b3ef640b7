package rag

import (
	"fmt"
	"strconv"
	"strings"
)

// standardParams is the "standard academic" generation preset used for
// answer turns.
var standardParams = genParams{Temperature: 0.35, TopP: 0.9, TopK: 50, RepetitionPenalty: 1.15, MaxTokens: 2000}

// titleParams is the preset used for the one-shot session-title call.
var titleParams = genParams{Temperature: 0.7, TopP: 0.9, TopK: 50, RepetitionPenalty: 1.1, MaxTokens: 30}

type genParams struct {
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	MaxTokens         int
}

const sessionTitlePrompt = `Based on this conversation, generate a concise, descriptive title (3-8 words) that captures the main topic being discussed.

User question: %s

Assistant response: %s

Return ONLY the title, no quotes, no explanation:`

func buildTitlePrompt(question, answer string) string {
	truncatedAnswer := answer
	if len(truncatedAnswer) > 500 {
		truncatedAnswer = truncatedAnswer[:500]
	}
	return fmt.Sprintf(sessionTitlePrompt, question, truncatedAnswer)
}

// buildFirstTurnMessage embeds the retrieved evidence directly into the
// user message for a session's first turn, with [N] title (authors,
// year, p. page): text blocks and a short instruction footer.
func buildFirstTurnMessage(question string, snippets []Snippet) string {
	if len(snippets) == 0 {
		return question
	}

	var blocks []string
	for _, s := range snippets {
		var bib []string
		if s.Authors != "" {
			bib = append(bib, s.Authors)
		}
		if s.Year != "" {
			bib = append(bib, s.Year)
		}
		if s.Page > 0 {
			bib = append(bib, "p. "+strconv.Itoa(s.Page))
		}
		header := fmt.Sprintf("[%d] %s", s.CitationID, s.Title)
		if len(bib) > 0 {
			header += " (" + strings.Join(bib, ", ") + ")"
		}
		blocks = append(blocks, header+": "+s.Snippet)
	}
	context := strings.Join(blocks, "\n\n")

	return fmt.Sprintf(`%s

---
**Evidence from library:**

%s

---
Answer the question using only the evidence above. Cite sources inline using the bracketed numbers, e.g. [1]. If the evidence doesn't address the question, say so rather than guessing.`, question, context)
}
