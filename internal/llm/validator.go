package llm

import "strings"

// metaResponsePhrases are closed-list phrases that indicate the model
// answered about itself instead of the question ("I'm ready to help",
// etc.) rather than producing real content.
var metaResponsePhrases = []string{
	"i'm ready",
	"i am ready",
	"i understand",
	"how can i help",
	"how can i assist",
	"sure, i can help",
	"as an ai language model",
}

// errorMarkers are substrings that indicate an error leaked into the
// completion body instead of being raised as a transport error.
var errorMarkers = []string{
	"error:",
	"exception:",
	"traceback (most recent call last)",
	"<!doctype html>",
}

const minContentLength = 10

// ValidateResponse inspects a completion for known failure modes and
// returns a list of issues. Validation is non-fatal: the caller still
// returns content to the user, just with these warnings attached.
// webAugmented marks providers (e.g. Perplexity) known to sometimes dump
// raw citation markers instead of prose.
func ValidateResponse(content string, webAugmented bool) []string {
	var issues []string

	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)

	if trimmed == "" {
		return []string{"empty response"}
	}
	if len(trimmed) < minContentLength {
		issues = append(issues, "trivially short response")
	}

	for _, phrase := range metaResponsePhrases {
		if strings.Contains(lower, phrase) {
			issues = append(issues, "meta-response: model described itself instead of answering")
			break
		}
	}

	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			issues = append(issues, "embedded error marker in response body")
			break
		}
	}

	if webAugmented && isHighPunctuationDensity(trimmed) {
		issues = append(issues, "raw citations dump: unusually high punctuation density")
	}

	return issues
}

// isHighPunctuationDensity flags text where periods and commas make up
// an unusually large fraction of characters, the signature of a raw
// citation-marker dump instead of prose.
func isHighPunctuationDensity(text string) bool {
	if len(text) < 20 {
		return false
	}
	count := 0
	for _, r := range text {
		if r == '.' || r == ',' {
			count++
		}
	}
	return float64(count)/float64(len(text)) > 0.15
}
