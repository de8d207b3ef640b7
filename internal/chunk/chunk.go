// Package chunk splits page-aware PDF text into overlapping, sentence-
// bounded passages sized for embedding. A chunk never spans two pages:
// each page is chunked independently and the results concatenated.
package chunk

import (
	"regexp"
	"strings"
)

// DefaultSize and DefaultOverlap match the spec's ~800-character chunks
// with ~200-character overlap.
const (
	DefaultSize    = 800
	DefaultOverlap = 200
)

// Page is one page of extracted PDF text.
type Page struct {
	PageNum int
	Text    string
}

// Chunk is one emitted passage, still missing its stable id — the
// indexer assigns "<item_id>:<chunk_idx>" once it knows the parent item.
type Chunk struct {
	Text     string
	Page     int
	ChunkIdx int
}

var sentenceBoundary = regexp.MustCompile(`[.!?]+(\s+|$)`)

// splitSentences breaks text on sentence-ending punctuation followed by
// whitespace (or end of string), keeping the terminator attached to the
// preceding sentence.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var sentences []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		end := loc[1]
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}
	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// tailWords returns the trailing words of s whose combined length is at
// least n characters, used to carry overlap into the next bucket.
func tailWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	total := 0
	start := len(words)
	for i := len(words) - 1; i >= 0; i-- {
		total += len(words[i]) + 1
		start = i
		if total >= n {
			break
		}
	}
	return strings.Join(words[start:], " ")
}

// chunkPageText splits one page's text into buckets of at most ~size
// characters, accumulated on sentence boundaries, carrying ~overlap
// characters of trailing words from the previous bucket into the next.
func chunkPageText(text string, size, overlap int) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var result []string
	var bucket []string
	bucketLen := 0

	flush := func() {
		if len(bucket) == 0 {
			return
		}
		result = append(result, strings.Join(bucket, " "))
		carry := tailWords(strings.Join(bucket, " "), overlap)
		bucket = nil
		bucketLen = 0
		if carry != "" {
			bucket = append(bucket, carry)
			bucketLen = len(carry)
		}
	}

	for _, s := range sentences {
		if bucketLen > 0 && bucketLen+len(s)+1 > size {
			flush()
		}
		bucket = append(bucket, s)
		bucketLen += len(s) + 1
	}
	if len(bucket) > 0 {
		result = append(result, strings.Join(bucket, " "))
	}
	return result
}

// Pages chunks a full document's page-aware text, using DefaultSize and
// DefaultOverlap.
func Pages(pages []Page) []Chunk {
	return PagesWithParams(pages, DefaultSize, DefaultOverlap)
}

// PagesWithParams chunks page-aware text with explicit size/overlap
// parameters. Chunk indices are assigned sequentially across the whole
// document; a chunk never spans two pages.
func PagesWithParams(pages []Page, size, overlap int) []Chunk {
	var chunks []Chunk
	idx := 0
	for _, page := range pages {
		for _, text := range chunkPageText(page.Text, size, overlap) {
			chunks = append(chunks, Chunk{
				Text:     text,
				Page:     page.PageNum,
				ChunkIdx: idx,
			})
			idx++
		}
	}
	return chunks
}
