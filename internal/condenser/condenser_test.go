package condenser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarrag/zoterag/internal/llm"
	"github.com/scholarrag/zoterag/internal/logging"
)

func newTestManager(t *testing.T, content string) *llm.Manager {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "test-model",
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(server.Close)

	registry := llm.NewRegistry()
	registry.Register(llm.NewOpenAICompatible(llm.Metadata{ID: "fake", DefaultModel: "test-model"}, server.URL, true, nil, 0))
	manager := llm.NewManager(registry)
	require.NoError(t, manager.SetActive("fake", "test-model"))
	return manager
}

func TestShouldCondenseFirstTurnIsFalse(t *testing.T) {
	assert.False(t, ShouldCondense("Is there overlap?", nil))
}

func TestShouldCondenseDetectsAnaphora(t *testing.T) {
	history := []llm.Message{{Role: "user", Content: "What is MTL?"}, {Role: "assistant", Content: "MTL is..."}}
	assert.True(t, ShouldCondense("How does it work?", history))
}

func TestShouldCondenseDetectsEllipsis(t *testing.T) {
	history := []llm.Message{{Role: "user", Content: "How does BERT work?"}}
	assert.True(t, ShouldCondense("What about GPT?", history))
}

func TestShouldCondenseDetectsShortComparison(t *testing.T) {
	history := []llm.Message{{Role: "user", Content: "Tell me about causal inference."}}
	assert.True(t, ShouldCondense("Is there overlap?", history))
}

func TestShouldCondenseLongUnrelatedQuestionIsFalse(t *testing.T) {
	history := []llm.Message{{Role: "user", Content: "Tell me about causal inference."}}
	assert.False(t, ShouldCondense("What year was the transformer architecture paper published in a major venue?", history))
}

func TestCondenseReturnsOriginalWithNoHistory(t *testing.T) {
	c := New(newTestManager(t, "should never be called"), logging.New(logging.LevelOff))
	out := c.Condense(context.Background(), "Is there overlap?", nil)
	assert.Equal(t, "Is there overlap?", out)
}

func TestCondenseRewritesFollowUp(t *testing.T) {
	c := New(newTestManager(t, "Is there overlap between MTL and causal inference?"), logging.New(logging.LevelOff))
	history := []llm.Message{{Role: "user", Content: "What is MTL?"}, {Role: "assistant", Content: "MTL is a training paradigm."}}
	out := c.Condense(context.Background(), "Is there overlap?", history)
	assert.Equal(t, "Is there overlap between MTL and causal inference?", out)
}

func TestCondenseFallsBackOnMalformedOutput(t *testing.T) {
	c := New(newTestManager(t, "no"), logging.New(logging.LevelOff))
	history := []llm.Message{{Role: "user", Content: "What is MTL?"}, {Role: "assistant", Content: "MTL is..."}}
	out := c.Condense(context.Background(), "How does it work?", history)
	assert.Equal(t, "How does it work?", out)
}

func TestCondenseStripsQuotesAndPrefix(t *testing.T) {
	c := New(newTestManager(t, `"Standalone question: How does GPT handle embeddings?"`), logging.New(logging.LevelOff))
	history := []llm.Message{{Role: "user", Content: "How does BERT work?"}, {Role: "assistant", Content: "BERT does X."}}
	out := c.Condense(context.Background(), "What about GPT?", history)
	assert.Equal(t, "How does GPT handle embeddings?", out)
}
