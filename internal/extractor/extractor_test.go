package extractor

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

func TestExtractFiltersWithNoManagerReturnsEmpty(t *testing.T) {
	e := New(nil, logging.New(logging.LevelOff))
	f := e.ExtractFilters(context.Background(), "papers by Berlant about optimism")
	assert.False(t, f.HasFilters)
}

func TestExtractFiltersParsesPlainJSON(t *testing.T) {
	content := `{"year_min": null, "year_max": null, "tags": ["optimism"], "collections": [], "author": "Berlant", "title": null, "item_types": []}`
	e := New(newTestManager(t, content), logging.New(logging.LevelOff))
	f := e.ExtractFilters(context.Background(), "papers by Berlant about optimism")
	require.True(t, f.HasFilters)
	assert.Equal(t, "Berlant", f.Author)
	assert.Equal(t, []string{"optimism"}, f.Tags)
}

func TestExtractFiltersParsesMarkdownFencedJSON(t *testing.T) {
	content := "Here you go:\n```json\n{\"year_min\": 2018, \"year_max\": 2023, \"tags\": [], \"collections\": [], \"author\": null, \"title\": null, \"item_types\": []}\n```"
	e := New(newTestManager(t, content), logging.New(logging.LevelOff))
	f := e.ExtractFilters(context.Background(), "papers from 2018 to 2023")
	require.True(t, f.HasFilters)
	require.NotNil(t, f.YearMin)
	assert.Equal(t, 2018, *f.YearMin)
	require.NotNil(t, f.YearMax)
	assert.Equal(t, 2023, *f.YearMax)
}

func TestExtractFiltersRhetoricalQuestionHasNoFilters(t *testing.T) {
	content := `{"year_min": null, "year_max": null, "tags": [], "collections": [], "author": null, "title": null, "item_types": []}`
	e := New(newTestManager(t, content), logging.New(logging.LevelOff))
	f := e.ExtractFilters(context.Background(), "What does Berlant argue?")
	assert.False(t, f.HasFilters)
}

func TestExtractFiltersMalformedJSONReturnsEmpty(t *testing.T) {
	e := New(newTestManager(t, "not json at all"), logging.New(logging.LevelOff))
	f := e.ExtractFilters(context.Background(), "anything")
	assert.False(t, f.HasFilters)
}

func TestExtractFiltersThesisMapsItemType(t *testing.T) {
	content := `{"year_min": null, "year_max": null, "tags": [], "collections": [], "author": null, "title": null, "item_types": ["thesis"]}`
	e := New(newTestManager(t, content), logging.New(logging.LevelOff))
	f := e.ExtractFilters(context.Background(), "find me a PhD thesis on optimism")
	require.True(t, f.HasFilters)
	assert.Equal(t, []string{"thesis"}, f.ItemTypes)
}

func TestToPredicateWithNoFiltersIsNil(t *testing.T) {
	f := Filters{}
	assert.Nil(t, f.ToPredicate())
}

func TestToPredicateBuildsPredicateFromFilters(t *testing.T) {
	f := Filters{Author: "Berlant", Tags: []string{"optimism"}, HasFilters: true}
	p := f.ToPredicate()
	assert.NotNil(t, p)
}
