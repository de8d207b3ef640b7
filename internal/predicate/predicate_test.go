package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intp(v int) *int { return &v }

func TestBuildSingleTagIsLeaf(t *testing.T) {
	p := Build(BuildArgs{Tags: []string{"nlp"}})
	leaf, ok := p["tags"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "nlp", leaf[opContains])
}

func TestBuildMultiTagIsOr(t *testing.T) {
	p := Build(BuildArgs{Tags: []string{"nlp", "transformers"}})
	_, ok := p[keyOr]
	assert.True(t, ok, "multiple tags must build an $or disjunction")
}

func TestBuildYearExcludesUnknownSentinel(t *testing.T) {
	y := 2020
	p := Build(BuildArgs{YearMin: &y, YearMax: &y})
	and, ok := p[keyAnd].([]Predicate)
	assert.True(t, ok)
	foundNe := false
	for _, leaf := range and {
		if ops, ok := leaf["year"].(map[string]any); ok {
			if v, ok := ops[opNe]; ok {
				assert.Equal(t, UnknownYear, v)
				foundNe = true
			}
		}
	}
	assert.True(t, foundNe, "year filter must exclude the -1 sentinel")
}

func TestBuildItemTypeSingleUsesEq(t *testing.T) {
	p := Build(BuildArgs{ItemTypes: []string{"Journal Article"}})
	ops := p["item_type"].(map[string]any)
	assert.Equal(t, "journalArticle", ops[opEq])
}

func TestBuildItemTypeMultiUsesIn(t *testing.T) {
	p := Build(BuildArgs{ItemTypes: []string{"Book", "Thesis"}})
	ops := p["item_type"].(map[string]any)
	in := ops[opIn].([]any)
	assert.ElementsMatch(t, []any{"book", "thesis"}, in)
}

func TestBuildEmptyArgsReturnsNil(t *testing.T) {
	p := Build(BuildArgs{})
	assert.Nil(t, p)
}

func TestSplitPushesOrWithContainsClientSide(t *testing.T) {
	year := Predicate{"year": map[string]any{opGte: 2020}}
	tags := Predicate{keyOr: []Predicate{
		{"tags": map[string]any{opContains: "nlp"}},
		{"tags": map[string]any{opContains: "transformers"}},
	}}
	combined := Predicate{keyAnd: []Predicate{year, tags}}

	store, client := Split(combined)

	assert.False(t, hasContains(store))
	assert.True(t, hasContains(client))
}

func TestSplitScenario3YearAndTagContains(t *testing.T) {
	y := 2020
	p := Build(BuildArgs{YearMin: &y, Tags: []string{"transformers"}})
	store, client := Split(p)
	assert.False(t, hasContains(store))
	assert.NotNil(t, client)
	assert.True(t, hasContains(client))
}

func TestMatchesCaseInsensitiveContains(t *testing.T) {
	p := Predicate{"title": map[string]any{opContains: "Transformers"}}
	assert.True(t, Matches(map[string]any{"title": "Attention and transformers models"}, p))
	assert.False(t, Matches(map[string]any{"title": "Recurrent networks"}, p))
}

func TestMatchesYearBoundary(t *testing.T) {
	y := 2020
	p := Build(BuildArgs{YearMin: &y, YearMax: &y})
	assert.True(t, Matches(map[string]any{"year": 2020}, p))
	assert.False(t, Matches(map[string]any{"year": UnknownYear}, p))
	assert.False(t, Matches(map[string]any{"year": 2019}, p))
}

func TestMergeNilPassthrough(t *testing.T) {
	p := Predicate{"year": map[string]any{opGte: 2020}}
	assert.Equal(t, p, Merge(p, nil))
	assert.Equal(t, p, Merge(nil, p))
	assert.Nil(t, Merge(nil, nil))
}

func TestMergeConjoinsBoth(t *testing.T) {
	p := Predicate{"year": map[string]any{opGte: 2020}}
	q := Predicate{"item_type": map[string]any{opEq: "book"}}
	merged := Merge(p, q)
	and, ok := merged[keyAnd].([]Predicate)
	assert.True(t, ok)
	assert.Len(t, and, 2)
}

func TestSplitStoreOnlyPredicateUnchanged(t *testing.T) {
	p := Predicate{"item_type": map[string]any{opIn: []any{"book", "thesis"}}}
	store, client := Split(p)
	assert.Equal(t, p, store)
	assert.Nil(t, client)
}

func TestInternalItemTypePassesThroughUnknown(t *testing.T) {
	assert.Equal(t, "journalArticle", InternalItemType("Journal Article"))
	assert.Equal(t, "journalArticle", InternalItemType("journalArticle"))
}
