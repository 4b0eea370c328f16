package orchestrate

import (
	"strings"
	"testing"

	"agenttic-rag/internal/config"

	"github.com/stretchr/testify/require"
)

func testOrchestrateConfig() config.OrchestrateConfig {
	return config.OrchestrateConfig{
		MaxQueries:                  5,
		MaxWordsPerQuery:            4,
		MaxKeywordsPerGap:           2,
		SimpleQueryMaxQueries:       2,
		SimpleQueryMaxWordsPerQuery: 3,
		GapRecallTopK:               5,
	}
}

func TestPlanSearchQueriesDedupesCaseInsensitively(t *testing.T) {
	gaps := []KnowledgeGap{
		{SearchKeywords: []string{"golang concurrency"}},
		{SearchKeywords: []string{"Golang Concurrency"}},
	}
	queries := planSearchQueries("how does golang handle concurrency", gaps, false, testOrchestrateConfig())
	require.Len(t, queries, 2) // one deduped gap keyword + the original query
}

func TestPlanSearchQueriesCapsPerGapKeywords(t *testing.T) {
	gaps := []KnowledgeGap{
		{SearchKeywords: []string{"a", "b", "c", "d"}},
	}
	cfg := testOrchestrateConfig()
	queries := planSearchQueries("original query text here", gaps, false, cfg)
	require.LessOrEqual(t, len(queries), cfg.MaxQueries)
	require.Contains(t, queries, "a")
	require.Contains(t, queries, "b")
	require.NotContains(t, queries, "c")
}

func TestPlanSearchQueriesUsesSimpleConfig(t *testing.T) {
	cfg := testOrchestrateConfig()
	queries := planSearchQueries("one two three four five six seven", nil, true, cfg)
	require.LessOrEqual(t, len(queries), cfg.SimpleQueryMaxQueries)
	for _, q := range queries {
		require.LessOrEqual(t, len(strings.Fields(q)), cfg.SimpleQueryMaxWordsPerQuery)
	}
}

func TestCapWordsTruncates(t *testing.T) {
	require.Equal(t, "a b c", capWords("a b c d e", 3))
	require.Equal(t, "a b", capWords("a b", 3))
}
