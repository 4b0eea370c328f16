package orchestrate

import (
	"strings"

	"agenttic-rag/internal/config"
)

// planSearchQueries turns knowledge gaps plus the original query into a
// deduped, length-bounded list of search queries,
// grounded on the original service's SearchPlanner: gap keywords first
// (capped per gap), then the normalized original query as a supplement,
// each query word-capped, the whole list case-insensitively deduped and
// capped at the configured query count. Simple queries use a tighter cap
// on both counts.
func planSearchQueries(originalQuery string, gaps []KnowledgeGap, isSimple bool, cfg config.OrchestrateConfig) []string {
	maxQueries := cfg.MaxQueries
	maxWords := cfg.MaxWordsPerQuery
	if isSimple {
		maxQueries = cfg.SimpleQueryMaxQueries
		maxWords = cfg.SimpleQueryMaxWordsPerQuery
	}
	if maxQueries <= 0 {
		maxQueries = 5
	}
	if maxWords <= 0 {
		maxWords = 8
	}

	var raw []string
	for _, g := range gaps {
		kws := g.SearchKeywords
		if len(kws) > cfg.MaxKeywordsPerGap && cfg.MaxKeywordsPerGap > 0 {
			kws = kws[:cfg.MaxKeywordsPerGap]
		}
		raw = append(raw, kws...)
	}
	raw = append(raw, originalQuery)

	seen := make(map[string]bool, len(raw))
	var out []string
	for _, q := range raw {
		q = capWords(strings.TrimSpace(q), maxWords)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) >= maxQueries {
			break
		}
	}
	return out
}

func capWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ")
}
