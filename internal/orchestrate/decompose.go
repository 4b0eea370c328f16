package orchestrate

import (
	"context"
	"fmt"

	"agenttic-rag/internal/llmprovider"
)

const decomposeSystemPrompt = `You break a user's question into sub-questions for independent research.
Classify complexity as simple (1 sub-question), medium (up to 3), or complex (up to 5).
Return strict JSON: {"sub_queries": [{"question": string, "importance": "high"|"medium"|"low"}],
"key_entities": [string], "verification_points": [string]}.
Return JSON only, no commentary.`

// decompose breaks the question into sub-queries. The
// cheap isSimpleQuery classifier short-circuits to a single sub-query
// without an LLM round-trip; everything else asks the LLM.
func decompose(ctx context.Context, llm llmprovider.Provider, query string, history []llmprovider.Message) (Decomposition, error) {
	if isSimpleQuery(query) {
		return Decomposition{
			SubQueries: []SubQuery{{Question: query, Importance: ImportanceMedium}},
		}, nil
	}

	messages := append(append([]llmprovider.Message{}, history...), llmprovider.Message{
		Role: "user",
		Content: fmt.Sprintf("Question: %s", query),
	})
	messages = append([]llmprovider.Message{{Role: "system", Content: decomposeSystemPrompt}}, messages...)

	text, err := llm.Complete(ctx, messages, 0)
	if err != nil {
		return fallbackDecomposition(query), nil
	}
	var d Decomposition
	if !decodeJSONWithRepair(text, &d) || len(d.SubQueries) == 0 {
		return fallbackDecomposition(query), nil
	}
	return d, nil
}

func fallbackDecomposition(query string) Decomposition {
	return Decomposition{SubQueries: []SubQuery{{Question: query, Importance: ImportanceMedium}}}
}
