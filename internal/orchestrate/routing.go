package orchestrate

import (
	"context"
	"fmt"
	"strings"

	"agenttic-rag/internal/llmprovider"
)

const routingSystemPrompt = `You classify a user question before it is answered.
Return strict JSON: {"use_fast_route": bool, "needs_tools": bool, "reason": string}.
use_fast_route is true when the question is simple enough to skip multi-step decomposition.
needs_tools is true when answering correctly requires information beyond general knowledge
and the provided context (current events, specific facts you cannot verify, etc).
Return JSON only, no commentary.`

// classifyRoute asks the LLM to classify the question.
// On any parse failure it falls back to the safe default of routing
// through the full decompose/think pipeline with tools available.
func classifyRoute(ctx context.Context, llm llmprovider.Provider, query string, history []llmprovider.Message) RouteDecision {
	messages := append(append([]llmprovider.Message{}, history...), llmprovider.Message{
		Role: "user",
		Content: fmt.Sprintf("Question: %s", query),
	})
	messages = append([]llmprovider.Message{{Role: "system", Content: routingSystemPrompt}}, messages...)

	text, err := llm.Complete(ctx, messages, 0)
	if err != nil {
		return RouteDecision{UseFastRoute: false, NeedsTools: true, Reason: "routing call failed: " + err.Error()}
	}
	var decision RouteDecision
	if !decodeJSONWithRepair(text, &decision) {
		return RouteDecision{UseFastRoute: false, NeedsTools: true, Reason: "routing response was not parseable JSON"}
	}
	return decision
}

// isSimpleQuery is a cheap classifier:
// short questions with no coordinating conjunctions are treated as atomic.
func isSimpleQuery(query string) bool {
	words := strings.Fields(query)
	if len(words) > 12 {
		return false
	}
	lower := strings.ToLower(query)
	for _, marker := range []string{" and ", " or ", " compare ", " versus ", " vs ", " both ", ";"} {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
