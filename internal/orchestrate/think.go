package orchestrate

import (
	"fmt"
	"strings"

	"context"

	"agenttic-rag/internal/llmprovider"
)

const thinkSystemPrompt = `You reason about one sub-question using only the context you are given and your
own background knowledge; you cannot search the web in this step.
Return strict JSON: {"thought_process": string, "preliminary_answer": string,
"confidence_level": "high"|"medium"|"low",
"knowledge_gaps": [{"gap_description": string, "importance": "high"|"medium"|"low", "search_keywords": [string]}],
"needs_verification": bool}.
List a knowledge gap whenever you are relying on an assumption or cannot confirm a fact from the context.
Return JSON only, no commentary.`

// think produces one sub-question's reasoning step.
func think(ctx context.Context, llm llmprovider.Provider, sub SubQuery, contexts []string) Thought {
	var ctxBlock strings.Builder
	for i, c := range contexts {
		fmt.Fprintf(&ctxBlock, "[%d] %s\n", i+1, c)
	}
	user := fmt.Sprintf("Context:\n%s\nSub-question (%s importance): %s", ctxBlock.String(), sub.Importance, sub.Question)

	messages := []llmprovider.Message{
		{Role: "system", Content: thinkSystemPrompt},
		{Role: "user", Content: user},
	}
	text, err := llm.Complete(ctx, messages, 0)
	if err != nil {
		return Thought{
			SubQuery: sub.Question,
			ThoughtProcess: "think call failed: " + err.Error(),
			ConfidenceLevel: ConfidenceLow,
			NeedsVerification: true,
			KnowledgeGaps: []KnowledgeGap{{
				GapDescription: sub.Question,
				Importance: ImportanceHigh,
				SearchKeywords: []string{sub.Question},
			}},
		}
	}
	var t Thought
	if !decodeJSONWithRepair(text, &t) {
		t = Thought{
			ThoughtProcess: text,
			ConfidenceLevel: ConfidenceLow,
			NeedsVerification: true,
			KnowledgeGaps: []KnowledgeGap{{
				GapDescription: sub.Question,
				Importance: ImportanceMedium,
				SearchKeywords: []string{sub.Question},
			}},
		}
	}
	t.SubQuery = sub.Question
	return t
}

// assessOverallConfidence implements's thresholds: high
// if >=70% of sub-thoughts are high, medium if >=60% are high-or-medium,
// else low.
func assessOverallConfidence(thoughts []Thought) Confidence {
	if len(thoughts) == 0 {
		return ConfidenceLow
	}
	var high, highOrMedium int
	for _, t := range thoughts {
		switch t.ConfidenceLevel {
		case ConfidenceHigh:
			high++
			highOrMedium++
		case ConfidenceMedium:
			highOrMedium++
		}
	}
	n := float64(len(thoughts))
	if float64(high)/n >= 0.7 {
		return ConfidenceHigh
	}
	if float64(highOrMedium)/n >= 0.6 {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// shouldInvokeTools implements's gap decision and
// collects every knowledge gap surfaced across all sub-thoughts.
func shouldInvokeTools(thoughts []Thought) (bool, []KnowledgeGap) {
	var gaps []KnowledgeGap
	var highImportance, needsVerification bool
	for _, t := range thoughts {
		gaps = append(gaps, t.KnowledgeGaps...)
		if t.NeedsVerification {
			needsVerification = true
		}
	}
	for _, g := range gaps {
		if g.Importance == ImportanceHigh {
			highImportance = true
			break
		}
	}
	needTools := highImportance || assessOverallConfidence(thoughts) == ConfidenceLow || needsVerification
	return needTools, gaps
}
