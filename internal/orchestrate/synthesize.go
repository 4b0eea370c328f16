package orchestrate

import (
	"fmt"
	"strings"

	"agenttic-rag/internal/llmprovider"
)

const synthesisSystemPrompt = `You answer the user's question directly and naturally, as if you already knew
the material. Never say "according to search results" or otherwise reference how the
information was obtained. If important information is still missing, say so plainly
instead of inventing it.`

// buildSynthesisMessages assembles the prompt: original
// question, a reasoning summary, per-gap recalled content, and the
// original passages.
func buildSynthesisMessages(query string, thoughts []Thought, recalled []RecalledPassage, passages []string) []llmprovider.Message {
	var b strings.Builder
	if len(thoughts) > 0 {
		b.WriteString("Reasoning so far:\n")
		for _, t := range thoughts {
			fmt.Fprintf(&b, "- %s: %s\n", t.SubQuery, t.PreliminaryAnswer)
		}
		b.WriteString("\n")
	}
	if len(recalled) > 0 {
		b.WriteString("Newly found information:\n")
		for i, r := range recalled {
			fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, r.SourceTitle, r.Content)
		}
		b.WriteString("\n")
	}
	if len(passages) > 0 {
		b.WriteString("Original context:\n")
		for i, p := range passages {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, p)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s", query)

	return []llmprovider.Message{
		{Role: "system", Content: synthesisSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

const gapAwareSystemPrompt = `You answer using only your own knowledge and the provided context; external
search is unavailable for this answer. Give the best answer you can, then explicitly list
which specific pieces of information are missing and why they matter. Do not invent facts
to fill the gaps.`

// buildGapAwareMessages implements tools are
// unavailable but gaps exist, so the answer must enumerate them instead
// of silently guessing.
func buildGapAwareMessages(query string, gaps []KnowledgeGap, passages []string) []llmprovider.Message {
	var b strings.Builder
	if len(passages) > 0 {
		b.WriteString("Context:\n")
		for i, p := range passages {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, p)
		}
		b.WriteString("\n")
	}
	if len(gaps) > 0 {
		b.WriteString("Known knowledge gaps (tools are disabled, so these could not be resolved):\n")
		for i, g := range gaps {
			fmt.Fprintf(&b, "%d. %s (importance: %s)\n", i+1, g.GapDescription, g.Importance)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s", query)

	return []llmprovider.Message{
		{Role: "system", Content: gapAwareSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

const contextOnlySystemPrompt = `You are a knowledgeable assistant. Answer the user's question directly using
your own knowledge and the provided context. Do not mention searching or looking anything up.`

func buildContextOnlyMessages(query string, passages []string) []llmprovider.Message {
	var b strings.Builder
	if len(passages) > 0 {
		b.WriteString("Context:\n")
		for i, p := range passages {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, p)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s", query)
	return []llmprovider.Message{
		{Role: "system", Content: contextOnlySystemPrompt},
		{Role: "user", Content: b.String()},
	}
}
