package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agenttic-rag/internal/llmprovider"
)

// LLMNamer asks the configured LLM for a short display title and a
// machine-safe collection slug for a freshly discovered URL. Any failure
// (transport error, unparsable response) is returned to the caller, which
// falls back to a URL-derived name.
type LLMNamer struct {
	LLM llmprovider.Provider
	Temperature float64
}

func NewLLMNamer(llm llmprovider.Provider, temperature float64) *LLMNamer {
	return &LLMNamer{LLM: llm, Temperature: temperature}
}

const namerSystemPrompt = `Given a URL, respond with bare JSON only: ` +
	`{"document_name": "<short human-readable title>", "collection_name": "<lowercase_snake_case_slug>"}. ` +
	`No markdown fences, no commentary.`

type namerResponse struct {
	DocumentName string `json:"document_name"`
	CollectionName string `json:"collection_name"`
}

func (n *LLMNamer) Name(ctx context.Context, url string) (documentName, collectionName string, err error) {
	messages := []llmprovider.Message{
		{Role: "system", Content: namerSystemPrompt},
		{Role: "user", Content: url},
	}
	raw, err := n.LLM.Complete(ctx, messages, n.Temperature)
	if err != nil {
		return "", "", fmt.Errorf("namer completion: %w", err)
	}
	var resp namerResponse
	if err := json.Unmarshal([]byte(stripFence(raw)), &resp); err != nil {
		return "", "", fmt.Errorf("namer response parse: %w", err)
	}
	if resp.DocumentName == "" || resp.CollectionName == "" {
		return "", "", fmt.Errorf("namer response missing document_name/collection_name")
	}
	return resp.DocumentName, resp.CollectionName, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
