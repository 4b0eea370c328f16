// Package llmprovider wraps the three LLM backends the orchestrator and
// retrieval synthesis step can be configured against — OpenAI, Anthropic,
// and Google Gemini — behind one small Provider interface, grounded on
// internal/llm/{openai,anthropic,google} clients' SDK call
// patterns but rewired against this module's own configuration shape.
package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"agenttic-rag/internal/config"
)

// Message is a single chat turn. Role is "system", "user", or "assistant".
type Message struct {
	Role string
	Content string
}

// StreamFunc receives incremental text as it is produced.
type StreamFunc func(delta string)

// Provider is the minimal surface C9 (synthesis) and C11 (decompose/think/
// synthesize) need: a blocking completion and a streamed one.
type Provider interface {
	Complete(ctx context.Context, messages []Message, temperature float64) (string, error)
	Stream(ctx context.Context, messages []Message, temperature float64, onDelta StreamFunc) error
}

// Build constructs the configured Provider.
func Build(cfg config.LLMConfig, httpClient *http.Client) (Provider, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return newOpenAIProvider(cfg.OpenAI, httpClient), nil
	case "anthropic":
		return newAnthropicProvider(cfg.Anthropic, httpClient), nil
	case "google", "gemini":
		return newGoogleProvider(cfg.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
