package llmprovider

import (
	"testing"

	"agenttic-rag/internal/config"

	"github.com/stretchr/testify/require"
)

func TestBuildDispatchesByProvider(t *testing.T) {
	cfg := config.LLMConfig{
		Provider:  "anthropic",
		Anthropic: config.AnthropicConfig{APIKey: "test-key"},
	}
	p, err := Build(cfg, nil)
	require.NoError(t, err)
	_, ok := p.(*anthropicProvider)
	require.True(t, ok)
}

func TestBuildDefaultsToOpenAI(t *testing.T) {
	cfg := config.LLMConfig{OpenAI: config.OpenAIConfig{APIKey: "test-key"}}
	p, err := Build(cfg, nil)
	require.NoError(t, err)
	_, ok := p.(*openaiProvider)
	require.True(t, ok)
}

func TestBuildGoogle(t *testing.T) {
	cfg := config.LLMConfig{Provider: "google", Google: config.GoogleConfig{APIKey: "test-key"}}
	p, err := Build(cfg, nil)
	require.NoError(t, err)
	_, ok := p.(*googleProvider)
	require.True(t, ok)
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	_, err := Build(config.LLMConfig{Provider: "mystery"}, nil)
	require.Error(t, err)
}

func TestToOpenAIMessagesMapsRoles(t *testing.T) {
	msgs := toOpenAIMessages([]Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	require.Len(t, msgs, 3)
}

func TestToAnthropicParamsSplitsSystemMessage(t *testing.T) {
	params := toAnthropicParams("claude-3-7-sonnet-latest", []Message{
		{Role: "system", Content: "be concise"},
		{Role: "user", Content: "hi"},
	})
	require.Len(t, params.System, 1)
	require.Equal(t, "be concise", params.System[0].Text)
	require.Len(t, params.Messages, 1)
}

func TestToGenaiContentsMapsAssistantToModelRole(t *testing.T) {
	contents := toGenaiContents([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	require.Len(t, contents, 2)
	require.Equal(t, "user", string(contents[0].Role))
	require.Equal(t, "model", string(contents[1].Role))
}
