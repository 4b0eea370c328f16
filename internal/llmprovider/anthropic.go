package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"agenttic-rag/internal/config"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens int64 = 1024

type anthropicProvider struct {
	sdk   anthropic.Client
	model string
}

func newAnthropicProvider(cfg config.AnthropicConfig, httpClient *http.Client) *anthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &anthropicProvider{sdk: anthropic.NewClient(opts...), model: model}
}

func toAnthropicParams(model string, messages []Message) anthropic.MessageNewParams {
	var system string
	var converted []anthropic.MessageParam
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			system = m.Content
		case "assistant":
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  converted,
		MaxTokens: anthropicDefaultMaxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (p *anthropicProvider) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	params := toAnthropicParams(p.model, messages)
	resp, err := p.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	return out.String(), nil
}

func (p *anthropicProvider) Stream(ctx context.Context, messages []Message, temperature float64, onDelta StreamFunc) error {
	params := toAnthropicParams(p.model, messages)
	stream := p.sdk.Messages.NewStreaming(ctx, params)
	defer stream.Close()
	for stream.Next() {
		event := stream.Current()
		if blockDelta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if textDelta, ok := blockDelta.Delta.AsAny().(anthropic.TextDelta); ok {
				onDelta(textDelta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic streaming message: %w", err)
	}
	return nil
}
