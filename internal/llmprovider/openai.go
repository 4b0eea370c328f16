package llmprovider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"agenttic-rag/internal/config"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
)

type openaiProvider struct {
	client sdk.Client
	model  string
}

func newOpenAIProvider(cfg config.OpenAIConfig, httpClient *http.Client) *openaiProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openaiProvider{client: sdk.NewClient(opts...), model: model}
}

func toOpenAIMessages(msgs []Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

func (p *openaiProvider) Complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: param.NewOpt(temperature),
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openaiProvider) Stream(ctx context.Context, messages []Message, temperature float64, onDelta StreamFunc) error {
	params := sdk.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: param.NewOpt(temperature),
	}
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			onDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai streaming chat completion: %w", err)
	}
	return nil
}
