package toolregistry

import (
	"context"
	"fmt"
	"strings"

	"agenttic-rag/internal/config"
	"agenttic-rag/internal/llmprovider"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
)

// JSONStrategy is the default, non-OSS-model strategy: tool
// definitions are passed as OpenAI-style `tools`, the model is left to
// pick tool_choice="auto", and `message.tool_calls[0]` is parsed into a
// ToolCall. Grounded on the internal/llm/openai client's own
// Chat.Completions call shape, reused here directly (rather than through
// llmprovider.Provider) because tool-calling is an OpenAI-specific wire
// feature the abstracted Provider interface deliberately doesn't expose.
type JSONStrategy struct {
	client sdk.Client
	model string
}

// NewJSONStrategy builds a JSONStrategy against the configured OpenAI
// (or OpenAI-compatible) endpoint.
func NewJSONStrategy(cfg config.OpenAIConfig) *JSONStrategy {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &JSONStrategy{client: sdk.NewClient(opts...), model: model}
}

func toOpenAITools(schemas []map[string]any) []sdk.ChatCompletionToolParam {
	out := make([]sdk.ChatCompletionToolParam, 0, len(schemas))
	for _, schema := range schemas {
		name, _ := schema["name"].(string)
		description, _ := schema["description"].(string)
		parameters, _ := schema["parameters"].(map[string]any)
		out = append(out, sdk.ChatCompletionToolParam{
			Function: sdk.FunctionDefinitionParam{
				Name: name,
				Description: param.NewOpt(description),
				Parameters: parameters,
			},
		})
	}
	return out
}

func toOpenAIChatMessages(messages []llmprovider.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		case "tool":
			out = append(out, sdk.ToolMessage(m.Content, ""))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

func (s *JSONStrategy) ExecuteStep(ctx context.Context, messages []llmprovider.Message, schemas []map[string]any) (StepResult, error) {
	params := sdk.ChatCompletionNewParams{
		Model: s.model,
		Messages: toOpenAIChatMessages(messages),
		Tools: toOpenAITools(schemas),
	}
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return StepResult{}, fmt.Errorf("json strategy chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return StepResult{}, fmt.Errorf("json strategy: no choices returned")
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return StepResult{FinalAnswer: msg.Content, Done: true}, nil
	}
	tc := msg.ToolCalls[0]
	return StepResult{
		Thought: msg.Content,
		Call: &ToolCall{Name: tc.Function.Name, Arguments: []byte(tc.Function.Arguments)},
	}, nil
}

func (s *JSONStrategy) StreamExecuteStep(ctx context.Context, messages []llmprovider.Message, schemas []map[string]any, onDelta DeltaFunc) (StepResult, error) {
	params := sdk.ChatCompletionNewParams{
		Model: s.model,
		Messages: toOpenAIChatMessages(messages),
		Tools: toOpenAITools(schemas),
	}
	stream := s.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var content strings.Builder
	toolCallName, toolCallArgs := "", strings.Builder{}
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			onDelta(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			if tc.Function.Name != "" {
				toolCallName = tc.Function.Name
			}
			toolCallArgs.WriteString(tc.Function.Arguments)
		}
	}
	if err := stream.Err(); err != nil {
		return StepResult{}, fmt.Errorf("json strategy streaming chat completion: %w", err)
	}
	if toolCallName == "" {
		return StepResult{FinalAnswer: content.String(), Done: true}, nil
	}
	return StepResult{
		Thought: content.String(),
		Call: &ToolCall{Name: toolCallName, Arguments: []byte(toolCallArgs.String())},
	}, nil
}

func (s *JSONStrategy) ForceFinalAnswer(ctx context.Context, messages []llmprovider.Message) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model: s.model,
		Messages: toOpenAIChatMessages(appendForceFinalNote(messages)),
	}
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("json strategy force final answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("json strategy force final answer: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *JSONStrategy) StreamForceFinalAnswer(ctx context.Context, messages []llmprovider.Message, onDelta DeltaFunc) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model: s.model,
		Messages: toOpenAIChatMessages(appendForceFinalNote(messages)),
	}
	stream := s.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	var out strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if d := chunk.Choices[0].Delta.Content; d != "" {
			out.WriteString(d)
			onDelta(d)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("json strategy streaming force final answer: %w", err)
	}
	return out.String(), nil
}
