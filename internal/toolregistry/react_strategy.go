package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"agenttic-rag/internal/llmprovider"
)

// ReActStrategy prompts the model with the classic Thought/Action/Action
// Input/Observation/Final Answer protocol and line-anchors
// regexes to parse it back out. Works against any llmprovider.Provider,
// since the protocol is plain text rather than a provider-specific wire
// feature (unlike JSONStrategy's OpenAI `tools` field).
type ReActStrategy struct {
	LLM llmprovider.Provider
	// Temperature is passed straight through to the provider.
	Temperature float64
}

func NewReActStrategy(llm llmprovider.Provider, temperature float64) *ReActStrategy {
	return &ReActStrategy{LLM: llm, Temperature: temperature}
}

var (
	reActThought = regexp.MustCompile(`(?m)^Thought:\s*(.*)$`)
	reActAction = regexp.MustCompile(`(?m)^Action:\s*(.*)$`)
	reActActionInput = regexp.MustCompile(`(?m)^Action Input:\s*(.*)$`)
	reActFinalAnswer = regexp.MustCompile(`(?m)^Final Answer:\s*([\s\S]*)$`)
)

func reActSystemPrompt(schemas []map[string]any, stepsRemaining int) string {
	var tools strings.Builder
	for _, s := range schemas {
		name, _ := s["name"].(string)
		desc, _ := s["description"].(string)
		fmt.Fprintf(&tools, "- %s: %s\n", name, desc)
	}
	var b strings.Builder
	b.WriteString("Answer using this strict protocol, one field per line:\n")
	b.WriteString("Thought: your reasoning\n")
	b.WriteString("Action: a tool name from the list below, or omit if ready to answer\n")
	b.WriteString("Action Input: a JSON object of arguments for the tool\n")
	b.WriteString("Observation: (filled in by the system, do not write this yourself)\n")
	b.WriteString("Final Answer: your answer, once you have enough information\n\n")
	b.WriteString("Available tools:\n")
	b.WriteString(tools.String())
	b.WriteString("\nDo not repeat a search you have already made with an equivalent query.\n")
	if stepsRemaining <= 1 {
		b.WriteString("This is your last step: you must give a Final Answer now, not another Action.\n")
	}
	return b.String()
}

// parseActionInput best-effort parses the Action Input line: JSON object
// if parseable, else a best-effort key=value line, else wraps the raw
// text as {"input": "…"}.
func parseActionInput(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage(`{}`)
	}
	var probe map[string]any
	if err := json.Unmarshal([]byte(raw), &probe); err == nil {
		return json.RawMessage(raw)
	}
	if kv := parseKeyValueInput(raw); kv != nil {
		if b, err := json.Marshal(kv); err == nil {
			return json.RawMessage(b)
		}
	}
	b, _ := json.Marshal(map[string]string{"input": raw})
	return b
}

func parseKeyValueInput(raw string) map[string]string {
	parts := strings.Split(raw, ",")
	out := make(map[string]string, len(parts))
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseReActResponse(text string) StepResult {
	if m := reActFinalAnswer.FindStringSubmatch(text); m != nil {
		return StepResult{FinalAnswer: strings.TrimSpace(m[1]), Done: true}
	}
	thought := ""
	if m := reActThought.FindStringSubmatch(text); m != nil {
		thought = strings.TrimSpace(m[1])
	}
	action := ""
	if m := reActAction.FindStringSubmatch(text); m != nil {
		action = strings.TrimSpace(m[1])
	}
	if action == "" {
		// No parseable action and no final answer: treat the whole
		// response as a best-effort final answer rather than looping
		// forever on an unparseable turn.
		return StepResult{Thought: thought, FinalAnswer: strings.TrimSpace(text), Done: true}
	}
	var input string
	if m := reActActionInput.FindStringSubmatch(text); m != nil {
		input = m[1]
	}
	return StepResult{
		Thought: thought,
		Call: &ToolCall{Name: action, Arguments: parseActionInput(input)},
	}
}

func (s *ReActStrategy) ExecuteStep(ctx context.Context, messages []llmprovider.Message, schemas []map[string]any) (StepResult, error) {
	prompted := append(append([]llmprovider.Message{}, messages...), llmprovider.Message{Role: "system", Content: reActSystemPrompt(schemas, 0)})
	text, err := s.LLM.Complete(ctx, prompted, s.Temperature)
	if err != nil {
		return StepResult{}, fmt.Errorf("react strategy complete: %w", err)
	}
	return parseReActResponse(text), nil
}

func (s *ReActStrategy) StreamExecuteStep(ctx context.Context, messages []llmprovider.Message, schemas []map[string]any, onDelta DeltaFunc) (StepResult, error) {
	prompted := append(append([]llmprovider.Message{}, messages...), llmprovider.Message{Role: "system", Content: reActSystemPrompt(schemas, 0)})
	var out strings.Builder
	err := s.LLM.Stream(ctx, prompted, s.Temperature, func(delta string) {
		out.WriteString(delta)
		onDelta(delta)
	})
	if err != nil {
		return StepResult{}, fmt.Errorf("react strategy stream: %w", err)
	}
	return parseReActResponse(out.String()), nil
}

func (s *ReActStrategy) ForceFinalAnswer(ctx context.Context, messages []llmprovider.Message) (string, error) {
	text, err := s.LLM.Complete(ctx, appendForceFinalNote(messages), s.Temperature)
	if err != nil {
		return "", fmt.Errorf("react strategy force final answer: %w", err)
	}
	if m := reActFinalAnswer.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	return strings.TrimSpace(text), nil
}

func (s *ReActStrategy) StreamForceFinalAnswer(ctx context.Context, messages []llmprovider.Message, onDelta DeltaFunc) (string, error) {
	var out strings.Builder
	err := s.LLM.Stream(ctx, appendForceFinalNote(messages), s.Temperature, func(delta string) {
		out.WriteString(delta)
		onDelta(delta)
	})
	if err != nil {
		return "", fmt.Errorf("react strategy stream force final answer: %w", err)
	}
	if m := reActFinalAnswer.FindStringSubmatch(out.String()); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	return strings.TrimSpace(out.String()), nil
}
