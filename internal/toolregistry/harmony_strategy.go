package toolregistry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"agenttic-rag/internal/llmprovider"
)

// HarmonyStrategy accepts <tool name="…">{json}</tool> blocks and the
// GPT-OSS "channel commentary" form
// <|channel|>commentary to=<name> <|constrain|>json<|message|>{json} form.
// XML-ish parsing is tried first, then falls back to a regex over the
// channel-commentary form, which must be followed by a "<|" marker.
// DedupWebSearch/RememberWebSearch keep a per-strategy cache of web_search
// results keyed by (normalized_query, sorted_filter_list, model); the
// step methods do not consult it, and nothing in the orchestrator calls
// them, so web_search calls are not deduplicated during a run.
type HarmonyStrategy struct {
	LLM llmprovider.Provider
	Temperature float64
	Model string

	mu sync.Mutex
	searchCache map[string]CallResult
}

func NewHarmonyStrategy(llm llmprovider.Provider, temperature float64, model string) *HarmonyStrategy {
	return &HarmonyStrategy{LLM: llm, Temperature: temperature, Model: model, searchCache: make(map[string]CallResult)}
}

var (
	harmonyXMLTool = regexp.MustCompile(`(?s)<tool\s+name="([^"]+)"\s*>\s*(\{.*?\})\s*</tool>`)
	harmonyChannelForm = regexp.MustCompile(`(?s)<\|channel\|>commentary to=([\w.]+)\s*<\|constrain\|>json<\|message\|>(\{.*?\})(?:<\|)`)
)

func parseHarmonyResponse(text string) StepResult {
	if m := harmonyXMLTool.FindStringSubmatch(text); m != nil {
		return StepResult{Call: &ToolCall{Name: m[1], Arguments: json.RawMessage(m[2])}}
	}
	if m := harmonyChannelForm.FindStringSubmatch(text); m != nil {
		return StepResult{Call: &ToolCall{Name: m[1], Arguments: json.RawMessage(m[2])}}
	}
	return StepResult{FinalAnswer: strings.TrimSpace(text), Done: true}
}

// searchFingerprint implements the web_search dedup key: normalized
// query (lowercased, whitespace-collapsed), filters sorted, plus model.
func searchFingerprint(query string, filters []string, model string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sorted := append([]string(nil), filters...)
	sort.Strings(sorted)
	raw := normalized + "\x00" + strings.Join(sorted, ",") + "\x00" + model
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DedupWebSearch returns a cached result for an equivalent prior
// web_search call within this run, if any.
func (s *HarmonyStrategy) DedupWebSearch(query string, filters []string) (CallResult, bool) {
	key := searchFingerprint(query, filters, s.Model)
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.searchCache[key]
	return r, ok
}

// RememberWebSearch records a web_search call's result under its
// fingerprint so a later equivalent call can reuse it.
func (s *HarmonyStrategy) RememberWebSearch(query string, filters []string, result CallResult) {
	key := searchFingerprint(query, filters, s.Model)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCache[key] = result
}

func harmonySystemPrompt(schemas []map[string]any) string {
	var b strings.Builder
	b.WriteString("You may call a tool using either:\n")
	b.WriteString(` <tool name="TOOL_NAME">{"arg": "value"}</tool>` + "\n")
	b.WriteString("or the channel-commentary form:\n")
	b.WriteString(" <|channel|>commentary to=TOOL_NAME <|constrain|>json<|message|>{\"arg\": \"value\"}\n")
	b.WriteString("Available tools:\n")
	for _, sch := range schemas {
		name, _ := sch["name"].(string)
		desc, _ := sch["description"].(string)
		fmt.Fprintf(&b, "- %s: %s\n", name, desc)
	}
	b.WriteString("If you have enough information, answer directly in plain text with no tool block.\n")
	return b.String()
}

func (s *HarmonyStrategy) ExecuteStep(ctx context.Context, messages []llmprovider.Message, schemas []map[string]any) (StepResult, error) {
	prompted := append(append([]llmprovider.Message{}, messages...), llmprovider.Message{Role: "system", Content: harmonySystemPrompt(schemas)})
	text, err := s.LLM.Complete(ctx, prompted, s.Temperature)
	if err != nil {
		return StepResult{}, fmt.Errorf("harmony strategy complete: %w", err)
	}
	return parseHarmonyResponse(text), nil
}

func (s *HarmonyStrategy) StreamExecuteStep(ctx context.Context, messages []llmprovider.Message, schemas []map[string]any, onDelta DeltaFunc) (StepResult, error) {
	prompted := append(append([]llmprovider.Message{}, messages...), llmprovider.Message{Role: "system", Content: harmonySystemPrompt(schemas)})
	var out strings.Builder
	err := s.LLM.Stream(ctx, prompted, s.Temperature, func(delta string) {
		out.WriteString(delta)
		onDelta(delta)
	})
	if err != nil {
		return StepResult{}, fmt.Errorf("harmony strategy stream: %w", err)
	}
	return parseHarmonyResponse(out.String()), nil
}

func (s *HarmonyStrategy) ForceFinalAnswer(ctx context.Context, messages []llmprovider.Message) (string, error) {
	text, err := s.LLM.Complete(ctx, appendForceFinalNote(messages), s.Temperature)
	if err != nil {
		return "", fmt.Errorf("harmony strategy force final answer: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (s *HarmonyStrategy) StreamForceFinalAnswer(ctx context.Context, messages []llmprovider.Message, onDelta DeltaFunc) (string, error) {
	var out strings.Builder
	err := s.LLM.Stream(ctx, appendForceFinalNote(messages), s.Temperature, func(delta string) {
		out.WriteString(delta)
		onDelta(delta)
	})
	if err != nil {
		return "", fmt.Errorf("harmony strategy stream force final answer: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}
