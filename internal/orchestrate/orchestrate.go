package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agenttic-rag/internal/config"
	"agenttic-rag/internal/llmprovider"
	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/retrieve"
	"agenttic-rag/internal/sse"
	"agenttic-rag/internal/toolregistry"

	"github.com/google/uuid"
)

// Orchestrator wires the decompose/think/search/synthesize pipeline (C11)
// on top of C9's retrieval pipeline and C10's tool registry.
type Orchestrator struct {
	LLM llmprovider.Provider
	Registry *toolregistry.Registry
	Strategy toolregistry.Strategy
	Retrieve *retrieve.Pipeline
	Config config.Config
}

func New(llm llmprovider.Provider, registry *toolregistry.Registry, strategy toolregistry.Strategy, retrievePipeline *retrieve.Pipeline, cfg config.Config) *Orchestrator {
	return &Orchestrator{LLM: llm, Registry: registry, Strategy: strategy, Retrieve: retrievePipeline, Config: cfg}
}

// Process runs the non-stream path of the orchestrator's 10-step algorithm.
func (o *Orchestrator) Process(ctx context.Context, req Request) (Result, error) {
	if !req.RunConfig.toolsEnabled() || o.Registry == nil {
		answer, err := o.LLM.Complete(ctx, buildContextOnlyMessages(req.Query, req.Passages), o.Config.LLM.Temperature)
		if err != nil {
			return Result{}, fmt.Errorf("context-only synthesis: %w", err)
		}
		return Result{Answer: answer, Success: true}, nil
	}

	route := classifyRoute(ctx, o.LLM, req.Query, req.ConversationHistory)
	if route.UseFastRoute {
		if !route.NeedsTools {
			answer, err := o.LLM.Complete(ctx, buildContextOnlyMessages(req.Query, req.Passages), o.Config.LLM.Temperature)
			if err != nil {
				return Result{}, fmt.Errorf("fast-route context-only synthesis: %w", err)
			}
			return Result{Answer: answer, Success: true}, nil
		}
		return o.runSingleShotTool(ctx, req)
	}

	decomposition, err := decompose(ctx, o.LLM, req.Query, req.ConversationHistory)
	if err != nil {
		return Result{}, fmt.Errorf("decompose: %w", err)
	}

	thoughts := make([]Thought, 0, len(decomposition.SubQueries))
	for _, sub := range decomposition.SubQueries {
		thoughts = append(thoughts, think(ctx, o.LLM, sub, req.Passages))
	}

	needTools, gaps := shouldInvokeTools(thoughts)

	if !needTools {
		answer, err := o.LLM.Complete(ctx, buildSynthesisMessages(req.Query, thoughts, nil, req.Passages), o.Config.LLM.Temperature)
		if err != nil {
			return Result{}, fmt.Errorf("synthesize without tools: %w", err)
		}
		return Result{Answer: answer, Decomposition: &decomposition, Reasoning: thoughts, UsedTools: false, Success: true}, nil
	}

	// toolsEnabled() passed (tool_mode isn't off), but the registry may
	// still have nothing usable registered for this request's allow-list.
	if len(o.Registry.Schemas(req.RunConfig.AllowedTools)) == 0 {
		answer, err := o.SynthesizeGapAwareAnswer(ctx, req.Query, gaps, req.Passages)
		if err != nil {
			return Result{}, fmt.Errorf("gap-aware synthesis without tools: %w", err)
		}
		return Result{
			Answer: answer, Decomposition: &decomposition, Reasoning: thoughts,
			UsedTools: false, Success: true, KnowledgeGaps: gaps,
		}, nil
	}

	recalled, err := o.executeSearchAndRecall(ctx, req, gaps)
	if err != nil {
		logging.Log.WithError(err).Warn("search and recall failed, synthesizing from reasoning alone")
		recalled = nil
	}

	answer, err := o.LLM.Complete(ctx, buildSynthesisMessages(req.Query, thoughts, recalled, req.Passages), o.Config.LLM.Temperature)
	if err != nil {
		return Result{}, fmt.Errorf("synthesize with tools: %w", err)
	}
	return Result{
		Answer: answer, Decomposition: &decomposition, Reasoning: thoughts,
		UsedTools: true, Success: true, KnowledgeGaps: gaps,
	}, nil
}

// runSingleShotTool handles the "fast route + needs tools" branch (spec
// §4.11 step 2): a single Reason→Act turn via the configured Strategy,
// executed through the registry, followed by synthesis.
func (o *Orchestrator) runSingleShotTool(ctx context.Context, req Request) (Result, error) {
	messages := append(append([]llmprovider.Message{}, req.ConversationHistory...), llmprovider.Message{
		Role: "user", Content: req.Query,
	})
	schemas := o.Registry.Schemas(req.RunConfig.AllowedTools)

	step, err := o.Strategy.ExecuteStep(ctx, messages, schemas)
	if err != nil {
		return Result{}, fmt.Errorf("fast-route tool step: %w", err)
	}
	if step.Done || step.Call == nil {
		return Result{Answer: step.FinalAnswer, Success: true}, nil
	}

	call := toolregistry.ToolCall{Name: step.Call.Name, Arguments: step.Call.Arguments}
	result := o.Registry.Execute(ctx, req.RunConfig.AllowedTools, call)

	var recalled []RecalledPassage
	if result.Success {
		if wsr, ok := asWebSearchResult(result.Result); ok && len(wsr.SourceIDs) > 0 {
			recalled = recallAllGaps(ctx, o.Retrieve, []KnowledgeGap{{GapDescription: req.Query}}, wsr.SessionID, wsr.SourceIDs, o.Config.Orchestrate.GapRecallTopK)
		}
	}

	answer, err := o.LLM.Complete(ctx, buildSynthesisMessages(req.Query, nil, recalled, req.Passages), o.Config.LLM.Temperature)
	if err != nil {
		return Result{}, fmt.Errorf("fast-route synthesis: %w", err)
	}
	return Result{Answer: answer, UsedTools: true, Success: true}, nil
}

// asWebSearchResult best-effort round-trips a CallResult.Result (typically
// a map[string]any after JSON (de)serialization across the registry
// boundary) back into a WebSearchResult.
func asWebSearchResult(v any) (WebSearchResult, bool) {
	if wsr, ok := v.(WebSearchResult); ok {
		return wsr, true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return WebSearchResult{}, false
	}
	var wsr WebSearchResult
	if err := json.Unmarshal(b, &wsr); err != nil {
		return WebSearchResult{}, false
	}
	return wsr, true
}

// executeSearchAndRecall implementssteps 6-8: plan queries
// from the gaps, call web_search once per planned query under one shared
// ephemeral session, then recall per gap over the resulting source ids.
func (o *Orchestrator) executeSearchAndRecall(ctx context.Context, req Request, gaps []KnowledgeGap) ([]RecalledPassage, error) {
	queries := planSearchQueries(req.Query, gaps, req.RunConfig.IsSimpleQuery, o.Config.Orchestrate)
	if len(queries) == 0 {
		return nil, nil
	}
	sessionID := uuid.NewString()

	var allSourceIDs []int64
	for _, q := range queries {
		args, _ := json.Marshal(map[string]any{"query": q, "session_id": sessionID})
		result := o.Registry.Execute(ctx, req.RunConfig.AllowedTools, toolregistry.ToolCall{Name: "web_search", Arguments: args})
		if !result.Success {
			logging.Log.WithField("query", q).WithField("error", result.Error).Warn("planned search query failed")
			continue
		}
		if wsr, ok := asWebSearchResult(result.Result); ok {
			allSourceIDs = append(allSourceIDs, wsr.SourceIDs...)
		}
	}
	if len(allSourceIDs) == 0 {
		return nil, fmt.Errorf("no search results ingested for any planned query")
	}

	topK := o.Config.Orchestrate.GapRecallTopK
	if topK <= 0 {
		topK = 5
	}
	return recallAllGaps(ctx, o.Retrieve, gaps, sessionID, allSourceIDs, topK), nil
}

// StreamProcess is the streaming counterpart of Process, emitting
// reasoning/tool_call/tool_result progress events before the final
// llm_start/delta/complete sequence. No sources event is emitted on this
// path.
func (o *Orchestrator) StreamProcess(ctx context.Context, req Request, w *sse.Writer) error {
	if !req.RunConfig.toolsEnabled() || o.Registry == nil {
		_ = w.Reasoning("tools are disabled, answering from context directly")
		return o.streamSynthesis(ctx, buildContextOnlyMessages(req.Query, req.Passages), w)
	}

	_ = w.Reasoning("classifying the question")
	route := classifyRoute(ctx, o.LLM, req.Query, req.ConversationHistory)
	if route.UseFastRoute {
		if !route.NeedsTools {
			_ = w.Reasoning("simple question, answering from context")
			return o.streamSynthesis(ctx, buildContextOnlyMessages(req.Query, req.Passages), w)
		}
		_ = w.Reasoning("simple query needing external information, executing tool directly")
		return o.streamSingleShotTool(ctx, req, w)
	}

	_ = w.Reasoning("decomposing the question")
	decomposition, err := decompose(ctx, o.LLM, req.Query, req.ConversationHistory)
	if err != nil {
		_ = w.Error(err.Error())
		return err
	}
	_ = w.Reasoning(fmt.Sprintf("identified %d sub-questions", len(decomposition.SubQueries)))

	thoughts := make([]Thought, 0, len(decomposition.SubQueries))
	for _, sub := range decomposition.SubQueries {
		t := think(ctx, o.LLM, sub, req.Passages)
		thoughts = append(thoughts, t)
		_ = w.Reasoning(fmt.Sprintf("sub-question %q: %s", sub.Question, t.ConfidenceLevel))
	}

	needTools, gaps := shouldInvokeTools(thoughts)
	if !needTools {
		_ = w.Reasoning("existing knowledge is sufficient, no search needed")
		return o.streamSynthesis(ctx, buildSynthesisMessages(req.Query, thoughts, nil, req.Passages), w)
	}

	if len(o.Registry.Schemas(req.RunConfig.AllowedTools)) == 0 {
		_ = w.Reasoning("tools unavailable, answering with explicit knowledge gaps")
		answer, err := o.SynthesizeGapAwareAnswer(ctx, req.Query, gaps, req.Passages)
		if err != nil {
			_ = w.Error(err.Error())
			return err
		}
		return w.Complete(map[string]any{"answer": answer, "success": true})
	}

	_ = w.Reasoning(fmt.Sprintf("found %d knowledge gaps, searching", len(gaps)))
	recalled, err := o.executeSearchAndRecall(ctx, req, gaps)
	if err != nil {
		logging.Log.WithError(err).Warn("search and recall failed during streaming, synthesizing from reasoning alone")
	}
	return o.streamSynthesis(ctx, buildSynthesisMessages(req.Query, thoughts, recalled, req.Passages), w)
}

func (o *Orchestrator) streamSingleShotTool(ctx context.Context, req Request, w *sse.Writer) error {
	messages := append(append([]llmprovider.Message{}, req.ConversationHistory...), llmprovider.Message{Role: "user", Content: req.Query})
	schemas := o.Registry.Schemas(req.RunConfig.AllowedTools)

	step, err := o.Strategy.ExecuteStep(ctx, messages, schemas)
	if err != nil {
		_ = w.Error(err.Error())
		return err
	}
	if step.Done || step.Call == nil {
		return w.Complete(map[string]any{"answer": step.FinalAnswer, "success": true})
	}

	_ = w.ToolCall(step.Call.Name, step.Call.Arguments)
	call := toolregistry.ToolCall{Name: step.Call.Name, Arguments: step.Call.Arguments}
	result := o.Registry.Execute(ctx, req.RunConfig.AllowedTools, call)
	_ = w.ToolResult(step.Call.Name, result)

	var recalled []RecalledPassage
	if result.Success {
		if wsr, ok := asWebSearchResult(result.Result); ok && len(wsr.SourceIDs) > 0 {
			recalled = recallAllGaps(ctx, o.Retrieve, []KnowledgeGap{{GapDescription: req.Query}}, wsr.SessionID, wsr.SourceIDs, o.Config.Orchestrate.GapRecallTopK)
		}
	}
	return o.streamSynthesis(ctx, buildSynthesisMessages(req.Query, nil, recalled, req.Passages), w)
}

func (o *Orchestrator) streamSynthesis(ctx context.Context, messages []llmprovider.Message, w *sse.Writer) error {
	_ = w.LLMStart()
	var answer strings.Builder
	err := o.LLM.Stream(ctx, messages, o.Config.LLM.Temperature, func(delta string) {
		answer.WriteString(delta)
		_ = w.Delta(delta)
	})
	if err != nil {
		_ = w.Error(err.Error())
		return err
	}
	return w.Complete(map[string]any{"answer": answer.String(), "success": true})
}

// SynthesizeGapAwareAnswer implements tools needed
// but disabled, so the answer explicitly enumerates the gaps instead of
// silently guessing.
func (o *Orchestrator) SynthesizeGapAwareAnswer(ctx context.Context, query string, gaps []KnowledgeGap, passages []string) (string, error) {
	return o.LLM.Complete(ctx, buildGapAwareMessages(query, gaps, passages), o.Config.LLM.Temperature)
}
