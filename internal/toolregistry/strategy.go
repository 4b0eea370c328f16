package toolregistry

import (
	"context"

	"agenttic-rag/internal/llmprovider"
)

// StepResult is what a strategy produces for one Reason→Act turn: either
// a tool call to dispatch, or a final answer that ends the loop.
type StepResult struct {
	Thought string
	Call *ToolCall
	FinalAnswer string
	Done bool
}

// DeltaFunc receives incremental raw model output as it streams in,
// before the strategy has finished parsing a full step out of it.
type DeltaFunc func(delta string)

// Strategy is one of the three tool-calling protocols: JSON
// function-calling, ReAct, or the Harmony DSL. The orchestrator (C11)
// loops ExecuteStep/StreamExecuteStep until a StepResult is Done, calling
// ForceFinalAnswer/StreamForceFinalAnswer when the step budget runs out.
type Strategy interface {
	ExecuteStep(ctx context.Context, messages []llmprovider.Message, schemas []map[string]any) (StepResult, error)
	StreamExecuteStep(ctx context.Context, messages []llmprovider.Message, schemas []map[string]any, onDelta DeltaFunc) (StepResult, error)
	ForceFinalAnswer(ctx context.Context, messages []llmprovider.Message) (string, error)
	StreamForceFinalAnswer(ctx context.Context, messages []llmprovider.Message, onDelta DeltaFunc) (string, error)
}

const forceFinalAnswerSystemNote = "Tool use is no longer available. Using only what you have already observed, give your best-effort final answer now. Do not ask to use another tool."

func appendForceFinalNote(messages []llmprovider.Message) []llmprovider.Message {
	out := make([]llmprovider.Message, len(messages), len(messages)+1)
	copy(out, messages)
	return append(out, llmprovider.Message{Role: "system", Content: forceFinalAnswerSystemNote})
}
