// Package sse implements C12: Server-Sent Events framing, one JSON object
// per data: line, grounded on the echo-based streaming handlers.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventType is the discriminator every emitted event carries.
type EventType string

const (
	EventStatus EventType = "status"
	EventTotalChunks EventType = "total_chunks"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError EventType = "error"
	EventDelta EventType = "delta"
	EventReasoning EventType = "reasoning"
	EventToolCall EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventSources EventType = "sources"
	EventSearchResult EventType = "search_results"
	EventLLMStart EventType = "llm_start"
	EventFinalAnswer EventType = "final_answer"
)

// Writer frames Go values as SSE `data:` lines and flushes after each one
// so clients observe events as they are produced, not buffered.
type Writer struct {
	w http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE response headers and returns a Writer. Returns an
// error if the underlying ResponseWriter cannot be flushed incrementally.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// emit writes one SSE payload: the "type" key is always set to eventType,
// the rest of the fields come from the caller's payload.
func (sw *Writer) emit(eventType EventType, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["type"] = string(eventType)
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", b); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

func (sw *Writer) Status(phase string) error {
	return sw.emit(EventStatus, map[string]any{"phase": phase})
}

func (sw *Writer) TotalChunks(n int) error {
	return sw.emit(EventTotalChunks, map[string]any{"total_chunks": n})
}

func (sw *Writer) Progress(completed int) error {
	return sw.emit(EventProgress, map[string]any{"completed": completed})
}

func (sw *Writer) Complete(payload map[string]any) error {
	return sw.emit(EventComplete, payload)
}

func (sw *Writer) Error(message string) error {
	return sw.emit(EventError, map[string]any{"message": message})
}

func (sw *Writer) Delta(content string) error {
	return sw.emit(EventDelta, map[string]any{"content": content})
}

func (sw *Writer) Reasoning(content string) error {
	return sw.emit(EventReasoning, map[string]any{"content": content})
}

func (sw *Writer) ToolCall(name string, args any) error {
	return sw.emit(EventToolCall, map[string]any{"name": name, "arguments": args})
}

func (sw *Writer) ToolResult(name string, result any) error {
	return sw.emit(EventToolResult, map[string]any{"name": name, "result": result})
}

func (sw *Writer) Sources(sources any) error {
	return sw.emit(EventSources, map[string]any{"sources": sources})
}

func (sw *Writer) SearchResults(results any) error {
	return sw.emit(EventSearchResult, map[string]any{"results": results})
}

func (sw *Writer) LLMStart() error {
	return sw.emit(EventLLMStart, nil)
}

func (sw *Writer) FinalAnswer(answer string) error {
	return sw.emit(EventFinalAnswer, map[string]any{"answer": answer})
}
