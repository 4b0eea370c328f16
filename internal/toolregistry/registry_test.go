package toolregistry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name    string
	schema  map[string]any
	calls   int
	failN   int // fail the first failN calls
	handler func(ctx context.Context, args json.RawMessage) (any, error)
}

func (f *fakeTool) Name() string                 { return f.name }
func (f *fakeTool) JSONSchema() map[string]any    { return f.schema }
func (f *fakeTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	f.calls++
	if f.handler != nil {
		return f.handler(ctx, args)
	}
	if f.calls <= f.failN {
		return nil, errors.New("boom")
	}
	return map[string]any{"ok": true}, nil
}

func schemaWithRequired(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"description": "a test tool",
		"parameters": map[string]any{
			"type":       "object",
			"properties": props,
			"required":   anySlice(required),
		},
	}
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func TestExecuteRejectsToolNotInAllowList(t *testing.T) {
	r := New(nil)
	tool := &fakeTool{name: "search", schema: schemaWithRequired(nil)}
	r.Register(tool, Options{})

	res := r.Execute(context.Background(), []string{"other"}, ToolCall{Name: "search"})
	require.False(t, res.Success)
	require.Equal(t, "tool not allowed", res.Error)
	require.Equal(t, 0, tool.calls)
}

func TestExecuteRejectsMissingRequiredArgument(t *testing.T) {
	r := New(nil)
	tool := &fakeTool{name: "search", schema: schemaWithRequired(map[string]any{
		"query": map[string]any{"type": "string"},
	}, "query")}
	r.Register(tool, Options{})

	res := r.Execute(context.Background(), nil, ToolCall{Name: "search", Arguments: json.RawMessage(`{}`)})
	require.False(t, res.Success)
	require.Contains(t, res.Error, "missing required argument")
	require.Equal(t, 0, tool.calls)
}

func TestExecuteSucceedsAndCaches(t *testing.T) {
	r := New(nil)
	tool := &fakeTool{name: "search", schema: schemaWithRequired(map[string]any{
		"query": map[string]any{"type": "string"},
	}, "query")}
	r.Register(tool, Options{CacheTTL: time.Minute})

	args := json.RawMessage(`{"query": "hello"}`)
	res1 := r.Execute(context.Background(), nil, ToolCall{Name: "search", Arguments: args})
	require.True(t, res1.Success)
	require.Equal(t, 1, tool.calls)

	res2 := r.Execute(context.Background(), nil, ToolCall{Name: "search", Arguments: args})
	require.True(t, res2.Success)
	require.Equal(t, int64(0), res2.LatencyMS)
	require.Equal(t, 0, res2.Retries)
	require.Equal(t, 1, tool.calls, "second call should be served from cache, not re-invoke the tool")
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	r := New(nil)
	tool := &fakeTool{name: "flaky", schema: schemaWithRequired(nil), failN: 2}
	r.Register(tool, Options{MaxRetries: 3})

	res := r.Execute(context.Background(), nil, ToolCall{Name: "flaky"})
	require.True(t, res.Success)
	require.Equal(t, 2, res.Retries)
	require.Equal(t, 3, tool.calls)
}

func TestExecuteOpensCircuitBreakerAfterThreeFailures(t *testing.T) {
	r := New(nil)
	tool := &fakeTool{name: "broken", schema: schemaWithRequired(nil), failN: 1000}
	r.Register(tool, Options{MaxRetries: 0})

	for i := 0; i < 3; i++ {
		res := r.Execute(context.Background(), nil, ToolCall{Name: "broken"})
		require.False(t, res.Success)
	}

	callsBeforeBreaker := tool.calls
	res := r.Execute(context.Background(), nil, ToolCall{Name: "broken"})
	require.False(t, res.Success)
	require.Equal(t, "circuit_open", res.Error)
	require.Equal(t, callsBeforeBreaker, tool.calls, "breaker should fail fast without invoking the tool")
}

func TestBackoffDurationIsBoundedByFifteenSeconds(t *testing.T) {
	for attempt := 1; attempt < 20; attempt++ {
		d := backoffDuration(attempt)
		require.LessOrEqual(t, d, 15*time.Second)
		require.Greater(t, d, time.Duration(0))
	}
}

func TestNormalizeArgsSortsObjectKeys(t *testing.T) {
	a := normalizeArgs(json.RawMessage(`{"b": 1, "a": 2}`))
	b := normalizeArgs(json.RawMessage(`{"a": 2, "b": 1}`))
	require.Equal(t, a, b)
}

func TestValidateAgainstSchemaChecksEnum(t *testing.T) {
	schema := map[string]any{
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"op": map[string]any{"type": "string", "enum": []any{"add", "sub"}},
			},
		},
	}
	require.NoError(t, validateAgainstSchema(schema, json.RawMessage(`{"op":"add"}`)))
	require.Error(t, validateAgainstSchema(schema, json.RawMessage(`{"op":"mul"}`)))
}
