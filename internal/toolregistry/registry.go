// Package toolregistry implements C10's registry half: per-tool
// concurrency limiting, result caching, a consecutive-failure circuit
// breaker, and bounded retry with jittered exponential backoff, grounded
// on the internal/mcpclient tool-wrapper shape (Name/JSONSchema/Call).
package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"agenttic-rag/internal/apperr"
	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/rediscache"

	"golang.org/x/sync/semaphore"
)

// Tool is a single callable tool: a name, an OpenAI-style JSON schema for
// its arguments, and a handler. Grounded on the mcpTool shape.
type Tool interface {
	Name() string
	JSONSchema() map[string]any
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Options configures one tool's registration.
type Options struct {
	MaxConcurrency int
	CacheTTL time.Duration // 0 disables caching for this tool
	MaxRetries int
	Timeout time.Duration
}

// CallResult is returned for both cache hits and live executions.
type CallResult struct {
	Success bool `json:"success"`
	Result any `json:"result,omitempty"`
	Error string `json:"error,omitempty"`
	LatencyMS int64 `json:"latency_ms"`
	Retries int `json:"retries"`
}

type registeredTool struct {
	tool Tool
	opts Options
	sem *semaphore.Weighted
	cache *ttlCache

	mu sync.Mutex
	consecutiveFails int
	breakerOpenUntil time.Time
}

// Registry holds every tool the run configuration may allow.
type Registry struct {
	mu sync.RWMutex
	tools map[string]*registeredTool
	redis *rediscache.Store
}

// New returns an empty Registry. redis, when non-nil, backs every
// registered tool's result cache with a store shared across restarts.
func New(redis *rediscache.Store) *Registry {
	return &Registry{tools: make(map[string]*registeredTool), redis: redis}
}

// Register adds a tool under its own name. A semaphore of size
// MaxConcurrency (default 4) is created; if CacheTTL > 0, a per-tool
// cache namespace is allocated.
func (r *Registry) Register(tool Tool, opts Options) {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	rt := &registeredTool{
		tool: tool,
		opts: opts,
		sem: semaphore.NewWeighted(int64(opts.MaxConcurrency)),
	}
	if opts.CacheTTL > 0 {
		rt.cache = newTTLCache(opts.CacheTTL)
		rt.cache.redis = r.redis
		rt.cache.namespace = tool.Name()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = rt
}

// Schemas returns the OpenAI-style {name, description, parameters} schema
// for every registered tool whose name is in allowList (nil allowList
// means "all registered tools").
func (r *Registry) Schemas(allowList []string) []map[string]any {
	allowed := allowSet(allowList)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]map[string]any, 0, len(r.tools))
	for name, rt := range r.tools {
		if allowed != nil && !allowed[name] {
			continue
		}
		schema := rt.tool.JSONSchema()
		schema["name"] = name
		out = append(out, schema)
	}
	return out
}

func allowSet(allowList []string) map[string]bool {
	if allowList == nil {
		return nil
	}
	m := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		m[name] = true
	}
	return m
}

// ToolCall names the tool to invoke and its raw JSON arguments, normally
// parsed out of the LLM's response by a Strategy.
type ToolCall struct {
	Name string
	Arguments json.RawMessage
}

// Execute runs the tool-call contract end to end:
// allow-list check, schema validation, cache lookup, circuit breaker,
// bounded concurrency, retry with backoff.
func (r *Registry) Execute(ctx context.Context, allowList []string, call ToolCall) CallResult {
	r.mu.RLock()
	rt, ok := r.tools[call.Name]
	r.mu.RUnlock()

	allowed := allowSet(allowList)
	if !ok || (allowed != nil && !allowed[call.Name]) {
		return CallResult{Success: false, Error: "tool not allowed"}
	}

	if err := validateAgainstSchema(rt.tool.JSONSchema(), call.Arguments); err != nil {
		return CallResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}

	normalized := normalizeArgs(call.Arguments)
	cacheKey := call.Name + "\x00" + normalized
	if rt.cache != nil {
		if cached, ok := rt.cache.get(ctx, cacheKey); ok {
			return CallResult{Success: true, Result: cached, LatencyMS: 0, Retries: 0}
		}
	}

	rt.mu.Lock()
	if rt.consecutiveFails >= 3 && time.Now().Before(rt.breakerOpenUntil) {
		rt.mu.Unlock()
		return CallResult{Success: false, Error: "circuit_open"}
	}
	rt.mu.Unlock()

	if err := rt.sem.Acquire(ctx, 1); err != nil {
		return CallResult{Success: false, Error: "tool concurrency limit: " + err.Error()}
	}
	defer rt.sem.Release(1)

	start := time.Now()
	attempts := rt.opts.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := backoffDuration(attempt)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				lastErr = ctx.Err()
				break
			}
			if ctx.Err() != nil {
				break
			}
		}
		result, err := callWithTimeout(ctx, rt.tool, call.Arguments, rt.opts.Timeout)
		if err == nil {
			latency := time.Since(start).Milliseconds()
			rt.mu.Lock()
			rt.consecutiveFails = 0
			rt.mu.Unlock()
			if rt.cache != nil {
				rt.cache.put(ctx, cacheKey, result)
			}
			return CallResult{Success: true, Result: result, LatencyMS: latency, Retries: attempt}
		}
		lastErr = err
		logging.Log.WithError(err).WithField("tool", call.Name).WithField("attempt", attempt).
			Warn("tool call attempt failed")
	}

	rt.mu.Lock()
	rt.consecutiveFails++
	failures := rt.consecutiveFails
	openWindow := time.Duration(math.Min(30*float64(failures), 300)) * time.Second
	rt.breakerOpenUntil = time.Now().Add(openWindow)
	rt.mu.Unlock()

	return CallResult{
		Success: false,
		Error: apperr.UserMessage(lastErr),
		LatencyMS: time.Since(start).Milliseconds(),
		Retries: attempts - 1,
	}
}

func callWithTimeout(ctx context.Context, tool Tool, args json.RawMessage, timeout time.Duration) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return tool.Call(callCtx, args)
}

// backoffDuration is jittered exponential backoff: min(1.5^attempt, 10) * (0.5 + rand()) seconds.
func backoffDuration(attempt int) time.Duration {
	base := math.Min(math.Pow(1.5, float64(attempt)), 10)
	jittered := base * (0.5 + rand.Float64())
	return time.Duration(jittered * float64(time.Second))
}

// normalizeArgs canonicalizes raw JSON arguments for cache-key purposes:
// unmarshal then re-marshal, which sorts object keys and drops whitespace.
func normalizeArgs(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(b)
}
