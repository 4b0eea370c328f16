// Package mcptool adapts tools exposed by a remote MCP server into C10's
// toolregistry.Tool interface, grounded on internal/mcpclient's
// streamable-HTTP connection and schema-sanitizing wrapper.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"agenttic-rag/internal/toolregistry"
)

// Adapter holds one live MCP client session.
type Adapter struct {
	session *mcppkg.ClientSession
}

// Connect opens a Streamable-HTTP MCP session against endpoint. Only the
// HTTP transport is supported: this tool surface has one remote search
// endpoint to reach, not a locally spawned server process.
func Connect(ctx context.Context, endpoint string) (*Adapter, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("mcptool: empty endpoint")
	}
	client := mcppkg.NewClient(&mcppkg.Implementation{Name: "agenttic-rag", Version: "1"}, nil)
	transport := &mcppkg.StreamableClientTransport{Endpoint: endpoint, HTTPClient: http.DefaultClient}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcptool: connect %s: %w", endpoint, err)
	}
	return &Adapter{session: session}, nil
}

func (a *Adapter) Close() error { return a.session.Close() }

// RegisterTools lists every tool the remote server advertises and
// registers an adapter for each into reg under the same Options (cache
// TTL, concurrency, retries, timeout) — the registry does not
// distinguish a locally-implemented tool from a remote one.
func (a *Adapter) RegisterTools(ctx context.Context, reg *toolregistry.Registry, opts toolregistry.Options) ([]string, error) {
	var names []string
	for tool, err := range a.session.Tools(ctx, nil) {
		if err != nil {
			return names, fmt.Errorf("mcptool: list tools: %w", err)
		}
		t := &remoteTool{session: a.session, tool: tool}
		reg.Register(t, opts)
		names = append(names, t.Name())
	}
	return names, nil
}

// remoteTool adapts one MCP tool definition to toolregistry.Tool.
type remoteTool struct {
	session *mcppkg.ClientSession
	tool *mcppkg.Tool
}

func (t *remoteTool) Name() string { return t.tool.Name }

func (t *remoteTool) JSONSchema() map[string]any {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	if t.tool.InputSchema != nil {
		if b, err := json.Marshal(t.tool.InputSchema); err == nil {
			var m map[string]any
			if json.Unmarshal(b, &m) == nil && m != nil {
				for k, v := range m {
					params[k] = v
				}
			}
		}
	}
	if params["type"] != "object" {
		params["type"] = "object"
	}
	if _, ok := params["properties"]; !ok || params["properties"] == nil {
		params["properties"] = map[string]any{}
	}
	return map[string]any{"description": t.tool.Description, "parameters": params}
}

func (t *remoteTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	if args == nil {
		args = map[string]any{}
	}
	res, err := t.session.CallTool(ctx, &mcppkg.CallToolParams{Name: t.tool.Name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("mcptool: call %s: %w", t.tool.Name, err)
	}
	texts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := c.(*mcppkg.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return map[string]any{
		"ok": !res.IsError,
		"text": strings.Join(texts, "\n"),
		"structured": res.StructuredContent,
	}, nil
}
