package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"

	"agenttic-rag/internal/config"
	"agenttic-rag/internal/ingest"
	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/web"

	"github.com/google/uuid"
)

// WebSearchTool implements toolregistry.Tool: it resolves a query to a
// handful of URLs via SearXNG (internal/web.GetSearXNGResults), then
// ingests each one under the caller's session_id argument, or a
// freshly-minted ephemeral session id when none is given, returning
// the session id and the resulting source ids so gap recall can restrict
// retrieval to just what this call found.
type WebSearchTool struct {
	Ingest *ingest.Pipeline
	Config config.WebSearchToolConfig
	Results int // number of search hits to ingest per call, default 4
}

func NewWebSearchTool(pipeline *ingest.Pipeline, cfg config.WebSearchToolConfig) *WebSearchTool {
	results := 4
	return &WebSearchTool{Ingest: pipeline, Config: cfg, Results: results}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search the web for a query and ingest the top results into an ephemeral session for retrieval.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"retrieve_only": map[string]any{"type": "boolean"},
			},
			"required": []any{"query"},
		},
	}
}

type webSearchArgs struct {
	Query string `json:"query"`
	RetrieveOnly bool `json:"retrieve_only"`
	SessionID string `json:"session_id"`
}

// WebSearchResult is the JSON-able payload the tool returns, matching the
// original service's web_search tool contract (session_id, message,
// search_count, retrieved_count, top_results).
type WebSearchResult struct {
	SessionID string `json:"session_id"`
	Message string `json:"message"`
	SearchCount int `json:"search_count"`
	RetrievedCount int `json:"retrieved_count"`
	TopResults []webSearchEntry `json:"top_results"`
	SourceIDs []int64 `json:"source_ids"`
}

type webSearchEntry struct {
	Source string `json:"source"`
	ContentPreview string `json:"content_preview"`
}

func (t *WebSearchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args webSearchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("parse web_search arguments: %w", err)
	}
	if args.Query == "" {
		return nil, fmt.Errorf("web_search: query is required")
	}

	urls := web.GetSearXNGResults(t.Config.HTTPURL, args.Query)
	if len(urls) > t.Results {
		urls = urls[:t.Results]
	}
	if len(urls) == 0 {
		return WebSearchResult{Message: "no search results found", SearchCount: 0}, nil
	}

	sessionID := args.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if args.RetrieveOnly {
		return WebSearchResult{SessionID: sessionID, Message: "retrieve_only: skipped ingest"}, nil
	}
	var sourceIDs []int64
	var entries []webSearchEntry
	for _, u := range urls {
		res, err := t.Ingest.Ingest(ctx, ingest.Request{URL: u, SessionID: sessionID})
		if err != nil {
			logging.Log.WithError(err).WithField("url", u).Warn("web_search: ingest failed for a result, skipping")
			continue
		}
		sourceIDs = append(sourceIDs, res.SourceID)
		entries = append(entries, webSearchEntry{Source: u, ContentPreview: res.DocumentName})
	}

	return WebSearchResult{
		SessionID: sessionID,
		Message: fmt.Sprintf("ingested %d of %d search results", len(sourceIDs), len(urls)),
		SearchCount: len(urls),
		RetrievedCount: len(sourceIDs),
		TopResults: entries,
		SourceIDs: sourceIDs,
	}, nil
}
