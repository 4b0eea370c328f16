package httpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"agenttic-rag/internal/orchestrate"
	"agenttic-rag/internal/retrieve"
	"agenttic-rag/internal/sse"
)

type queryRequest struct {
	Query string `json:"query"`
	TopK int `json:"top_k"`
	EmbeddingModel string `json:"embedding_model"`
	EmbeddingDimensions int `json:"embedding_dimensions"`
	DocumentIDs []int64 `json:"document_ids"`
	UseHybrid bool `json:"use_hybrid"`
	Stream bool `json:"stream"`

	// ToolMode overrides config.ToolsConfig.DefaultMode for this request
	// only; "off" forces the plain C9 path even when the server default
	// has tools enabled. Leave empty to take the server default.
	ToolMode string `json:"tool_mode"`
	MaxSteps int `json:"max_steps"`
	AllowedTools []string `json:"allowed_tools"`
}

func (req queryRequest) toRetrieveRequest(sessionID string) retrieve.Request {
	return retrieve.Request{
		Query: req.Query,
		TopK: req.TopK,
		EmbeddingModel: req.EmbeddingModel,
		EmbeddingDims: req.EmbeddingDimensions,
		UseHybrid: req.UseHybrid,
		SessionID: sessionID,
		SourceIDs: req.DocumentIDs,
	}
}

// runConfig resolves this request's orchestrator RunConfig, falling back to
// the server's configured default tool mode when the request doesn't name
// one explicitly.
func (req queryRequest) runConfig(s *Server) orchestrate.RunConfig {
	mode := req.ToolMode
	if mode == "" {
		mode = s.Config.Tools.DefaultMode
	}
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = s.Config.Tools.MaxSteps
	}
	return orchestrate.RunConfig{
		ToolMode: orchestrate.ToolMode(mode),
		MaxSteps: maxSteps,
		AllowedTools: req.AllowedTools,
	}
}

// handleQuery implements the question-answering entrypoint: C9 retrieves
// and reranks the top passages, then either C9 synthesizes the answer
// directly or, when a tool mode is in effect, C11 takes the retrieved
// passages and decides whether to decompose/reason/search before
// synthesizing. Retrieval always runs first so the orchestrator has
// passages to reason over even on its fast route; tool_mode is an optional
// per-request override of the server's default mode, not a separate
// retrieval path.
func (s *Server) handleQuery(c echo.Context) error {
	var req queryRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil || req.Query == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "query is required"})
	}
	sessionID := c.Request().Header.Get("X-Session-ID")
	rreq := req.toRetrieveRequest(sessionID)
	ctx := c.Request().Context()
	runConfig := req.runConfig(s)
	orchestrated := s.Orchestrate != nil && runConfig.ToolMode != "" && runConfig.ToolMode != orchestrate.ToolModeOff

	if req.Stream {
		w, err := sse.NewWriter(c.Response())
		if err != nil {
			return err
		}
		if orchestrated {
			if err := s.streamOrchestrated(ctx, rreq, runConfig, w); err != nil {
				_ = w.Error(err.Error())
			}
			return nil
		}
		if err := s.Retrieve.StreamRetrieve(ctx, rreq, w); err != nil {
			_ = w.Error(err.Error())
		}
		return nil
	}

	if orchestrated {
		result, err := s.orchestrateQuery(ctx, rreq, runConfig)
		if err != nil {
			return c.JSON(http.StatusOK, map[string]any{"success": false, "message": err.Error()})
		}
		return c.JSON(http.StatusOK, result)
	}

	result, err := s.Retrieve.Retrieve(ctx, rreq)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]any{"success": false, "message": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// orchestratedResult is handleQuery's response shape when the orchestrator
// handled synthesis: the same {answer, sources, success} envelope as the
// plain C9 path, with the orchestrator's reasoning/tool metadata appended.
type orchestratedResult struct {
	Answer string `json:"answer"`
	Sources []retrieve.Source `json:"sources"`
	Success bool `json:"success"`
	UsedTools bool `json:"used_tools"`
	KnowledgeGaps []orchestrate.KnowledgeGap `json:"knowledge_gaps,omitempty"`
}

func (s *Server) orchestrateQuery(ctx context.Context, rreq retrieve.Request, runConfig orchestrate.RunConfig) (orchestratedResult, error) {
	sources, err := s.Retrieve.RetrieveSources(ctx, rreq)
	if err != nil {
		return orchestratedResult{}, err
	}
	passages := make([]string, 0, len(sources))
	for _, src := range sources {
		passages = append(passages, src.Content)
	}
	result, err := s.Orchestrate.Process(ctx, orchestrate.Request{
		Query: rreq.Query,
		Passages: passages,
		RunConfig: runConfig,
	})
	if err != nil {
		return orchestratedResult{}, err
	}
	return orchestratedResult{
		Answer: result.Answer,
		Sources: sources,
		Success: result.Success,
		UsedTools: result.UsedTools,
		KnowledgeGaps: result.KnowledgeGaps,
	}, nil
}

func (s *Server) streamOrchestrated(ctx context.Context, rreq retrieve.Request, runConfig orchestrate.RunConfig, w *sse.Writer) error {
	sources, err := s.Retrieve.RetrieveSources(ctx, rreq)
	if err != nil {
		return err
	}
	passages := make([]string, 0, len(sources))
	for _, src := range sources {
		passages = append(passages, src.Content)
	}
	return s.Orchestrate.StreamProcess(ctx, orchestrate.Request{
		Query: rreq.Query,
		Passages: passages,
		RunConfig: runConfig,
	}, w)
}

// handleListCollections groups every known Source by collection identity
// (C13) across the auto-ingest session namespace.
func (s *Server) handleListCollections(c echo.Context) error {
	ctx := c.Request().Context()
	sessionIDs := knownSessionIDsFromRequest(c)
	sources, err := s.Store.ListSourcesBySession(ctx, sessionIDs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
	}

	byCollection := map[string][]map[string]any{}
	for _, src := range sources {
		id := resolveCollectionID(src.URL)
		n, _ := s.Store.CountChunksBySource(ctx, src.ID)
		byCollection[id] = append(byCollection[id], map[string]any{
			"source_id": src.ID,
			"url": src.URL,
			"title": src.Title,
			"total_chunks": n,
		})
	}
	collections := make([]map[string]any, 0, len(byCollection))
	for id, docs := range byCollection {
		collections = append(collections, map[string]any{
			"collection_id": id,
			"document_count": len(docs),
			"documents": docs,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "collections": collections})
}

func (s *Server) handleGetCollection(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	sessionIDs := knownSessionIDsFromRequest(c)
	sources, err := s.Store.ListSourcesBySession(ctx, sessionIDs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
	}
	docs := make([]map[string]any, 0)
	for _, src := range sources {
		if resolveCollectionID(src.URL) != id {
			continue
		}
		n, _ := s.Store.CountChunksBySource(ctx, src.ID)
		docs = append(docs, map[string]any{
			"source_id": src.ID, "url": src.URL, "title": src.Title, "total_chunks": n,
		})
	}
	if len(docs) == 0 {
		return c.JSON(http.StatusNotFound, map[string]any{"success": false, "message": "collection not found"})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "collection_id": id, "documents": docs})
}

// handleCollectionsQuery restricts C9 retrieval to the Source ids
// belonging to the named collection.
func (s *Server) handleCollectionsQuery(c echo.Context) error {
	var body struct {
		CollectionID string `json:"collection_id"`
		queryRequest
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil || body.Query == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "query is required"})
	}
	ctx := c.Request().Context()
	sourceIDs, err := s.sourceIDsForCollection(c, body.CollectionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
	}
	rreq := body.queryRequest.toRetrieveRequest(c.Request().Header.Get("X-Session-ID"))
	rreq.SourceIDs = sourceIDs
	result, err := s.Retrieve.Retrieve(ctx, rreq)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]any{"success": false, "message": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleCollectionsQueryStream(c echo.Context) error {
	var body struct {
		CollectionID string `json:"collection_id"`
		queryRequest
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil || body.Query == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "query is required"})
	}
	ctx := c.Request().Context()
	sourceIDs, err := s.sourceIDsForCollection(c, body.CollectionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
	}
	rreq := body.queryRequest.toRetrieveRequest(c.Request().Header.Get("X-Session-ID"))
	rreq.SourceIDs = sourceIDs

	w, err := sse.NewWriter(c.Response())
	if err != nil {
		return err
	}
	if err := s.Retrieve.StreamRetrieve(ctx, rreq, w); err != nil {
		_ = w.Error(err.Error())
	}
	return nil
}

func (s *Server) handleDeleteCollection(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	sourceIDs, err := s.sourceIDsForCollection(c, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
	}
	if len(sourceIDs) == 0 {
		return c.JSON(http.StatusNotFound, map[string]any{"success": false, "message": "collection not found"})
	}
	if err := s.Vectors.DeleteVectorDBData(ctx, sourceIDs); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
	}
	for _, id := range sourceIDs {
		if err := s.Store.DeleteSource(ctx, id); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "deleted": len(sourceIDs)})
}

func (s *Server) sourceIDsForCollection(c echo.Context, collectionID string) ([]int64, error) {
	sessionIDs := knownSessionIDsFromRequest(c)
	sources, err := s.Store.ListSourcesBySession(c.Request().Context(), sessionIDs)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, src := range sources {
		if resolveCollectionID(src.URL) == collectionID {
			ids = append(ids, src.ID)
		}
	}
	return ids, nil
}

// handleWebhookSend is the generic relay: validate and forward an
// arbitrary payload to a caller-supplied webhook URL, sharing the
// discoverer's outbound HTTP client and rate limit.
func (s *Server) handleWebhookSend(c echo.Context) error {
	var body struct {
		URL string `json:"url"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil || body.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "url is required"})
	}
	if !s.webhookLimiter.Allow() {
		return c.JSON(http.StatusTooManyRequests, map[string]any{"success": false, "message": "webhook rate limit exceeded"})
	}
	if err := relayWebhook(c.Request().Context(), s.Discover, body.URL, body.Payload); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]any{"success": false, "message": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
