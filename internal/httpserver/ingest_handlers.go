package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"agenttic-rag/internal/discover"
	"agenttic-rag/internal/ingest"
	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/sse"
)

// agenticIngestRequest is the client-initiated shape; discriminated from a
// discover.Callback by the absence of task_name.
type agenticIngestRequest struct {
	URL string `json:"url"`
	EmbeddingModel string `json:"embedding_model"`
	EmbeddingDimensions int `json:"embedding_dimensions"`
	WebhookURL string `json:"webhook_url"`
	RecursiveDepth int `json:"recursive_depth"`
	IsRecursive bool `json:"is_recursive"`
	DocumentName string `json:"document_name"`
	CollectionName string `json:"collection_name"`
	ParentSourceID int64 `json:"parent_source_id"`
}

// handleAgenticIngest serves both shapes of the C8 entrypoint: a fresh
// client ingest request, or the async sub-document discovery callback
// (discriminated by the presence of task_name).
func (s *Server) handleAgenticIngest(c echo.Context) error {
	raw, err := readAndRestoreBody(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "read body: " + err.Error()})
	}

	var probe struct {
		TaskName string `json:"task_name"`
		Body *struct {
			TaskName string `json:"task_name"`
		} `json:"body"`
	}
	_ = json.Unmarshal(raw, &probe)
	if probe.TaskName != "" || (probe.Body != nil && probe.Body.TaskName != "") {
		return s.handleDiscoveryCallback(c, raw)
	}

	var req agenticIngestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "invalid request body"})
	}
	if req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "url is required"})
	}

	result, err := s.Ingest.Ingest(c.Request().Context(), ingest.Request{
		URL: req.URL,
		EmbeddingModel: req.EmbeddingModel,
		EmbeddingDims: req.EmbeddingDimensions,
		WebhookURL: req.WebhookURL,
		RecursiveDepth: req.RecursiveDepth,
		IsRecursive: req.IsRecursive,
		DocumentName: req.DocumentName,
		CollectionName: req.CollectionName,
		ParentSourceID: req.ParentSourceID,
	})
	if err != nil {
		logging.Log.WithError(err).WithField("url", req.URL).Warn("agentic ingest failed")
		return c.JSON(http.StatusOK, map[string]any{"success": false, "message": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": result.Success,
		"message": result.Message,
		"document_name": result.DocumentName,
		"collection_name": result.CollectionName,
		"total_chunks": result.TotalChunks,
		"source_id": result.SourceID,
	})
}

func (s *Server) handleDiscoveryCallback(c echo.Context, raw []byte) error {
	var cb discover.Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "invalid callback body"})
	}
	handoffs, err := s.Discover.HandleCallback(c.Request().Context(), cb)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
	}

	unwrapped := cb.Unwrap()
	processing := make([]string, 0, len(handoffs))
	for _, h := range handoffs {
		processing = append(processing, h.URL)
		go func(h discover.RecursionHandoff) {
			ctx := c.Request().Context()
			if _, err := s.Ingest.Ingest(ctx, ingest.Request{
				URL: h.URL,
				IsRecursive: true,
				ParentSourceID: h.ParentSourceID,
				CollectionName: h.CollectionName,
				RecursiveDepth: h.RecursiveDepth,
			}); err != nil {
				logging.Log.WithError(err).WithField("url", h.URL).Warn("recursive sub-document ingest failed")
			}
		}(h)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "callback processed",
		"task_name": unwrapped.TaskName,
		"document_name": unwrapped.DocumentName,
		"total_sub_docs": len(handoffs),
		"sub_docs_processing": processing,
	})
}

// handleStreamIngest is the session-scoped SSE ingest path. Requires
// X-Session-ID.
func (s *Server) handleStreamIngest(c echo.Context) error {
	sessionID := c.Request().Header.Get("X-Session-ID")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "X-Session-ID header is required"})
	}

	var req agenticIngestRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "invalid request body"})
	}
	if req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "url is required"})
	}

	w, err := sse.NewWriter(c.Response())
	if err != nil {
		return err
	}
	_ = w.Status("fetching")

	result, err := s.Ingest.Ingest(c.Request().Context(), ingest.Request{
		URL: req.URL,
		EmbeddingModel: req.EmbeddingModel,
		EmbeddingDims: req.EmbeddingDimensions,
		WebhookURL: req.WebhookURL,
		RecursiveDepth: req.RecursiveDepth,
		IsRecursive: req.IsRecursive,
		DocumentName: req.DocumentName,
		CollectionName: req.CollectionName,
		ParentSourceID: req.ParentSourceID,
		SessionID: sessionID,
	})
	if err != nil {
		_ = w.Error(err.Error())
		return nil
	}
	_ = w.TotalChunks(result.TotalChunks)
	_ = w.Complete(map[string]any{
		"document_name": result.DocumentName,
		"collection_name": result.CollectionName,
		"total_chunks": result.TotalChunks,
		"source_id": result.SourceID,
	})
	return nil
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	id, err := parseInt64(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "invalid document id"})
	}
	ctx := c.Request().Context()
	if err := s.Vectors.DeleteVectorDBData(ctx, []int64{id}); err != nil {
		logging.Log.WithError(err).WithField("source_id", id).Warn("vector delete failed")
	}
	if err := s.Store.DeleteSource(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSessionCleanup(c echo.Context) error {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil || body.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "message": "session_id is required"})
	}
	ctx := c.Request().Context()
	sources, err := s.Store.ListSourcesBySession(ctx, []string{body.SessionID})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
	}
	ids := make([]int64, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.ID)
	}
	if len(ids) > 0 {
		if err := s.Vectors.DeleteVectorDBData(ctx, ids); err != nil {
			logging.Log.WithError(err).WithField("session_id", body.SessionID).Warn("session cleanup vector delete failed")
		}
	}
	for _, id := range ids {
		if err := s.Store.DeleteSource(ctx, id); err != nil {
			logging.Log.WithError(err).WithField("source_id", id).Warn("session cleanup source delete failed")
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "deleted": len(ids)})
}
