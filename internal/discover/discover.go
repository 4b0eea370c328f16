// Package discover implements C7: posting chunked HTML to an external
// sub-document discovery webhook and handling its asynchronous callback.
// Discovery is webhook-driven and never blocks the ingestion call that
// triggers it.
package discover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/metastore"
	"agenttic-rag/internal/model"
)

// ChunkPayload is one raw-HTML chunk handed to the discovery webhook.
type ChunkPayload struct {
	ChunkID string `json:"chunk_id"`
	Content string `json:"content"`
	Index int `json:"index"`
}

// Request is the outbound POST body.
type Request struct {
	DocumentName string `json:"document_name"`
	CollectionName string `json:"collection_name"`
	URL string `json:"url"`
	TotalChunks int `json:"total_chunks"`
	TaskName string `json:"task_name"`
	Prompt string `json:"prompt"`
	DataList []ChunkPayload `json:"data_list"`
	RequestID string `json:"request_id"`
	RecursiveDepth int `json:"recursive_depth"`
}

const TaskName = "agenttic_ingest"

// CallbackOutputItem is one element of the callback's output array.
type CallbackOutputItem struct {
	Response struct {
		SubDocs []string `json:"sub_docs"`
	} `json:"response"`
}

// Callback is the inbound POST body from the discovery service, possibly
// wrapped in a {"body": {...}} envelope.
type Callback struct {
	TaskName string `json:"task_name"`
	DocumentName string `json:"document_name"`
	CollectionName string `json:"collection_name"`
	URL string `json:"url"`
	Output []CallbackOutputItem `json:"output"`
	RequestID string `json:"request_id"`
	RecursiveDepth int `json:"recursive_depth"`
	Body *Callback `json:"body,omitempty"`
}

// Unwrap returns the innermost Callback, following a single level of
// {"body": {...}} nesting.
func (c Callback) Unwrap() Callback {
	if c.Body != nil {
		return *c.Body
	}
	return c
}

// IsCallback reports whether a decoded request body is the async callback
// rather than a fresh client ingest request.
func (c Callback) IsCallback() bool {
	return c.TaskName != "" || (c.Body != nil && c.Body.TaskName != "")
}

// RecursionHandoff is what the discoverer hands back to the ingestion
// pipeline for each deduplicated child URL that should be recursively
// ingested.
type RecursionHandoff struct {
	URL string
	ParentSourceID int64
	CollectionName string
	RecursiveDepth int
}

// Discoverer posts ingest requests to the external webhook and processes
// its callback.
type Discoverer struct {
	HTTPClient *http.Client
	Store metastore.Store
}

func New(store metastore.Store) *Discoverer {
	return &Discoverer{HTTPClient: &http.Client{Timeout: 30 * time.Second}, Store: store}
}

// Post sends the discovery request and returns immediately; the response
// body is irrelevant — only transport failures are reported, and
// even those are recorded on the workflow-execution row rather than
// aborting the caller's ingest.
func (d *Discoverer) Post(ctx context.Context, webhookURL string, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal discovery request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := d.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post to discovery webhook: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

// HandleCallback updates the workflow execution record, unions sub_docs,
// and returns the deduplicated recursion handoffs for the ingestion
// pipeline to enqueue. Returns an error for malformed callbacks (wrong
// task_name), which the caller should reject without recursing or
// touching any workflow record, and also when recursion is requested
// (recursive_depth > 0) but the workflow execution for request_id cannot
// be loaded; by then the state update has already been attempted.
func (d *Discoverer) HandleCallback(ctx context.Context, raw Callback) ([]RecursionHandoff, error) {
	cb := raw.Unwrap()
	if cb.TaskName != TaskName {
		return nil, fmt.Errorf("unexpected task_name %q, want %q", cb.TaskName, TaskName)
	}

	if err := d.Store.UpdateWorkflowExecutionState(ctx, cb.RequestID, model.WorkflowSuccess); err != nil {
		logging.Log.WithError(err).WithField("request_id", cb.RequestID).Warn("failed to update workflow execution state")
	}

	seen := make(map[string]bool)
	var subDocs []string
	for _, item := range cb.Output {
		for _, u := range item.Response.SubDocs {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			subDocs = append(subDocs, u)
		}
	}

	if cb.RecursiveDepth <= 0 {
		return nil, nil
	}

	we, ok, err := d.Store.GetWorkflowExecution(ctx, cb.RequestID)
	if err != nil || !ok {
		return nil, fmt.Errorf("workflow execution %s not found for recursion", cb.RequestID)
	}

	handoffs := make([]RecursionHandoff, 0, len(subDocs))
	for _, u := range subDocs {
		handoffs = append(handoffs, RecursionHandoff{
			URL: u,
			ParentSourceID: we.SourceID,
			CollectionName: cb.CollectionName,
			RecursiveDepth: cb.RecursiveDepth - 1,
		})
	}
	return handoffs, nil
}
