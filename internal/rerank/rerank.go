// Package rerank implements C5: token-budgeted reranking against an HTTP
// reranker service. The transport is an injected dependency (http.Client)
// rather than a second, gateway-aware code path — there is exactly one
// interface.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"agenttic-rag/internal/logging"

	"golang.org/x/sync/semaphore"
)

// Candidate is a chunk and its pre-rerank retrieval score.
type Candidate struct {
	ChunkID string
	Content string
	Score float64
}

// TokenCounter estimates the token length of a string; normally backed by
// *chunk.Splitter.CountTokens.
type TokenCounter func(text string) int

// Client batches (query, documents) pairs under a token budget and
// concurrency limit.
type Client struct {
	ServiceURL string
	HTTPClient *http.Client
	sem *semaphore.Weighted
	CountTokens TokenCounter
	MaxTokens int
}

// New returns a Client. maxConcurrency bounds concurrent batch requests;
// maxTokens bounds each batch's (query_tokens + sum(doc_tokens)).
func New(serviceURL string, maxConcurrency, maxTokens int, counter TokenCounter) *Client {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if maxTokens <= 0 {
		maxTokens = 3072
	}
	return &Client{
		ServiceURL: serviceURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		sem: semaphore.NewWeighted(int64(maxConcurrency)),
		CountTokens: counter,
		MaxTokens: maxTokens,
	}
}

type rerankRequest struct {
	Query string `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank scores candidates against query, batching by token budget and
// running batches concurrently. Results are flattened and
// sorted by new score descending. On total failure, falls back to the
// pre-rerank order truncated to topK.
func (c *Client) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	batches := c.batchByTokenBudget(query, candidates)

	type batchResult struct {
		idx int
		items []Candidate
		err error
	}
	results := make(chan batchResult, len(batches))
	for i, batch := range batches {
		i, batch := i, batch
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return fallback(candidates, topK), nil
		}
		go func() {
			defer c.sem.Release(1)
			scored, err := c.rerankBatch(ctx, query, batch)
			results <- batchResult{idx: i, items: scored, err: err}
		}()
	}

	var all []Candidate
	var anyFailure bool
	for range batches {
		r := <-results
		if r.err != nil {
			logging.Log.WithError(r.err).Warn("rerank batch failed, falling back to pre-rerank order")
			anyFailure = true
			continue
		}
		all = append(all, r.items...)
	}
	if anyFailure && len(all) == 0 {
		return fallback(candidates, topK), nil
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if topK > 0 && len(all) > topK {
		all = all[:topK]
	}
	return all, nil
}

func fallback(candidates []Candidate, topK int) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// batchByTokenBudget splits candidates into groups whose (query tokens +
// sum doc tokens) does not exceed MaxTokens. A single document larger
// than the budget still yields its own one-document batch.
func (c *Client) batchByTokenBudget(query string, candidates []Candidate) [][]Candidate {
	queryTokens := c.CountTokens(query)
	var batches [][]Candidate
	var current []Candidate
	currentTokens := queryTokens

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentTokens = queryTokens
		}
	}
	for _, cand := range candidates {
		docTokens := c.CountTokens(cand.Content)
		if len(current) > 0 && currentTokens+docTokens > c.MaxTokens {
			flush()
		}
		current = append(current, cand)
		currentTokens += docTokens
	}
	flush()
	return batches
}

func (c *Client) rerankBatch(ctx context.Context, query string, batch []Candidate) ([]Candidate, error) {
	docs := make([]string, len(batch))
	for i, cand := range batch {
		docs[i] = cand.Content
	}
	body, err := json.Marshal(rerankRequest{Query: query, Documents: docs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServiceURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("rerank service status %s: %s", resp.Status, string(b))
	}
	var rr rerankResponse
	if err := json.Unmarshal(b, &rr); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(rr.Scores) != len(batch) {
		return nil, fmt.Errorf("rerank response has %d scores for %d documents", len(rr.Scores), len(batch))
	}
	out := make([]Candidate, len(batch))
	for i, cand := range batch {
		score := rr.Scores[i]
		out[i] = Candidate{ChunkID: cand.ChunkID, Content: cand.Content, Score: score}
	}
	return out, nil
}
