// Package embedclient implements C3: a batched embedding client against an
// OpenAI-compatible embeddings endpoint, grounded on the internal/embeddings
// helper.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agenttic-rag/internal/logging"

	"golang.org/x/sync/semaphore"
)

// Client embeds text batches against a single OpenAI-compatible endpoint,
// bounding in-flight requests with a semaphore sized by max_concurrency.
type Client struct {
	ServiceURL string
	HTTPClient *http.Client
	sem *semaphore.Weighted
}

// New returns a Client. maxConcurrency bounds concurrently in-flight batch
// requests.
func New(serviceURL string, maxConcurrency int) *Client {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Client{
		ServiceURL: serviceURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		sem: semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input []string `json:"input"`
	EncodingFormat string `json:"encoding_format"`
	Dimensions int `json:"dimensions,omitempty"`
}

type embedResponseItem struct {
	Embedding []float32 `json:"embedding"`
	Index int `json:"index"`
}

type embedResponse struct {
	Data []embedResponseItem `json:"data"`
}

// EmbedTexts vectorizes texts in batches of batchSize, returning vectors
// index-aligned with texts. A batch that fails is logged and skipped
// entirely — the result may be shorter than texts; callers detect loss by
// comparing lengths.
func (c *Client) EmbedTexts(ctx context.Context, texts []string, model string, batchSize, dimensions int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = 2
	}

	type batchResult struct {
		start int
		vecs [][]float32
		err error
	}

	var batches [][]string
	var starts []int
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
		starts = append(starts, i)
	}

	results := make(chan batchResult, len(batches))
	for bi := range batches {
		bi := bi
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquire embedding semaphore: %w", err)
		}
		go func() {
			defer c.sem.Release(1)
			vecs, err := c.embedBatch(ctx, batches[bi], model, dimensions)
			results <- batchResult{start: starts[bi], vecs: vecs, err: err}
		}()
	}

	ordered := make(map[int][][]float32, len(batches))
	for range batches {
		r := <-results
		if r.err != nil {
			logging.Log.WithError(r.err).WithField("batch_start", r.start).Warn("embedding batch failed, skipping")
			continue
		}
		ordered[r.start] = r.vecs
	}

	out := make([][]float32, 0, len(texts))
	for _, start := range starts {
		vecs, ok := ordered[start]
		if !ok {
			continue
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []string, model string, dimensions int) ([][]float32, error) {
	payload := embedRequest{
		Model: model,
		Input: batch,
		EncodingFormat: "float",
	}
	if dimensions > 0 {
		payload.Dimensions = dimensions
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := c.ServiceURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embed service status %s: %s", resp.Status, string(b))
	}

	var er embedResponse
	if err := json.Unmarshal(b, &er); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	// The endpoint is contractually index-ordered, but sort defensively.
	out := make([][]float32, len(er.Data))
	for _, item := range er.Data {
		if item.Index >= 0 && item.Index < len(out) {
			out[item.Index] = item.Embedding
		}
	}
	for i, v := range out {
		if v == nil && i < len(batch) {
			return nil, fmt.Errorf("embed response missing index %d", i)
		}
	}
	return out, nil
}
