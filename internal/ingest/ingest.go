// Package ingest implements C8: the ingestion pipeline orchestrating
// fetch/chunk/persist/embed/discover with bounded concurrency and
// idempotent re-ingest short-circuiting.
package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"agenttic-rag/internal/apperr"
	"agenttic-rag/internal/chunk"
	"agenttic-rag/internal/collection"
	"agenttic-rag/internal/config"
	"agenttic-rag/internal/discover"
	"agenttic-rag/internal/embedclient"
	"agenttic-rag/internal/fetch"
	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/metastore"
	"agenttic-rag/internal/model"
	"agenttic-rag/internal/tasktracker"
	"agenttic-rag/internal/vectorstore"

	"golang.org/x/sync/semaphore"
)

// Namer produces a display name and collection name for a freshly
// discovered (non-recursive) URL, normally backed by an LLM call with a
// URL-derived fallback on failure.
type Namer interface {
	Name(ctx context.Context, url string) (documentName, collectionName string, err error)
}

// Request is one ingestion call's input.
type Request struct {
	URL string
	EmbeddingModel string
	EmbeddingDims int
	WebhookURL string
	RecursiveDepth int
	IsRecursive bool
	DocumentName string
	CollectionName string
	ParentSourceID int64
	SessionID string // caller-scoped session id, if any
}

// Result is returned to the HTTP layer for a client-initiated ingest.
type Result struct {
	Success bool
	Message string
	DocumentName string
	CollectionName string
	TotalChunks int
	SourceID int64
}

// Pipeline wires C1-C7 together.
type Pipeline struct {
	Fetcher *fetch.Fetcher
	Splitter *chunk.Splitter
	Store metastore.Store
	Embedder *embedclient.Client
	Vectors *vectorstore.Store
	Discoverer *discover.Discoverer
	Tasks *tasktracker.Tracker
	Namer Namer
	Config config.Config

	embedSem *semaphore.Weighted
	subDocSem *semaphore.Weighted
}

func New(f *fetch.Fetcher, s *chunk.Splitter, store metastore.Store, embed *embedclient.Client, vectors *vectorstore.Store, disc *discover.Discoverer, tasks *tasktracker.Tracker, namer Namer, cfg config.Config) *Pipeline {
	maxConcurrency := cfg.Embedding.Concurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Pipeline{
		Fetcher: f, Splitter: s, Store: store, Embedder: embed, Vectors: vectors,
		Discoverer: disc, Tasks: tasks, Namer: namer, Config: cfg,
		embedSem: semaphore.NewWeighted(int64(maxConcurrency)),
		subDocSem: semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// knownIngestSessionIDs resolves the set of session ids this ingest call's
// Source lookups and fixed-session writes should consider.
func (p *Pipeline) knownIngestSessionIDs(req Request) []string {
	return collection.KnownIngestSessionIDs(req.SessionID)
}

// Ingest runs the full C8 algorithm for one URL.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (Result, error) {
	sessionIDs := p.knownIngestSessionIDs(req)
	writeSessionID := sessionIDs[0]

	// Idempotence: short-circuit if a Source already exists for this URL
	// in one of the known sessions.
	if existing, ok, err := p.Store.FindSourceByURL(ctx, req.URL, sessionIDs); err == nil && ok {
		n, _ := p.Store.CountChunksBySource(ctx, existing.ID)
		return Result{
			Success: true, Message: "source already ingested, skipping re-embedding",
			DocumentName: existing.Title, CollectionName: collection.ID(existing.URL),
			TotalChunks: n, SourceID: existing.ID,
		}, nil
	}

	documentName := req.DocumentName
	collectionName := req.CollectionName
	if req.IsRecursive {
		// Inherit parent's names; compute collection name if absent.
		if collectionName == "" {
			collectionName = collection.ID(req.URL)
		}
	} else if documentName == "" || collectionName == "" {
		name, coll, err := p.Namer.Name(ctx, req.URL)
		if err != nil {
			logging.Log.WithError(err).Warn("LLM naming failed, falling back to URL-derived names")
			name, coll = fallbackNames(req.URL)
		}
		if documentName == "" {
			documentName = name
		}
		if collectionName == "" {
			collectionName = coll
		}
	}

	rawHTML, err := p.Fetcher.FetchHTML(ctx, req.URL)
	if err != nil {
		return Result{}, apperr.Network(fmt.Sprintf("fetch %s", req.URL), err)
	}
	_, text, err := p.Fetcher.FetchThenExtract(ctx, req.URL)
	if err != nil {
		return Result{}, apperr.Network(fmt.Sprintf("extract %s", req.URL), err)
	}

	textChunks, err := p.Splitter.Split(text, p.Config.Chunking.TextChunkTokens, p.Config.Chunking.TextOverlapTokens)
	if err != nil {
		return Result{}, apperr.Parsing("chunk plain text", err)
	}
	if len(textChunks) == 0 {
		return Result{}, apperr.Resource("extraction yielded zero chunks, aborting ingest", nil)
	}
	htmlChunks, err := p.Splitter.Split(rawHTML, p.Config.Chunking.HTMLChunkTokens, p.Config.Chunking.HTMLOverlapTokens)
	if err != nil {
		return Result{}, apperr.Parsing("chunk raw html", err)
	}

	// Source: recursive descendants share the parent's Source; otherwise
	// create a fresh one under the caller's session id, or under the fixed
	// ingestion session id when the request carries none.
	var src model.Source
	if req.IsRecursive && req.ParentSourceID != 0 {
		existing, ok, err := p.Store.GetSource(ctx, req.ParentSourceID)
		if err != nil {
			return Result{}, apperr.Resource("load parent source", err)
		}
		if ok {
			src = existing
		}
	}
	if src.ID == 0 {
		src, err = p.Store.CreateSource(ctx, model.Source{URL: req.URL, Title: documentName, SessionID: writeSessionID})
		if err != nil {
			return Result{}, apperr.Resource("create source", err)
		}
	}

	allChunks := make([]model.Chunk, 0, len(textChunks)+len(htmlChunks))
	for _, c := range textChunks {
		allChunks = append(allChunks, model.Chunk{
			ChunkID: model.TextChunkID(writeSessionID, req.URL, c.Ordinal), Content: c.Content,
			SourceID: src.ID, SessionID: writeSessionID, Ordinal: c.Ordinal, Variant: model.VariantText,
		})
	}
	for _, c := range htmlChunks {
		allChunks = append(allChunks, model.Chunk{
			ChunkID: model.HTMLChunkID(writeSessionID, req.URL, c.Ordinal), Content: c.Content,
			SourceID: src.ID, SessionID: writeSessionID, Ordinal: c.Ordinal, Variant: model.VariantHTML,
		})
	}
	// Commit chunks before any network call for embedding.
	if err := p.Store.InsertChunks(ctx, allChunks); err != nil {
		return Result{}, apperr.Resource("insert chunks", err)
	}

	p.embedAndUpsert(ctx, textChunksOnly(allChunks), req.EmbeddingModel, req.EmbeddingDims)

	if req.RecursiveDepth > 0 && p.Discoverer != nil && req.WebhookURL != "" {
		p.postDiscovery(ctx, req, src, collectionName, allChunks, documentName)
	}

	return Result{
		Success: true, Message: "ingest complete",
		DocumentName: documentName, CollectionName: collectionName,
		TotalChunks: len(textChunks), SourceID: src.ID,
	}, nil
}

func textChunksOnly(chunks []model.Chunk) []model.Chunk {
	out := make([]model.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Variant == model.VariantText {
			out = append(out, c)
		}
	}
	return out
}

// embedAndUpsert partitions chunks into embedding_batch_size groups and
// embeds+upserts each under the embedding semaphore. A batch failure is
// recorded but does not abort other batches.
func (p *Pipeline) embedAndUpsert(ctx context.Context, chunks []model.Chunk, model_ string, dims int) {
	if len(chunks) == 0 {
		return
	}
	if model_ == "" {
		model_ = p.Config.Embedding.DefaultModel
	}
	if dims <= 0 {
		dims = p.Config.Embedding.Dimensions
	}
	batchSize := p.Config.Embedding.BatchSize
	if batchSize <= 0 {
		batchSize = 2
	}

	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		if err := p.embedSem.Acquire(ctx, 1); err != nil {
			return
		}
		func() {
			defer p.embedSem.Release(1)
			texts := make([]string, len(batch))
			for j, c := range batch {
				texts[j] = c.Content
			}
			vectors, err := p.Embedder.EmbedTexts(ctx, texts, model_, len(batch), dims)
			if err != nil {
				logging.Log.WithError(err).Warn("embedding batch failed, skipping")
				return
			}
			if len(vectors) != len(batch) {
				logging.Log.WithField("expected", len(batch)).WithField("got", len(vectors)).
					Warn("embedding batch returned fewer vectors than chunks, skipping")
				return
			}
			points := make([]model.VectorPoint, len(batch))
			for j, c := range batch {
				points[j] = model.VectorPoint{SourceID: c.SourceID, SessionID: c.SessionID, ChunkID: c.ChunkID, Content: c.Content}
			}
			if err := p.Vectors.AddEmbeddings(ctx, points, vectors); err != nil {
				logging.Log.WithError(err).Warn("vector upsert failed for batch")
			}
		}()
	}
}

// postDiscovery creates the workflow-execution record and POSTs the
// raw-HTML chunks to the discovery webhook. A posting
// failure marks the row "error" but still lets the local ingest succeed.
func (p *Pipeline) postDiscovery(ctx context.Context, req Request, src model.Source, collectionName string, allChunks []model.Chunk, documentName string) {
	requestID := fmt.Sprintf("%s-%d", hexDigest(req.URL), src.ID)
	we := model.WorkflowExecution{RequestID: requestID, DocumentName: documentName, SourceID: src.ID, State: model.WorkflowRunning}
	if err := p.Store.CreateWorkflowExecution(ctx, we); err != nil {
		logging.Log.WithError(err).Warn("failed to create workflow execution row")
		return
	}

	var dataList []discover.ChunkPayload
	for _, c := range allChunks {
		if c.Variant != model.VariantHTML {
			continue
		}
		dataList = append(dataList, discover.ChunkPayload{ChunkID: c.ChunkID, Content: c.Content, Index: c.Ordinal})
	}

	dreq := discover.Request{
		DocumentName: documentName, CollectionName: collectionName, URL: req.URL,
		TotalChunks: len(allChunks), TaskName: discover.TaskName,
		Prompt: "classify child links for recursive ingestion", DataList: dataList,
		RequestID: requestID, RecursiveDepth: req.RecursiveDepth,
	}
	if err := p.Discoverer.Post(ctx, req.WebhookURL, dreq); err != nil {
		logging.Log.WithError(err).WithField("request_id", requestID).Warn("discovery webhook post failed")
		if uerr := p.Store.UpdateWorkflowExecutionState(ctx, requestID, model.WorkflowError); uerr != nil {
			logging.Log.WithError(uerr).Warn("failed to mark workflow execution as error")
		}
	}
}

func fallbackNames(rawURL string) (documentName, collectionName string) {
	return rawURL, collection.ID(rawURL)
}

func hexDigest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
