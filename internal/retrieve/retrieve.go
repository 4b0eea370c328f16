// Package retrieve implements C9: embed once, hybrid-or-dense retrieve,
// optional rerank, and LLM synthesis — blocking or streamed over SSE.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"agenttic-rag/internal/llmprovider"
	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/metastore"
	"agenttic-rag/internal/rerank"
	"agenttic-rag/internal/sse"
	"agenttic-rag/internal/vectorstore"

	"agenttic-rag/internal/config"
	"agenttic-rag/internal/embedclient"
)

// Request is one retrieval call's input.
type Request struct {
	Query string
	TopK int
	EmbeddingModel string
	EmbeddingDims int
	UseHybrid bool
	SessionID string
	SourceIDs []int64 // optional document-id restriction
}

// Source is one chunk surfaced to the caller alongside the synthesized
// answer.
type Source struct {
	URL string `json:"url"`
	Title string `json:"title"`
	Content string `json:"content"`
	Score float64 `json:"score"`
	ChunkID string `json:"chunk_id"`
}

// Result is the non-stream response shape.
type Result struct {
	Answer string `json:"answer"`
	Sources []Source `json:"sources"`
	Success bool `json:"success"`
}

// Pipeline wires C3/C4/C5/C6 and an LLM provider together for C9.
type Pipeline struct {
	Embedder *embedclient.Client
	Vectors *vectorstore.Store
	Reranker *rerank.Client // nil means "no reranker configured"
	LLM llmprovider.Provider
	Store metastore.Store
	Config config.Config
}

// New constructs a Pipeline. reranker may be nil.
func New(embedder *embedclient.Client, vectors *vectorstore.Store, reranker *rerank.Client, llm llmprovider.Provider, store metastore.Store, cfg config.Config) *Pipeline {
	return &Pipeline{
		Embedder: embedder,
		Vectors: vectors,
		Reranker: reranker,
		LLM: llm,
		Store: store,
		Config: cfg,
	}
}

// RetrieveSources runs steps 1-4: embed, retrieve, rerank-or-truncate,
// and resolves each surviving chunk's source url/title.
func (p *Pipeline) RetrieveSources(ctx context.Context, req Request) ([]Source, error) {
	model := req.EmbeddingModel
	if model == "" {
		model = p.Config.Embedding.DefaultModel
	}
	dims := req.EmbeddingDims
	if dims == 0 {
		dims = p.Config.Embedding.Dimensions
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	vectors, err := p.Embedder.EmbedTexts(ctx, []string{req.Query}, model, 1, dims)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: no vector returned")
	}
	queryVector := vectors[0]

	var scored []vectorstore.Scored
	if req.UseHybrid {
		kDense := min(150, topK)
		kSparse := min(50, topK)
		scored, err = p.Vectors.QueryHybrid(ctx, req.Query, queryVector, topK, kDense, kSparse, req.SessionID, req.SourceIDs)
	} else {
		scored, err = p.Vectors.QueryEmbeddings(ctx, queryVector, topK, req.SessionID, req.SourceIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("vector retrieve: %w", err)
	}

	rerankTopK := p.Config.Rerank.TopK
	if rerankTopK <= 0 {
		rerankTopK = topK
	}

	var ordered []vectorstore.Scored
	if p.Reranker != nil && len(scored) > 0 {
		candidates := make([]rerank.Candidate, len(scored))
		byID := make(map[string]vectorstore.Scored, len(scored))
		for i, s := range scored {
			candidates[i] = rerank.Candidate{ChunkID: s.Chunk.ChunkID, Content: s.Chunk.Content, Score: s.Score}
			byID[s.Chunk.ChunkID] = s
		}
		reranked, err := p.Reranker.Rerank(ctx, req.Query, candidates, rerankTopK)
		if err != nil {
			logging.Log.WithError(err).Warn("rerank failed, falling back to pre-rerank order")
			ordered = truncate(scored, rerankTopK)
		} else {
			ordered = make([]vectorstore.Scored, 0, len(reranked))
			for _, c := range reranked {
				if s, ok := byID[c.ChunkID]; ok {
					s.Score = c.Score
					ordered = append(ordered, s)
				}
			}
		}
	} else {
		ordered = truncate(scored, rerankTopK)
	}

	sourceCache := make(map[int64]sourceInfo)
	sources := make([]Source, 0, len(ordered))
	for _, s := range ordered {
		info := p.lookupSource(ctx, s.Chunk.SourceID, sourceCache)
		sources = append(sources, Source{
			URL: info.url,
			Title: info.title,
			Content: s.Chunk.Content,
			Score: s.Score,
			ChunkID: s.Chunk.ChunkID,
		})
	}
	return sources, nil
}

type sourceInfo struct {
	url, title string
}

// lookupSource resolves a chunk's parent source's URL/title, memoizing
// within one retrieval call to avoid repeated store round-trips.
func (p *Pipeline) lookupSource(ctx context.Context, sourceID int64, cache map[int64]sourceInfo) sourceInfo {
	if info, ok := cache[sourceID]; ok {
		return info
	}
	info := sourceInfo{}
	if src, ok, err := p.Store.GetSource(ctx, sourceID); err == nil && ok {
		info = sourceInfo{url: src.URL, title: src.Title}
	} else if err != nil {
		logging.Log.WithError(err).WithField("source_id", sourceID).Warn("failed to resolve source for retrieval result")
	}
	cache[sourceID] = info
	return info
}

func truncate(scored []vectorstore.Scored, topK int) []vectorstore.Scored {
	if topK > 0 && len(scored) > topK {
		return scored[:topK]
	}
	return scored
}

const synthesisSystemPrompt = `You answer questions using only the provided context passages. Be direct and concise. If the passages do not contain the answer, say so plainly.`

func synthesisMessages(query string, sources []Source) []llmprovider.Message {
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, s.Title, s.Content)
	}
	user := fmt.Sprintf("Context:\n%s\nQuestion: %s", b.String(), query)
	return []llmprovider.Message{
		{Role: "system", Content: synthesisSystemPrompt},
		{Role: "user", Content: user},
	}
}

// Retrieve runs the non-stream path.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) (Result, error) {
	sources, err := p.RetrieveSources(ctx, req)
	if err != nil {
		return Result{}, err
	}
	answer, err := p.LLM.Complete(ctx, synthesisMessages(req.Query, sources), p.Config.LLM.Temperature)
	if err != nil {
		return Result{}, fmt.Errorf("synthesize answer: %w", err)
	}
	return Result{Answer: answer, Sources: sources, Success: true}, nil
}

// StreamRetrieve runs the stream path: delta events as
// the LLM produces tokens, then one sources event, then complete.
func (p *Pipeline) StreamRetrieve(ctx context.Context, req Request, w *sse.Writer) error {
	sources, err := p.RetrieveSources(ctx, req)
	if err != nil {
		_ = w.Error(err.Error())
		return err
	}

	var answer strings.Builder
	err = p.LLM.Stream(ctx, synthesisMessages(req.Query, sources), p.Config.LLM.Temperature, func(delta string) {
		answer.WriteString(delta)
		_ = w.Delta(delta)
	})
	if err != nil {
		_ = w.Error(err.Error())
		return fmt.Errorf("stream synthesis: %w", err)
	}

	if err := w.Sources(sources); err != nil {
		return err
	}
	return w.Complete(map[string]any{"answer": answer.String(), "success": true})
}
