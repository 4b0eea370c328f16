// Package vectorstore implements C4: a single named Qdrant collection
// holding dense points, queried dense-only or hybrid (dense ANN fused with
// a lexical scroll-and-score pass), grounded on
// internal/persistence/databases/qdrant_vector.go gateway.
package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"agenttic-rag/internal/model"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadOriginalID preserves the caller's chunk_id when it isn't itself a
// UUID; Qdrant point ids must be UUIDs or positive integers.
const payloadOriginalID = "_original_id"

const (
	payloadSourceID = "source_id"
	payloadSessionID = "session_id"
	payloadChunkID = "chunk_id"
	payloadContent = "content"
)

// Scored pairs a chunk with its retrieval score.
type Scored struct {
	Chunk model.VectorPoint
	Score float64
}

// Store is the C4 gateway: hybrid dense+sparse retrieval over one
// collection, filtered by session and optional source-id set.
type Store struct {
	client *qdrant.Client
	collection string
	dimension int
	metric string
}

// New dials Qdrant's gRPC API (default port 6334) and ensures the named
// collection exists with the configured vector size and distance metric.
func New(dsn, collection string, dimensions int, metric string) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	s := &Store{client: client, collection: collection, dimension: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}
	if err := s.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch s.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	if s.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size: uint64(s.dimension),
			Distance: distance,
		}),
	})
}

func pointIDFor(chunkID string) (*qdrant.PointId, bool) {
	if _, err := uuid.Parse(chunkID); err == nil {
		return qdrant.NewIDUUID(chunkID), false
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()), true
}

// AddEmbeddings upserts one point per (chunk, vector), keyed deterministically
// off chunk_id so repeated upserts for the same chunk are idempotent.
// chunks and vectors must be index-aligned and equal length.
func (s *Store) AddEmbeddings(ctx context.Context, chunks []model.VectorPoint, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks (%d) and vectors (%d) length mismatch", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		id, derived := pointIDFor(c.ChunkID)
		payload := map[string]any{
			payloadSourceID: fmt.Sprintf("%d", c.SourceID),
			payloadSessionID: c.SessionID,
			payloadChunkID: c.ChunkID,
			payloadContent: c.Content,
		}
		if derived {
			payload[payloadOriginalID] = c.ChunkID
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		points = append(points, &qdrant.PointStruct{
			Id: id,
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: s.collection, Points: points})
	return err
}

func sourceIDFilter(sessionID string, sourceIDs []int64) *qdrant.Filter {
	must := []*qdrant.Condition{qdrant.NewMatch(payloadSessionID, sessionID)}
	if len(sourceIDs) > 0 {
		values := make([]string, len(sourceIDs))
		for i, id := range sourceIDs {
			values[i] = fmt.Sprintf("%d", id)
		}
		must = append(must, qdrant.NewMatchKeywords(payloadSourceID, values...))
	}
	return &qdrant.Filter{Must: must}
}

func chunkFromPayload(payload map[string]*qdrant.Value) model.VectorPoint {
	var vp model.VectorPoint
	for k, v := range payload {
		switch k {
		case payloadSourceID:
			fmt.Sscanf(v.GetStringValue(), "%d", &vp.SourceID)
		case payloadSessionID:
			vp.SessionID = v.GetStringValue()
		case payloadChunkID:
			vp.ChunkID = v.GetStringValue()
		case payloadContent:
			vp.Content = v.GetStringValue()
		}
	}
	return vp
}

// QueryEmbeddings runs dense-only ANN search filtered by session and an
// optional source-id restriction.
func (s *Store) QueryEmbeddings(ctx context.Context, vector []float32, topK int, sessionID string, sourceIDs []int64) ([]Scored, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	limit := uint64(topK)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query: qdrant.NewQueryDense(vec),
		Limit: &limit,
		Filter: sourceIDFilter(sessionID, sourceIDs),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dense query: %w", err)
	}
	out := make([]Scored, 0, len(hits))
	for _, hit := range hits {
		out = append(out, Scored{Chunk: chunkFromPayload(hit.Payload), Score: float64(hit.Score)})
	}
	return out, nil
}

// sparseMatch is a crude lexical score: count of query-term occurrences in
// content, normalized by content length. Qdrant's payload-text "sparse"
// side is modeled here as a scroll-and-score pass rather than a dedicated
// sparse-vector index, since the collection is configured dense-only.
func (s *Store) sparseMatch(ctx context.Context, query string, topK int, sessionID string, sourceIDs []int64) ([]Scored, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || topK <= 0 {
		return nil, nil
	}
	limit := uint32(1000)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: sourceIDFilter(sessionID, sourceIDs),
		Limit: &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scroll for sparse match: %w", err)
	}
	type scoredChunk struct {
		chunk model.VectorPoint
		score float64
	}
	var scored []scoredChunk
	for _, p := range points {
		vp := chunkFromPayload(p.Payload)
		content := strings.ToLower(vp.Content)
		if content == "" {
			continue
		}
		var hits int
		for _, term := range terms {
			hits += strings.Count(content, term)
		}
		if hits == 0 {
			continue
		}
		scored = append(scored, scoredChunk{chunk: vp, score: float64(hits) / float64(len(content)+1)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	out := make([]Scored, len(scored))
	for i, sc := range scored {
		out[i] = Scored{Chunk: sc.chunk, Score: sc.score}
	}
	return out, nil
}

// QueryHybrid runs dense ANN (kDense) and sparse lexical matching (kSparse)
// and merges them by reciprocal-rank fusion, returning the top topK.
// rrfK is the standard RRF smoothing constant (60).
func (s *Store) QueryHybrid(ctx context.Context, query string, vector []float32, topK, kDense, kSparse int, sessionID string, sourceIDs []int64) ([]Scored, error) {
	const rrfK = 60.0

	dense, err := s.QueryEmbeddings(ctx, vector, kDense, sessionID, sourceIDs)
	if err != nil {
		return nil, err
	}
	sparse, err := s.sparseMatch(ctx, query, kSparse, sessionID, sourceIDs)
	if err != nil {
		return nil, err
	}

	type fused struct {
		chunk model.VectorPoint
		score float64
	}
	byID := make(map[string]*fused)
	add := func(results []Scored) {
		for rank, r := range results {
			f, ok := byID[r.Chunk.ChunkID]
			if !ok {
				f = &fused{chunk: r.Chunk}
				byID[r.Chunk.ChunkID] = f
			}
			f.score += 1.0 / (rrfK + float64(rank+1))
		}
	}
	add(dense)
	add(sparse)

	merged := make([]fused, 0, len(byID))
	for _, f := range byID {
		merged = append(merged, *f)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].score > merged[j].score })
	if topK <= 0 {
		topK = 10
	}
	if len(merged) > topK {
		merged = merged[:topK]
	}
	out := make([]Scored, len(merged))
	for i, f := range merged {
		out[i] = Scored{Chunk: f.chunk, Score: f.score}
	}
	return out, nil
}

// DeleteVectorDBData removes all points whose payload source_id is in the
// given set.
func (s *Store) DeleteVectorDBData(ctx context.Context, sourceIDs []int64) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	values := make([]string, len(sourceIDs))
	for i, id := range sourceIDs {
		values[i] = fmt.Sprintf("%d", id)
	}
	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatchKeywords(payloadSourceID, values...)}}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(filter),
	})
	return err
}

// Count returns the exact number of points matching the session and
// optional source-id filter.
func (s *Store) Count(ctx context.Context, sessionID string, sourceIDs []int64) (uint64, error) {
	exact := true
	resp, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter: sourceIDFilter(sessionID, sourceIDs),
		Exact: &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return resp, nil
}

func (s *Store) Dimension() int { return s.dimension }

func (s *Store) Close() error { return s.client.Close() }
