package orchestrate

import (
	"context"

	"agenttic-rag/internal/logging"
	"agenttic-rag/internal/retrieve"
)

// recallForGap queries the hybrid retriever restricted to sourceIDs for a
// single knowledge gap's description, keeping the top gapRecallTopK
// passages.
func recallForGap(ctx context.Context, pipeline *retrieve.Pipeline, gap KnowledgeGap, sessionID string, sourceIDs []int64, topK int) []RecalledPassage {
	if len(sourceIDs) == 0 || topK <= 0 {
		return nil
	}
	sources, err := pipeline.RetrieveSources(ctx, retrieve.Request{
		Query: gap.GapDescription,
		TopK: topK,
		UseHybrid: true,
		SessionID: sessionID,
		SourceIDs: sourceIDs,
	})
	if err != nil {
		logging.Log.WithError(err).WithField("gap", gap.GapDescription).Warn("gap recall failed")
		return nil
	}
	out := make([]RecalledPassage, 0, len(sources))
	for _, s := range sources {
		out = append(out, RecalledPassage{
			GapDescription: gap.GapDescription,
			Content: s.Content,
			SourceURL: s.URL,
			SourceTitle: s.Title,
			Score: s.Score,
			ChunkID: s.ChunkID,
		})
	}
	return out
}

// recallAllGaps runs recallForGap for every gap concurrently, since each
// gap's retrieval is independent and I/O-bound.
func recallAllGaps(ctx context.Context, pipeline *retrieve.Pipeline, gaps []KnowledgeGap, sessionID string, sourceIDs []int64, topK int) []RecalledPassage {
	type result struct {
		idx int
		passage []RecalledPassage
	}
	ch := make(chan result, len(gaps))
	for i, g := range gaps {
		go func(i int, g KnowledgeGap) {
			ch <- result{idx: i, passage: recallForGap(ctx, pipeline, g, sessionID, sourceIDs, topK)}
		}(i, g)
	}
	ordered := make([][]RecalledPassage, len(gaps))
	for range gaps {
		r := <-ch
		ordered[r.idx] = r.passage
	}
	var out []RecalledPassage
	for _, p := range ordered {
		out = append(out, p...)
	}
	return out
}
