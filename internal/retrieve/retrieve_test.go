package retrieve

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"agenttic-rag/internal/metastore"
	"agenttic-rag/internal/model"
	"agenttic-rag/internal/vectorstore"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) metastore.Store {
	t.Helper()
	s, err := metastore.OpenSQLite(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTruncateCapsAtTopK(t *testing.T) {
	scored := []vectorstore.Scored{
		{Chunk: model.VectorPoint{ChunkID: "a"}, Score: 3},
		{Chunk: model.VectorPoint{ChunkID: "b"}, Score: 2},
		{Chunk: model.VectorPoint{ChunkID: "c"}, Score: 1},
	}
	require.Len(t, truncate(scored, 2), 2)
	require.Equal(t, "a", truncate(scored, 2)[0].Chunk.ChunkID)
	require.Len(t, truncate(scored, 0), 3)
	require.Len(t, truncate(scored, 10), 3)
}

func TestSynthesisMessagesIncludesQueryAndContext(t *testing.T) {
	sources := []Source{
		{Title: "Doc A", Content: "alpha content"},
		{Title: "Doc B", Content: "beta content"},
	}
	msgs := synthesisMessages("what is alpha?", sources)
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].Role)
	require.Equal(t, "user", msgs[1].Role)
	require.Contains(t, msgs[1].Content, "what is alpha?")
	require.Contains(t, msgs[1].Content, "Doc A")
	require.Contains(t, msgs[1].Content, "alpha content")
	require.Contains(t, msgs[1].Content, "Doc B")
}

func TestLookupSourceResolvesAndCaches(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	src, err := store.CreateSource(ctx, model.Source{URL: "https://example.com/doc", Title: "Example Doc", SessionID: "s1"})
	require.NoError(t, err)

	p := &Pipeline{Store: store}
	cache := make(map[int64]sourceInfo)

	info := p.lookupSource(ctx, src.ID, cache)
	require.Equal(t, "https://example.com/doc", info.url)
	require.Equal(t, "Example Doc", info.title)
	require.Len(t, cache, 1)

	// Deleting the source after the first lookup proves the second call
	// is served from cache rather than hitting the store again.
	require.NoError(t, store.DeleteSource(ctx, src.ID))
	info2 := p.lookupSource(ctx, src.ID, cache)
	require.Equal(t, info, info2)
}

func TestLookupSourceMissingReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	p := &Pipeline{Store: newStore(t)}
	cache := make(map[int64]sourceInfo)
	info := p.lookupSource(ctx, 999, cache)
	require.Equal(t, sourceInfo{}, info)
}

func TestSynthesisMessagesNumbersPassages(t *testing.T) {
	sources := []Source{{Title: "X", Content: "y"}}
	msgs := synthesisMessages("q", sources)
	require.True(t, strings.Contains(msgs[1].Content, "[1] X"))
}
