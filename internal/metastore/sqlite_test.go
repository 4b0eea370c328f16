package metastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"agenttic-rag/internal/model"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSourceLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src, err := s.CreateSource(ctx, model.Source{URL: "https://example.com/a", Title: "A", SessionID: "sess"})
	require.NoError(t, err)
	require.NotZero(t, src.ID)

	found, ok, err := s.FindSourceByURL(ctx, "https://example.com/a", []string{"sess"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, src.ID, found.ID)

	_, ok, err = s.FindSourceByURL(ctx, "https://example.com/a", []string{"other-sess"})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.DeleteSource(ctx, src.ID))
	_, ok, err = s.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestChunksCascadeDeleteWithSource(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	src, err := s.CreateSource(ctx, model.Source{URL: "https://example.com/b", SessionID: "sess"})
	require.NoError(t, err)

	chunks := []model.Chunk{
		{ChunkID: model.TextChunkID("sess", src.URL, 0), Content: "one", SourceID: src.ID, SessionID: "sess", Ordinal: 0, Variant: model.VariantText},
		{ChunkID: model.TextChunkID("sess", src.URL, 1), Content: "two", SourceID: src.ID, SessionID: "sess", Ordinal: 1, Variant: model.VariantText},
	}
	require.NoError(t, s.InsertChunks(ctx, chunks))

	n, err := s.CountChunksBySource(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Re-inserting the same chunk ids must not duplicate rows (idempotent upsert).
	require.NoError(t, s.InsertChunks(ctx, chunks))
	n, err = s.CountChunksBySource(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, s.DeleteSource(ctx, src.ID))
	n, err = s.CountChunksBySource(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestWorkflowExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	we := model.WorkflowExecution{RequestID: "req-1", DocumentName: "doc", State: model.WorkflowRunning}
	require.NoError(t, s.CreateWorkflowExecution(ctx, we))

	got, ok, err := s.GetWorkflowExecution(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.WorkflowRunning, got.State)

	require.NoError(t, s.UpdateWorkflowExecutionState(ctx, "req-1", model.WorkflowSuccess))
	got, _, err = s.GetWorkflowExecution(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, model.WorkflowSuccess, got.State)
	require.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.GetConfig(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetConfig(ctx, "chunk_size", "800"))
	v, ok, err := s.GetConfig(ctx, "chunk_size")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "800", v)

	require.NoError(t, s.SetConfig(ctx, "chunk_size", "900"))
	v, _, err = s.GetConfig(ctx, "chunk_size")
	require.NoError(t, err)
	require.Equal(t, "900", v)
}

func TestSourceTimestampsAreSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	before := time.Now().Add(-time.Second)
	src, err := s.CreateSource(ctx, model.Source{URL: "https://example.com/c", SessionID: "sess"})
	require.NoError(t, err)
	require.True(t, src.CreatedAt.After(before))
}
