package discover

import (
	"context"
	"path/filepath"
	"testing"

	"agenttic-rag/internal/metastore"
	"agenttic-rag/internal/model"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) metastore.Store {
	t.Helper()
	s, err := metastore.OpenSQLite(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHandleCallbackUnionsAndDedupesSubDocs(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.CreateWorkflowExecution(ctx, model.WorkflowExecution{
		RequestID: "req-1", SourceID: 42, State: model.WorkflowRunning,
	}))

	d := New(store)
	cb := Callback{
		TaskName:       TaskName,
		RequestID:      "req-1",
		CollectionName: "collection_abcd1234",
		RecursiveDepth: 1,
		Output: []CallbackOutputItem{
			{Response: struct {
				SubDocs []string `json:"sub_docs"`
			}{SubDocs: []string{"https://example.com/a", "https://example.com/b"}}},
			{Response: struct {
				SubDocs []string `json:"sub_docs"`
			}{SubDocs: []string{"https://example.com/a"}}},
		},
	}

	handoffs, err := d.HandleCallback(ctx, cb)
	require.NoError(t, err)
	require.Len(t, handoffs, 2)
	for _, h := range handoffs {
		require.Equal(t, int64(42), h.ParentSourceID)
		require.Equal(t, 0, h.RecursiveDepth)
	}

	we, ok, err := store.GetWorkflowExecution(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.WorkflowSuccess, we.State)
}

func TestHandleCallbackRejectsWrongTaskName(t *testing.T) {
	d := New(newStore(t))
	_, err := d.HandleCallback(context.Background(), Callback{TaskName: "something_else", RequestID: "req-1"})
	require.Error(t, err)
}

func TestHandleCallbackSkipsRecursionAtDepthZero(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.CreateWorkflowExecution(ctx, model.WorkflowExecution{RequestID: "req-2", SourceID: 1, State: model.WorkflowRunning}))

	d := New(store)
	cb := Callback{
		TaskName:       TaskName,
		RequestID:      "req-2",
		RecursiveDepth: 0,
		Output: []CallbackOutputItem{{Response: struct {
			SubDocs []string `json:"sub_docs"`
		}{SubDocs: []string{"https://example.com/a"}}}},
	}
	handoffs, err := d.HandleCallback(ctx, cb)
	require.NoError(t, err)
	require.Nil(t, handoffs)
}

func TestCallbackUnwrapsBodyEnvelope(t *testing.T) {
	inner := Callback{TaskName: TaskName, RequestID: "req-3"}
	wrapped := Callback{Body: &inner}
	require.True(t, wrapped.IsCallback())
	require.Equal(t, "req-3", wrapped.Unwrap().RequestID)
}
