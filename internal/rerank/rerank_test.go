package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func wordCount(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if r == ' ' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

func fakeRerankServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		scores := make([]float64, len(req.Documents))
		for i, d := range req.Documents {
			scores[i] = float64(len(d))
		}
		_ = json.NewEncoder(w).Encode(rerankResponse{Scores: scores})
	}))
}

func TestRerankSortsDescending(t *testing.T) {
	srv := fakeRerankServer(t)
	defer srv.Close()

	c := New(srv.URL, 4, 3072, wordCount)
	candidates := []Candidate{
		{ChunkID: "a", Content: "short"},
		{ChunkID: "b", Content: "a much longer document body"},
		{ChunkID: "c", Content: "mid length text"},
	}
	out, err := c.Rerank(context.Background(), "query", candidates, 10)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := 0; i+1 < len(out); i++ {
		require.GreaterOrEqual(t, out[i].Score, out[i+1].Score)
	}
	require.Equal(t, "b", out[0].ChunkID)
}

func TestRerankSingleOversizedDocumentGetsOwnBatch(t *testing.T) {
	srv := fakeRerankServer(t)
	defer srv.Close()

	c := New(srv.URL, 1, 5, wordCount) // tiny budget
	candidates := []Candidate{
		{ChunkID: "big", Content: "one two three four five six seven"},
	}
	batches := c.batchByTokenBudget("q", candidates)
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)

	out, err := c.Rerank(context.Background(), "q", candidates, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestRerankFallsBackOnTransportFailure(t *testing.T) {
	c := New("http://127.0.0.1:0", 2, 3072, wordCount)
	candidates := []Candidate{
		{ChunkID: "a", Content: "x", Score: 0.5},
		{ChunkID: "b", Content: "y", Score: 0.9},
	}
	out, err := c.Rerank(context.Background(), "q", candidates, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].ChunkID) // falls back to pre-rerank score order
}
