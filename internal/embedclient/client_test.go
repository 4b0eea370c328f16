package embedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeEmbedServer(t *testing.T, fail func(batch int) bool) *httptest.Server {
	t.Helper()
	var batchN int
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		n := batchN
		batchN++
		if fail != nil && fail(n) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		items := make([]embedResponseItem, len(req.Input))
		for i, text := range req.Input {
			items[i] = embedResponseItem{Index: i, Embedding: []float32{float32(len(text)), float32(n)}}
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Data: items})
	}))
}

func TestEmbedTextsOrderPreservation(t *testing.T) {
	srv := fakeEmbedServer(t, nil)
	defer srv.Close()

	c := New(srv.URL, 2)
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := c.EmbedTexts(context.Background(), texts, "m", 2, 0)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		require.Equal(t, float32(len(text)), vecs[i][0], "vector %d must correspond to input %d", i, i)
	}
}

func TestEmbedTextsSkipsFailedBatch(t *testing.T) {
	srv := fakeEmbedServer(t, func(batch int) bool { return batch == 1 })
	defer srv.Close()

	c := New(srv.URL, 1)
	texts := []string{"a", "b", "c", "d"}
	vecs, err := c.EmbedTexts(context.Background(), texts, "m", 2, 0)
	require.NoError(t, err)
	require.Less(t, len(vecs), len(texts), "a failed batch should be skipped, not abort the whole call")
}
