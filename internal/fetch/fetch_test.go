package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURLStripsDefaultPortAndFragment(t *testing.T) {
	require.Equal(t, "http://example.com/a", normalizeURL("HTTP://Example.com:80/a#frag"))
	require.Equal(t, "https://example.com/a", normalizeURL("https://EXAMPLE.com:443/a"))
}

func TestFetchHTMLLightweightCaches(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><article><p>hello world</p></article></body></html>"))
	}))
	defer srv.Close()

	f := New(EngineLightweight, 5*time.Second, 10, time.Minute, 1<<20)
	html1, err := f.FetchHTML(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, html1, "hello world")

	html2, err := f.FetchHTML(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, html1, html2)
	require.Equal(t, 1, hits, "second fetch must be served from cache")
}

func TestFetchThenExtractReturnsPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>T</title></head><body><article><p>` +
			`the article body text that is long enough for readability to treat it as content` +
			`</p></article></body></html>`))
	}))
	defer srv.Close()

	f := New(EngineLightweight, 5*time.Second, 10, time.Minute, 1<<20)
	_, text, err := f.FetchThenExtract(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotEmpty(t, text)
}

func TestCacheDoesNotStoreOversizedContent(t *testing.T) {
	ctx := context.Background()
	c := newContentCache(10, time.Minute, 10)
	c.put(ctx, "k", Result{HTML: "this is definitely more than ten bytes"})
	_, ok := c.get(ctx, "k")
	require.False(t, ok)
}

func TestCacheEvictsOldestPastMaxEntries(t *testing.T) {
	ctx := context.Background()
	c := newContentCache(2, time.Minute, 1<<20)
	c.put(ctx, "a", Result{HTML: "a"})
	c.put(ctx, "b", Result{HTML: "b"})
	c.put(ctx, "c", Result{HTML: "c"})
	_, ok := c.get(ctx, "a")
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.get(ctx, "c")
	require.True(t, ok)
}
