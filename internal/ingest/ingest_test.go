package ingest

import (
	"testing"

	"agenttic-rag/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextChunksOnlyFiltersHTMLVariant(t *testing.T) {
	chunks := []model.Chunk{
		{ChunkID: "a", Variant: model.VariantText},
		{ChunkID: "b", Variant: model.VariantHTML},
		{ChunkID: "c", Variant: model.VariantText},
	}
	out := textChunksOnly(chunks)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ChunkID)
	assert.Equal(t, "c", out[1].ChunkID)
}

func TestFallbackNamesDerivesFromURL(t *testing.T) {
	name, coll := fallbackNames("https://docs.example.com/guide/intro")
	assert.Equal(t, "https://docs.example.com/guide/intro", name)
	assert.Contains(t, coll, "collection_")
}

func TestHexDigestIsDeterministicAndBounded(t *testing.T) {
	a := hexDigest("https://example.com/a")
	b := hexDigest("https://example.com/a")
	c := hexDigest("https://example.com/b")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestKnownIngestSessionIDsPutsCallerFirst(t *testing.T) {
	p := &Pipeline{}
	ids := p.knownIngestSessionIDs(Request{SessionID: "caller-scoped"})
	require.NotEmpty(t, ids)
	assert.Equal(t, "caller-scoped", ids[0])
}
