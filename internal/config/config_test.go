package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 800, cfg.Chunking.TextChunkTokens)
	require.Equal(t, 80, cfg.Chunking.TextOverlapTokens)
	require.Equal(t, 20, cfg.Rerank.TopK)
	require.Equal(t, "auto", cfg.Tools.DefaultMode)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("EMBEDDING_MAX_CONCURRENCY", "9")
	t.Setenv("TOOL_DEFAULT_MODE", "react")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 500, cfg.Chunking.TextChunkTokens)
	require.Equal(t, 9, cfg.Embedding.Concurrency)
	require.Equal(t, "react", cfg.Tools.DefaultMode)
}

func TestStoreReloadOnlyAppliesHotFields(t *testing.T) {
	cfg := Defaults()
	cfg.HTTP.Addr = ":9999"
	store := NewStore("", cfg)

	t.Setenv("CHUNK_SIZE", "321")
	require.NoError(t, store.Reload())

	got := store.Get()
	require.Equal(t, 321, got.Chunking.TextChunkTokens)
	require.Equal(t, ":9999", got.HTTP.Addr, "non-hot field must survive reload")
}

func TestLoadReadsYAMLFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("rerank:\n  top_k: 7\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Rerank.TopK)
}
