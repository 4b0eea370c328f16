package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitDeterministic(t *testing.T) {
	s, err := NewSplitter()
	require.NoError(t, err)

	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200)
	a, err := s.Split(text, 80, 8)
	require.NoError(t, err)
	b, err := s.Split(text, 80, 8)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Greater(t, len(a), 1)

	for i, c := range a {
		require.Equal(t, i, c.Ordinal)
	}
}

func TestSplitEmptyText(t *testing.T) {
	s, err := NewSplitter()
	require.NoError(t, err)
	chunks, err := s.Split("", 800, 80)
	require.NoError(t, err)
	require.Nil(t, chunks)
}

func TestSplitTextAndHTMLVariantSizes(t *testing.T) {
	s, err := NewSplitter()
	require.NoError(t, err)

	text := strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit ", 400)
	textChunks, err := s.Split(text, 800, 80)
	require.NoError(t, err)
	htmlChunks, err := s.Split(text, 4000, 200)
	require.NoError(t, err)
	require.Greater(t, len(textChunks), len(htmlChunks))
}

func TestCountTokens(t *testing.T) {
	s, err := NewSplitter()
	require.NoError(t, err)
	require.Greater(t, s.CountTokens("hello world"), 0)
	require.Equal(t, 0, s.CountTokens(""))
}
