// Package chunk implements C2: tokenizing text with a BPE-compatible
// encoder and splitting it into fixed-size, fixed-overlap windows. Two
// variants are produced during ingestion — a small "text" variant for
// retrieval, and a larger "html" variant for the sub-document discovery
// webhook — both driven through the same Splitter.
package chunk

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Splitter tokenizes with cl100k_base and windows the token stream.
// Deterministic given the same input and parameters.
type Splitter struct {
	mu sync.Mutex
	encoding *tiktoken.Tiktoken
}

// NewSplitter loads the cl100k_base BPE encoding used across OpenAI-
// compatible embedding and chat models.
func NewSplitter() (*Splitter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding: %w", err)
	}
	return &Splitter{encoding: enc}, nil
}

// Chunk is one ordered, token-bounded window of the source text.
type Chunk struct {
	Ordinal int
	Content string
}

// Split windows text into chunks of at most size tokens, with overlap
// tokens shared between consecutive windows. Returns an ordered,
// zero-indexed list; empty input yields no chunks.
func (s *Splitter) Split(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if text == "" {
		return nil, nil
	}

	s.mu.Lock()
	tokens := s.encoding.Encode(text, nil, nil)
	s.mu.Unlock()

	if len(tokens) == 0 {
		return nil, nil
	}

	stride := size - overlap
	var chunks []Chunk
	ordinal := 0
	for start := 0; start < len(tokens); start += stride {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		s.mu.Lock()
		content := s.encoding.Decode(tokens[start:end])
		s.mu.Unlock()
		chunks = append(chunks, Chunk{Ordinal: ordinal, Content: content})
		ordinal++
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}

// CountTokens reports the BPE token length of text, used by the reranker
// (C5) and tool-argument budgeting.
func (s *Splitter) CountTokens(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.encoding.Encode(text, nil, nil))
}
