// Package model defines the data model shared across the ingestion,
// retrieval and orchestration pipeline.
package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Source is a logical document; it may be the owner of chunks produced by
// recursively-discovered sub-documents of the same parent-URL group (C13).
type Source struct {
	ID int64
	URL string
	Title string
	SessionID string
	CreatedAt time.Time
}

// Chunk is a retrievable text fragment. ChunkID is a stable content-addressed
// digest; see TextChunkID/HTMLChunkID.
type Chunk struct {
	ID int64
	ChunkID string
	Content string
	SourceID int64
	SessionID string
	Ordinal int
	Variant ChunkVariant
}

// ChunkVariant distinguishes the small "text" chunks used for retrieval
// from the larger "html" chunks submitted to the sub-document discovery
// webhook.
type ChunkVariant string

const (
	VariantText ChunkVariant = "text"
	VariantHTML ChunkVariant = "html"
)

// TextChunkID derives the stable chunk_id for a text-variant chunk:
// md5_hex(session_id + "|" + url + "|" + ordinal).
func TextChunkID(sessionID, url string, ordinal int) string {
	return digest(fmt.Sprintf("%s|%s|%d", sessionID, url, ordinal))
}

// HTMLChunkID derives the stable chunk_id for an html-variant chunk:
// md5_hex(session_id + "|" + url + "|html|" + ordinal).
func HTMLChunkID(sessionID, url string, ordinal int) string {
	return digest(fmt.Sprintf("%s|%s|html|%d", sessionID, url, ordinal))
}

func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// WorkflowExecutionState is the lifecycle of a sub-document discovery
// request tracked by request_id.
type WorkflowExecutionState string

const (
	WorkflowRunning WorkflowExecutionState = "running"
	WorkflowSuccess WorkflowExecutionState = "success"
	WorkflowError WorkflowExecutionState = "error"
)

// WorkflowExecution tracks an outstanding sub-document discovery request.
type WorkflowExecution struct {
	ID int64
	RequestID string
	DocumentName string
	// SourceID is the owning Source the discovery request was issued for;
	// recursion handoffs inherit it so sub-documents join the same family.
	SourceID int64
	State WorkflowExecutionState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VectorPoint is the payload persisted for each chunk's dense vector in the
// external vector store.
type VectorPoint struct {
	SourceID int64 `json:"source_id"`
	SessionID string `json:"session_id"`
	ChunkID string `json:"chunk_id"`
	Content string `json:"content"`
}
