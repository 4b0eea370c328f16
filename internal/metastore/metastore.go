// Package metastore implements C6: the relational metadata store for
// Source, Chunk, and WorkflowExecution records. Two backends are
// supported — Postgres (primary, via pgx) and an embedded SQLite file
// (via modernc.org/sqlite) for single-node deployments — selected by DSN
// scheme, grounded on the internal/persistence/databases pool
// and factory pattern.
package metastore

import (
	"context"
	"time"

	"agenttic-rag/internal/model"
)

// Store is the C6 interface: short, ACID transactions; chunks cascade-
// delete with their source; embedding/vector work happens after commit.
type Store interface {
	// CreateSource inserts a Source and returns it with its assigned ID.
	CreateSource(ctx context.Context, src model.Source) (model.Source, error)
	// FindSourceByURL looks up an existing Source for idempotent re-ingest
	// short-circuiting.
	FindSourceByURL(ctx context.Context, url string, sessionIDs []string) (model.Source, bool, error)
	GetSource(ctx context.Context, id int64) (model.Source, bool, error)
	ListSourcesBySession(ctx context.Context, sessionIDs []string) ([]model.Source, error)
	DeleteSource(ctx context.Context, id int64) error

	// InsertChunks persists chunk rows for a source in one transaction.
	InsertChunks(ctx context.Context, chunks []model.Chunk) error
	ListChunksBySource(ctx context.Context, sourceID int64) ([]model.Chunk, error)
	CountChunksBySource(ctx context.Context, sourceID int64) (int, error)

	// CreateWorkflowExecution records an outstanding sub-document discovery
	// request keyed by request_id.
	CreateWorkflowExecution(ctx context.Context, we model.WorkflowExecution) error
	UpdateWorkflowExecutionState(ctx context.Context, requestID string, state model.WorkflowExecutionState) error
	GetWorkflowExecution(ctx context.Context, requestID string) (model.WorkflowExecution, bool, error)

	// Config is a small persisted key/value "configs" table, used for
	// values that must survive restarts outside the YAML/env
	// configuration layer (e.g. operator overrides applied at runtime).
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error

	Close() error
}

// clock is overridable in tests; production uses time.Now.
var clock = time.Now
