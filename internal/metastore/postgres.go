package metastore

import (
	"context"
	"errors"
	"fmt"

	"agenttic-rag/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sources (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_url_session ON sources(url, session_id);

CREATE TABLE IF NOT EXISTS chunks (
	id BIGSERIAL PRIMARY KEY,
	chunk_id TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	source_id BIGINT NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	session_id TEXT NOT NULL,
	ordinal INT NOT NULL,
	variant TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT NOT NULL UNIQUE,
	document_name TEXT NOT NULL DEFAULT '',
	source_id BIGINT NOT NULL,
	state TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS configs (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// postgresStore is the primary multi-node backend, grounded on
// internal/persistence/databases pgxpool wiring.
type postgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pgx pool to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) CreateSource(ctx context.Context, src model.Source) (model.Source, error) {
	if src.CreatedAt.IsZero() {
		src.CreatedAt = clock()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sources (url, title, session_id, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		src.URL, src.Title, src.SessionID, src.CreatedAt).Scan(&src.ID)
	if err != nil {
		return model.Source{}, fmt.Errorf("insert source: %w", err)
	}
	return src, nil
}

func (s *postgresStore) FindSourceByURL(ctx context.Context, url string, sessionIDs []string) (model.Source, bool, error) {
	if len(sessionIDs) == 0 {
		return model.Source{}, false, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, url, title, session_id, created_at FROM sources WHERE url = $1 AND session_id = ANY($2) ORDER BY id DESC LIMIT 1`,
		url, sessionIDs)
	return scanSourcePG(row)
}

func (s *postgresStore) GetSource(ctx context.Context, id int64) (model.Source, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, url, title, session_id, created_at FROM sources WHERE id = $1`, id)
	return scanSourcePG(row)
}

func (s *postgresStore) ListSourcesBySession(ctx context.Context, sessionIDs []string) ([]model.Source, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, title, session_id, created_at FROM sources WHERE session_id = ANY($1) ORDER BY id`, sessionIDs)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	var out []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.URL, &src.Title, &src.SessionID, &src.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *postgresStore) DeleteSource(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	return err
}

// InsertChunks opens one short transaction: insert all rows, commit. The
// caller issues embedding/vector-store calls only after this returns.
func (s *postgresStore) InsertChunks(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	for _, c := range chunks {
		_, err := tx.Exec(ctx,
			`INSERT INTO chunks (chunk_id, content, source_id, session_id, ordinal, variant) VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (chunk_id) DO UPDATE SET content = excluded.content`,
			c.ChunkID, c.Content, c.SourceID, c.SessionID, c.Ordinal, string(c.Variant))
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *postgresStore) ListChunksBySource(ctx context.Context, sourceID int64) ([]model.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chunk_id, content, source_id, session_id, ordinal, variant FROM chunks WHERE source_id = $1 ORDER BY variant, ordinal`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()
	var out []model.Chunk
	for rows.Next() {
		var c model.Chunk
		var variant string
		if err := rows.Scan(&c.ID, &c.ChunkID, &c.Content, &c.SourceID, &c.SessionID, &c.Ordinal, &variant); err != nil {
			return nil, err
		}
		c.Variant = model.ChunkVariant(variant)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *postgresStore) CountChunksBySource(ctx context.Context, sourceID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE source_id = $1`, sourceID).Scan(&n)
	return n, err
}

func (s *postgresStore) CreateWorkflowExecution(ctx context.Context, we model.WorkflowExecution) error {
	now := clock()
	if we.CreatedAt.IsZero() {
		we.CreatedAt = now
	}
	we.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_executions (request_id, document_name, source_id, state, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		we.RequestID, we.DocumentName, we.SourceID, string(we.State), we.CreatedAt, we.UpdatedAt)
	return err
}

func (s *postgresStore) UpdateWorkflowExecutionState(ctx context.Context, requestID string, state model.WorkflowExecutionState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflow_executions SET state = $1, updated_at = $2 WHERE request_id = $3`,
		string(state), clock(), requestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow execution %s not found", requestID)
	}
	return nil
}

func (s *postgresStore) GetWorkflowExecution(ctx context.Context, requestID string) (model.WorkflowExecution, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, request_id, document_name, source_id, state, created_at, updated_at FROM workflow_executions WHERE request_id = $1`, requestID)
	var we model.WorkflowExecution
	var state string
	if err := row.Scan(&we.ID, &we.RequestID, &we.DocumentName, &we.SourceID, &state, &we.CreatedAt, &we.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.WorkflowExecution{}, false, nil
		}
		return model.WorkflowExecution{}, false, err
	}
	we.State = model.WorkflowExecutionState(state)
	return we, true, nil
}

func (s *postgresStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM configs WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	return v, err == nil, err
}

func (s *postgresStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO configs (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanSourcePG(row pgx.Row) (model.Source, bool, error) {
	var src model.Source
	if err := row.Scan(&src.ID, &src.URL, &src.Title, &src.SessionID, &src.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Source{}, false, nil
		}
		return model.Source{}, false, err
	}
	return src, true, nil
}
