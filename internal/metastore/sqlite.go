package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"agenttic-rag/internal/model"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_url_session ON sources(url, session_id);

CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id TEXT NOT NULL UNIQUE,
	content TEXT NOT NULL,
	source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	session_id TEXT NOT NULL,
	ordinal INTEGER NOT NULL,
	variant TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id);

CREATE TABLE IF NOT EXISTS workflow_executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL UNIQUE,
	document_name TEXT NOT NULL DEFAULT '',
	source_id INTEGER NOT NULL,
	state TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS configs (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// sqliteStore is the embedded single-node backend. WAL mode and a
// generous busy-timeout are enabled at connect time so concurrent
// ingestion calls don't trip SQLITE_BUSY.
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite-backed Store at path.
func OpenSQLite(path string) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer connection avoids lock contention
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) CreateSource(ctx context.Context, src model.Source) (model.Source, error) {
	if src.CreatedAt.IsZero() {
		src.CreatedAt = clock()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (url, title, session_id, created_at) VALUES (?, ?, ?, ?)`,
		src.URL, src.Title, src.SessionID, src.CreatedAt)
	if err != nil {
		return model.Source{}, fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Source{}, fmt.Errorf("source id: %w", err)
	}
	src.ID = id
	return src, nil
}

func (s *sqliteStore) FindSourceByURL(ctx context.Context, url string, sessionIDs []string) (model.Source, bool, error) {
	if len(sessionIDs) == 0 {
		return model.Source{}, false, nil
	}
	query, args := inClauseQuery(
		`SELECT id, url, title, session_id, created_at FROM sources WHERE url = ? AND session_id IN (%s) ORDER BY id DESC LIMIT 1`,
		url, sessionIDs)
	row := s.db.QueryRowContext(ctx, query, args...)
	return scanSource(row)
}

func (s *sqliteStore) GetSource(ctx context.Context, id int64) (model.Source, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, url, title, session_id, created_at FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

func (s *sqliteStore) ListSourcesBySession(ctx context.Context, sessionIDs []string) ([]model.Source, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	query, args := inClauseQuery(`SELECT id, url, title, session_id, created_at FROM sources WHERE session_id IN (%s) ORDER BY id`, "", sessionIDs)
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *sqliteStore) DeleteSource(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) InsertChunks(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (chunk_id, content, source_id, session_id, ordinal, variant) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET content=excluded.content`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChunkID, c.Content, c.SourceID, c.SessionID, c.Ordinal, string(c.Variant)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListChunksBySource(ctx context.Context, sourceID int64) ([]model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chunk_id, content, source_id, session_id, ordinal, variant FROM chunks WHERE source_id = ? ORDER BY variant, ordinal`, sourceID)
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

func (s *sqliteStore) CountChunksBySource(ctx context.Context, sourceID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE source_id = ?`, sourceID).Scan(&n)
	return n, err
}

func (s *sqliteStore) CreateWorkflowExecution(ctx context.Context, we model.WorkflowExecution) error {
	now := clock()
	if we.CreatedAt.IsZero() {
		we.CreatedAt = now
	}
	we.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (request_id, document_name, source_id, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		we.RequestID, we.DocumentName, we.SourceID, string(we.State), we.CreatedAt, we.UpdatedAt)
	return err
}

func (s *sqliteStore) UpdateWorkflowExecutionState(ctx context.Context, requestID string, state model.WorkflowExecutionState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_executions SET state = ?, updated_at = ? WHERE request_id = ?`,
		string(state), clock(), requestID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("workflow execution %s not found", requestID)
	}
	return nil
}

func (s *sqliteStore) GetWorkflowExecution(ctx context.Context, requestID string) (model.WorkflowExecution, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request_id, document_name, source_id, state, created_at, updated_at FROM workflow_executions WHERE request_id = ?`, requestID)
	var we model.WorkflowExecution
	var state string
	if err := row.Scan(&we.ID, &we.RequestID, &we.DocumentName, &we.SourceID, &state, &we.CreatedAt, &we.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.WorkflowExecution{}, false, nil
		}
		return model.WorkflowExecution{}, false, err
	}
	we.State = model.WorkflowExecutionState(state)
	return we, true, nil
}

func (s *sqliteStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM configs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return v, err == nil, err
}

func (s *sqliteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO configs (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func scanSource(row *sql.Row) (model.Source, bool, error) {
	var src model.Source
	if err := row.Scan(&src.ID, &src.URL, &src.Title, &src.SessionID, &src.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Source{}, false, nil
		}
		return model.Source{}, false, err
	}
	return src, true, nil
}

// inClauseQuery builds a `?`-placeholder IN clause for a variable-length
// string slice, appended after any fixed leading args.
func inClauseQuery(format string, leadingArg string, values []string) (string, []any) {
	placeholders := ""
	args := make([]any, 0, len(values)+1)
	if leadingArg != "" {
		args = append(args, leadingArg)
	}
	for i, v := range values {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, v)
	}
	return fmt.Sprintf(format, placeholders), args
}
