package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no CGO

	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
)

// SQLiteStore implements Store over a single SQLite file shared with the
// model-config registry and the query log. Kept as a single file so a
// data directory backup is one file copy.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	content_type TEXT NOT NULL DEFAULT 'text',
	blob_path TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	ordinal INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

CREATE TABLE IF NOT EXISTS model_config (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	embed_model TEXT NOT NULL DEFAULT '',
	embed_dimension INTEGER NOT NULL DEFAULT 0,
	chat_model TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS query_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	matched_chunks TEXT NOT NULL DEFAULT '[]',
	latency_millis INTEGER NOT NULL DEFAULT 0,
	repair_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, sequence);
`

// NewSQLiteStore opens (creating if necessary) the chunk store at path.
// An empty path opens an in-memory database, used by tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, rerrors.IOError(fmt.Sprintf("creating data directory for %s", path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, rerrors.IOError("opening chunk store database", err)
	}

	// A single writer connection avoids SQLITE_BUSY under WAL; readers still
	// get concurrent access because WAL lets reads proceed during a write.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, rerrors.IOError("configuring chunk store pragmas", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, rerrors.IOError("migrating chunk store schema", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// HashContent computes the content-hash key used for ingest dedupe.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.findDocumentByHashLocked(ctx, doc.ContentHash); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, ErrDuplicateHash{ContentHash: doc.ContentHash, ExistingID: existing.ID}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (filename, content_hash, content_type, blob_path, created_at) VALUES (?, ?, ?, ?, ?)`,
		doc.Filename, doc.ContentHash, doc.ContentType, doc.BlobPath, nowOrDefault(doc.CreatedAt))
	if err != nil {
		return nil, rerrors.IOError("inserting document", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, rerrors.IOError("reading document id", err)
	}
	doc.ID = id
	return doc, nil
}

func (s *SQLiteStore) findDocumentByHashLocked(ctx context.Context, hash string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, content_hash, content_type, blob_path, created_at FROM documents WHERE content_hash = ?`, hash)
	return scanDocument(row)
}

func (s *SQLiteStore) FindDocumentByHash(ctx context.Context, contentHash string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findDocumentByHashLocked(ctx, contentHash)
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, content_hash, content_type, blob_path, created_at FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, content_hash, content_type, blob_path, created_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, rerrors.IOError("listing documents", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d := &Document{}
		if err := rows.Scan(&d.ID, &d.Filename, &d.ContentHash, &d.ContentType, &d.BlobPath, &d.CreatedAt); err != nil {
			return nil, rerrors.IOError("scanning document row", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func scanDocument(row *sql.Row) (*Document, error) {
	d := &Document{}
	err := row.Scan(&d.ID, &d.Filename, &d.ContentHash, &d.ContentType, &d.BlobPath, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, rerrors.IOError("scanning document", err)
	}
	return d, nil
}

func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rerrors.IOError("starting chunk insert transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (document_id, ordinal, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return rerrors.IOError("preparing chunk insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta, err := encodeMetadata(c.Metadata)
		if err != nil {
			return rerrors.InternalError("marshaling chunk metadata", err)
		}
		res, err := stmt.ExecContext(ctx, c.DocumentID, c.Ordinal, c.Content, meta, nowOrDefault(c.CreatedAt))
		if err != nil {
			return rerrors.IOError("inserting chunk", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return rerrors.IOError("reading chunk id", err)
		}
		c.ID = id
	}

	if err := tx.Commit(); err != nil {
		return rerrors.IOError("committing chunk insert", err)
	}
	return nil
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	chunks, err := s.GetChunks(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []int64) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT id, document_id, ordinal, content, metadata, created_at FROM chunks WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, rerrors.IOError("fetching chunks", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Chunk, len(ids))
	for rows.Next() {
		c := &Chunk{}
		var meta string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content, &meta, &c.CreatedAt); err != nil {
			return nil, rerrors.IOError("scanning chunk row", err)
		}
		if c.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, rerrors.InternalError("unmarshaling chunk metadata", err)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// preserve caller's requested order; skip ids that no longer exist
	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *SQLiteStore) ChunksByDocument(ctx context.Context, documentID int64) ([]*Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, ordinal, content, metadata, created_at FROM chunks WHERE document_id = ? ORDER BY ordinal`,
		documentID)
	if err != nil {
		return nil, rerrors.IOError("fetching document chunks", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c := &Chunk{}
		var meta string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content, &meta, &c.CreatedAt); err != nil {
			return nil, rerrors.IOError("scanning chunk row", err)
		}
		if c.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, rerrors.InternalError("unmarshaling chunk metadata", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) DeleteChunksByDocument(ctx context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return rerrors.IOError("deleting document chunks", err)
	}
	return nil
}

func (s *SQLiteStore) LogQuery(ctx context.Context, rec *QueryLogEntry) error {
	matched, err := json.Marshal(rec.MatchedChunks)
	if err != nil {
		return rerrors.InternalError("marshaling matched chunk ids", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO query_log (query, matched_chunks, latency_millis, repair_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Query, string(matched), rec.LatencyMillis, rec.RepairCount, nowOrDefault(rec.Timestamp))
	if err != nil {
		return rerrors.IOError("inserting query log entry", err)
	}
	return nil
}

func (s *SQLiteStore) AppendChatMessage(ctx context.Context, msg *ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM chat_messages WHERE session_id = ?`, msg.SessionID)
	var seq int64
	if err := row.Scan(&seq); err != nil {
		return rerrors.IOError("allocating chat message sequence", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, role, content, sequence, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, seq, nowOrDefault(msg.CreatedAt))
	if err != nil {
		return rerrors.IOError("inserting chat message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return rerrors.IOError("reading chat message id", err)
	}
	msg.ID = id
	msg.Sequence = seq
	return nil
}

func (s *SQLiteStore) RecentChatMessages(ctx context.Context, sessionID string, limit int) ([]*ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, session_id, role, content, sequence, created_at FROM chat_messages WHERE session_id = ? ORDER BY sequence DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, rerrors.IOError("fetching chat messages", err)
	}
	defer rows.Close()

	var msgs []*ChatMessage
	for rows.Next() {
		m := &ChatMessage{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, rerrors.IOError("scanning chat message row", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse so the result is oldest-first (we queried DESC to get the LIMIT
	// most recent rows, but callers want chronological order)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *SQLiteStore) GetModelConfig(ctx context.Context) (*ModelConfigRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT chat_model, embed_model, embed_dimension, updated_at FROM model_config WHERE id = 1`)
	cfg := &ModelConfigRow{}
	err := row.Scan(&cfg.ChatModel, &cfg.EmbedModel, &cfg.EmbedDimension, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, rerrors.IOError("reading model config", err)
	}
	return cfg, nil
}

func (s *SQLiteStore) SaveModelConfig(ctx context.Context, cfg *ModelConfigRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_config (id, chat_model, embed_model, embed_dimension, updated_at) VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET chat_model = excluded.chat_model, embed_model = excluded.embed_model,
		 	embed_dimension = excluded.embed_dimension, updated_at = excluded.updated_at`,
		cfg.ChatModel, cfg.EmbedModel, cfg.EmbedDimension, nowOrDefault(cfg.UpdatedAt))
	if err != nil {
		return rerrors.IOError("saving model config", err)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &Stats{}
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`)
	if err := row.Scan(&st.DocumentCount); err != nil {
		return nil, rerrors.IOError("counting documents", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`)
	if err := row.Scan(&st.ChunkCount); err != nil {
		return nil, rerrors.IOError("counting chunks", err)
	}

	var oldest, newest sql.NullTime
	row = s.db.QueryRowContext(ctx, `SELECT MIN(created_at), MAX(created_at) FROM documents`)
	if err := row.Scan(&oldest, &newest); err != nil {
		return nil, rerrors.IOError("reading document time range", err)
	}
	if oldest.Valid {
		st.OldestDoc = oldest.Time
	}
	if newest.Valid {
		st.NewestDoc = newest.Time
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// DB exposes the underlying connection so C9 (model config) and telemetry
// can share the same file without a second sqlite.Open call.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func nowOrDefault(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
