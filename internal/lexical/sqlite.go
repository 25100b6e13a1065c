package lexical

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go driver, no CGO

	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
)

// SQLiteIndex implements Index over a SQLite FTS5 virtual table keyed by
// chunk id. Unlike the SQLiteBM25Index (which negates bm25() to
// present "higher is better"), the sign is left untouched: FTS5's bm25()
// is already ascending-is-better once you don't flip it, matching the design
// §4.2's canonical BM25 convention directly.
type SQLiteIndex struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ Index = (*SQLiteIndex)(nil)

const sqliteSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	chunk_id UNINDEXED,
	content,
	tokenize = 'porter unicode61'
);
CREATE TABLE IF NOT EXISTS chunks_fts_ids (
	chunk_id INTEGER PRIMARY KEY
);
`

// NewSQLiteIndex opens (creating if necessary) the FTS5 index at path. An
// empty path opens an in-memory index, used by tests.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, rerrors.IOError(fmt.Sprintf("creating directory for lexical index %s", path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, rerrors.IOError("opening lexical index database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, rerrors.IOError("configuring lexical index pragmas", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, rerrors.IOError("migrating lexical index schema", err)
	}

	return &SQLiteIndex{db: db, path: path}, nil
}

func (s *SQLiteIndex) Index(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rerrors.IOError("starting lexical index transaction", err)
	}
	defer tx.Rollback()

	del, err := tx.PrepareContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`)
	if err != nil {
		return rerrors.IOError("preparing lexical delete", err)
	}
	defer del.Close()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)`)
	if err != nil {
		return rerrors.IOError("preparing lexical insert", err)
	}
	defer ins.Close()

	idIns, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks_fts_ids (chunk_id) VALUES (?)`)
	if err != nil {
		return rerrors.IOError("preparing lexical id tracking insert", err)
	}
	defer idIns.Close()

	for _, e := range entries {
		if _, err := del.ExecContext(ctx, e.ChunkID); err != nil {
			return rerrors.IOError("deleting existing lexical entry", err)
		}
		if _, err := ins.ExecContext(ctx, e.ChunkID, e.Text); err != nil {
			return rerrors.IOError("inserting lexical entry", err)
		}
		if _, err := idIns.ExecContext(ctx, e.ChunkID); err != nil {
			return rerrors.IOError("tracking lexical entry id", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return rerrors.IOError("committing lexical index transaction", err)
	}
	return nil
}

func (s *SQLiteIndex) Match(ctx context.Context, expr string, k int) ([]Result, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT chunk_id, bm25(chunks_fts) AS score FROM chunks_fts WHERE chunks_fts MATCH ? ORDER BY score LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, expr, k)
	if err != nil {
		// FTS5 rejects malformed MATCH syntax; treat it as no results rather
		// than surfacing an index-internals error to the caller.
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, rerrors.IOError("running lexical match", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ChunkID, &r.Score); err != nil {
			return nil, rerrors.IOError("scanning lexical match row", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteIndex) Delete(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	in := strings.Join(placeholders, ",")

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM chunks_fts WHERE chunk_id IN (%s)`, in), args...); err != nil {
		return rerrors.IOError("deleting lexical entries", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM chunks_fts_ids WHERE chunk_id IN (%s)`, in), args...); err != nil {
		return rerrors.IOError("deleting lexical id tracking rows", err)
	}
	return nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks_fts_ids`).Scan(&n); err != nil {
		return 0, rerrors.IOError("counting lexical entries", err)
	}
	return n, nil
}

func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
