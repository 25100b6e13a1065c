// Package lexical implements the full-text index over chunk bodies. Two
// interchangeable backends are provided (SQLite FTS5 and Bleve), selected
// by configuration; both are normalized at this package's boundary to the
// "smaller is better" BM25 convention so callers never have to know which
// one is active.
package lexical

import "context"

// Entry is one chunk queued for indexing: the chunk id shared with the
// chunk store and vector index, and its raw text (tokenization happens
// inside the backend).
type Entry struct {
	ChunkID int64
	Text    string
}

// Result is one hit from Match, ordered ascending by Score (smaller is
// better, the canonical BM25 sign convention).
type Result struct {
	ChunkID int64
	Score   float64
}

// Index is the lexical backend interface. Implementations must keep a 1:1
// mapping from chunk id to indexed entry: Index(entries) is upsert-by-chunk-id.
type Index interface {
	// Index adds or replaces entries. Called once per document's chunks,
	// after the chunk store insert. The two writes are separate: a failure
	// here leaves the chunks stored without lexical entries.
	Index(ctx context.Context, entries []Entry) error

	// Match runs a pre-built match expression and returns up to k results
	// ordered ascending by score. An empty expression (after
	// preprocessing) returns an empty, non-error result.
	Match(ctx context.Context, expr string, k int) ([]Result, error)

	// Delete removes entries by chunk id (used by administrative reset).
	Delete(ctx context.Context, chunkIDs []int64) error

	// Count returns the number of indexed entries, for /stats.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Backend names selectable via configuration.
const (
	BackendSQLite = "sqlite"
	BackendBleve  = "bleve"
)
