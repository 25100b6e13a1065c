// Package store persists documents, chunks, and model configuration in a
// single SQLite database. It is the system of record that every other
// component (lexical index, vector index, model-config registry) keys off
// of via the chunk id it assigns.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Document is a single ingested source document, deduplicated by content
// hash before any chunking happens. Immutable after creation; only an
// administrative reset removes it.
type Document struct {
	ID          int64
	Filename    string
	ContentHash string // sha256 of the raw uploaded bytes 
	ContentType string // "text" or "pdf"
	BlobPath    string // path under the raw blob directory
	CreatedAt   time.Time
}

// Chunk is a retrievable unit of a document's text. ID is the single key
// shared by the lexical index, the vector index, and citations in answers.
// Metadata always carries at least "chunk_index" and "filename" .
type Chunk struct {
	ID         int64
	DocumentID int64
	Ordinal    int // position of this chunk within its document, 0-based (== metadata["chunk_index"])
	Content    string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Filename returns the owning document's filename out of chunk metadata,
// falling back to empty string if it was never set.
func (c *Chunk) Filename() string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata["filename"]
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]string, error) {
	if s == "" {
		return map[string]string{}, nil
	}
	m := map[string]string{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ErrDimensionMismatch indicates a vector does not match the index's fixed
// embedding dimension, almost always because the embedding model changed
// without resetting the vector index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: index expects %d, got %d", e.Expected, e.Got)
}

// ErrDuplicateHash is returned by SaveDocument when a document with the
// same content hash already exists. The caller should treat this as a
// successful no-op, not a failure (spec's DuplicateHash error kind).
type ErrDuplicateHash struct {
	ContentHash string
	ExistingID  int64
}

func (e ErrDuplicateHash) Error() string {
	return fmt.Sprintf("document with content hash %s already ingested as document %d", e.ContentHash, e.ExistingID)
}

// Stats summarizes the chunk store's current contents for the /stats
// endpoint and the `stats` CLI subcommand.
type Stats struct {
	DocumentCount int
	ChunkCount    int
	OldestDoc     time.Time
	NewestDoc     time.Time
}

// Store is the persistence interface for C1. A single SQLite-backed
// implementation (SQLiteStore) is provided; the interface exists so
// retrieval/answer/ingest code can be tested against an in-memory fake.
type Store interface {
	// SaveDocument inserts a document and returns it with ID populated.
	// Returns ErrDuplicateHash (and the existing document) if the content
	// hash is already present.
	SaveDocument(ctx context.Context, doc *Document) (*Document, error)
	GetDocument(ctx context.Context, id int64) (*Document, error)
	FindDocumentByHash(ctx context.Context, contentHash string) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)

	// SaveChunks inserts chunks for a document and populates their IDs in
	// order. Chunk IDs are monotonically increasing across the whole store.
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id int64) (*Chunk, error)
	GetChunks(ctx context.Context, ids []int64) ([]*Chunk, error)
	ChunksByDocument(ctx context.Context, documentID int64) ([]*Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID int64) error

	// LogQuery records one query invocation for telemetry.
	LogQuery(ctx context.Context, rec *QueryLogEntry) error

	// AppendChatMessage appends one turn to a session's append-only log.
	// Sequence is assigned by the store, monotonic per session.
	AppendChatMessage(ctx context.Context, msg *ChatMessage) error
	// RecentChatMessages returns the last limit messages of a session in
	// chronological order (oldest first). limit <= 0 returns the whole log.
	RecentChatMessages(ctx context.Context, sessionID string, limit int) ([]*ChatMessage, error)

	// GetModelConfig returns the persisted model-config row, or nil if
	// none has ever been saved.
	GetModelConfig(ctx context.Context) (*ModelConfigRow, error)
	// SaveModelConfig persists the active chat/embed model names.
	SaveModelConfig(ctx context.Context, cfg *ModelConfigRow) error

	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// ChatMessage is one turn of a session's append-only log.
type ChatMessage struct {
	ID        int64
	SessionID string
	Role      string // "user", "assistant", or "system"
	Content   string
	Sequence  int64 // monotonic per session, assigned by the store
	CreatedAt time.Time
}

// ModelConfigRow is the persisted form of C9's active model configuration.
type ModelConfigRow struct {
	ChatModel      string
	EmbedModel     string
	EmbedDimension int
	UpdatedAt      time.Time
}

// QueryLogEntry is one row of the query_log telemetry table.
type QueryLogEntry struct {
	Query          string
	MatchedChunks  []int64
	LatencyMillis  int64
	RepairCount    int
	Timestamp      time.Time
}
