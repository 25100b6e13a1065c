package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/embed"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/lexical"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/store"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/vector"
)

// ContentType distinguishes the text-decode path from the PDF-extraction
// seam. Only ContentTypeText has a built-in extractor; ContentTypePDF
// requires a TextExtractor to be configured, since no PDF library is part
// of this module's dependency set.
type ContentType string

const (
	ContentTypeText ContentType = "text"
	ContentTypePDF  ContentType = "pdf"
)

// TextExtractor pulls plain text out of a non-text document (PDF, etc).
// The ingestor ships no implementation; callers inject one when they need
// to ingest non-text-already documents. Leaving it nil makes PDF ingestion
// fail with a clear configuration error rather than silently mis-decoding
// bytes as UTF-8.
type TextExtractor func(ctx context.Context, raw []byte) (string, error)

// File is one document submitted for ingestion.
type File struct {
	Filename    string
	Content     []byte
	ContentType ContentType
}

// Options controls chunk geometry and storage paths.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	BlobDir      string // raw document bytes are written under here, one file per content hash
}

// Summary reports what Ingest actually did.
type Summary struct {
	DocumentsAdded int
	ChunksAdded    int
	VectorsAdded   int
	Skipped        []SkippedFile
}

// SkippedFile names a file that was not ingested and why (duplicate
// content, unreadable, extraction failure).
type SkippedFile struct {
	Filename string
	Reason   string
}

// VectorIndexOpener lazily opens (or returns the already-open) vector
// index once the embedding dimension is known. Ingest cannot open the
// index itself at construction time, since the dimension depends on
// whichever embed model is currently active.
type VectorIndexOpener func(dimension int) (vector.Index, error)

// Ingestor turns raw files into stored documents, chunks, lexical
// entries, and vectors.
type Ingestor struct {
	store     store.Store
	lexical   lexical.Index
	openVec   VectorIndexOpener
	embedder  embed.Embedder
	extractor TextExtractor
	opts      Options
}

// New constructs an Ingestor. embedder and openVec are resolved by the
// caller from the current modelconfig.Registry snapshot at call time, so
// an in-flight ingestion keeps using the embedder it started with even if
// the active model changes mid-run.
func New(st store.Store, lex lexical.Index, openVec VectorIndexOpener, embedder embed.Embedder, extractor TextExtractor, opts Options) *Ingestor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1500
	}
	if opts.ChunkOverlap <= 0 {
		opts.ChunkOverlap = 200
	}
	return &Ingestor{
		store:     st,
		lexical:   lex,
		openVec:   openVec,
		embedder:  embedder,
		extractor: extractor,
		opts:      opts,
	}
}

// Ingest processes the files in order. A duplicate, a file whose text
// cannot be extracted, or a file with no text is recorded in
// Summary.Skipped and does not abort the rest of the batch. A storage,
// lexical-index or embedding error stops the batch and is returned with
// the summary of the files processed so far.
func (in *Ingestor) Ingest(ctx context.Context, files []File) (*Summary, error) {
	summary := &Summary{}

	for _, f := range files {
		added, chunksAdded, vecsAdded, skip, err := in.ingestOne(ctx, f)
		if err != nil {
			return summary, err
		}
		if skip != nil {
			summary.Skipped = append(summary.Skipped, *skip)
			continue
		}
		if added {
			summary.DocumentsAdded++
		}
		summary.ChunksAdded += chunksAdded
		summary.VectorsAdded += vecsAdded
	}

	return summary, nil
}

func (in *Ingestor) ingestOne(ctx context.Context, f File) (added bool, chunksAdded, vectorsAdded int, skip *SkippedFile, err error) {
	text, err := in.extractText(ctx, f)
	if err != nil {
		return false, 0, 0, &SkippedFile{Filename: f.Filename, Reason: err.Error()}, nil
	}
	if len(text) == 0 {
		return false, 0, 0, &SkippedFile{Filename: f.Filename, Reason: "no extractable text"}, nil
	}

	hash := contentHash(f.Content)
	blobPath, err := in.writeBlob(hash, f.Content)
	if err != nil {
		return false, 0, 0, nil, rerrors.IOError(fmt.Sprintf("writing blob for %s", f.Filename), err)
	}

	doc := &store.Document{
		Filename:    f.Filename,
		ContentHash: hash,
		ContentType: string(f.ContentType),
		BlobPath:    blobPath,
		CreatedAt:   time.Now(),
	}
	saved, err := in.store.SaveDocument(ctx, doc)
	var dup store.ErrDuplicateHash
	if errors.As(err, &dup) {
		return false, 0, 0, &SkippedFile{Filename: f.Filename, Reason: "duplicate content, already ingested as document " + fmt.Sprint(dup.ExistingID)}, nil
	}
	if err != nil {
		return false, 0, 0, nil, err
	}

	pieces := SplitText(text, in.opts.ChunkSize, in.opts.ChunkOverlap)
	if len(pieces) == 0 {
		return true, 0, 0, nil, nil
	}

	chunks := make([]*store.Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, &store.Chunk{
			DocumentID: saved.ID,
			Ordinal:    i,
			Content:    p,
			CreatedAt:  time.Now(),
		})
	}
	if err := in.store.SaveChunks(ctx, chunks); err != nil {
		return true, 0, 0, nil, err
	}

	entries := make([]lexical.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = lexical.Entry{ChunkID: c.ID, Text: c.Content}
	}
	if err := in.lexical.Index(ctx, entries); err != nil {
		return true, len(chunks), 0, nil, err
	}

	vecsAdded, err := in.embedAndIndex(ctx, chunks)
	if err != nil {
		return true, len(chunks), vecsAdded, nil, err
	}

	return true, len(chunks), vecsAdded, nil, nil
}

func (in *Ingestor) embedAndIndex(ctx context.Context, chunks []*store.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vecs, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, rerrors.TransportFailure("embedding chunks", err)
	}

	idx, err := in.openVec(in.embedder.Dimensions())
	if err != nil {
		return 0, err
	}

	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	if err := idx.Add(ctx, ids, vecs); err != nil {
		return 0, err
	}
	if err := idx.Save(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (in *Ingestor) extractText(ctx context.Context, f File) (string, error) {
	switch f.ContentType {
	case ContentTypePDF:
		if in.extractor == nil {
			return "", fmt.Errorf("no text extractor configured for PDF content")
		}
		return in.extractor(ctx, f.Content)
	default:
		return string(f.Content), nil
	}
}

func (in *Ingestor) writeBlob(hash string, content []byte) (string, error) {
	if in.opts.BlobDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(in.opts.BlobDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(in.opts.BlobDir, hash)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
