// Package app is the composition root: it wires the chunk store,
// lexical index, vector index, embedder/chat clients, ingestor,
// retriever, answer assembler, and model registry into the single
// object the HTTP API and CLI both drive.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/answer"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/chatclient"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/config"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/embed"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/ingest"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/lexical"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/modelconfig"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/retrieve"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/store"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/vector"
)

// App holds every long-lived component and the lazy vector-index opener
// the dimension-dependent pieces (ingest, retrieve) share.
type App struct {
	Cfg   *config.Config
	Store store.Store
	Lex   lexical.Index

	Models   *modelconfig.Registry
	Retrieve *retrieve.Engine
	Answer   *answer.Assembler

	// Extractor pulls text out of non-text uploads (PDF, etc). Nil by
	// default: no PDF library is part of this module's dependency set, so
	// PDF ingestion fails with a clear configuration error until a caller
	// sets one.
	Extractor ingest.TextExtractor

	ingestOpts ingest.Options
	dataDir    string

	mu       sync.Mutex
	vecIdx   vector.Index
	vecDim   int
}

// New opens (creating if absent) the data directory and wires every
// component together per cfg. Callers must call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, rerrors.IOError("creating data directory", err)
	}
	blobDir := filepath.Join(dataDir, "blobs")
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, rerrors.IOError("creating blob directory", err)
	}

	st, err := store.NewSQLiteStore(filepath.Join(dataDir, "store.db"))
	if err != nil {
		return nil, rerrors.IOError("opening chunk store", err)
	}

	lex, err := lexical.New(dataDir, cfg.Search.BM25Backend)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{Cfg: cfg, Store: st, Lex: lex, dataDir: dataDir}

	embedFactory := func(ctx context.Context, model string) (embed.Embedder, error) {
		return embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embeddings.Provider), model)
	}
	chatTimeout, err := time.ParseDuration(cfg.Chat.Timeout)
	if err != nil {
		chatTimeout = chatclient.DefaultTimeout
	}
	chatFactory := func(model string) modelconfig.ChatClient {
		return chatclient.New(chatclient.Config{
			Host:       cfg.Chat.Host,
			Model:      model,
			Timeout:    chatTimeout,
			MaxRetries: cfg.Chat.MaxRetries,
		})
	}

	models, err := modelconfig.New(ctx, st, chatFactory, embedFactory, a.currentVectorDim, cfg.Chat.Model, cfg.Embeddings.Model)
	if err != nil {
		lex.Close()
		st.Close()
		return nil, err
	}
	a.Models = models

	a.ingestOpts = ingest.Options{
		ChunkSize:    cfg.Search.ChunkSize,
		ChunkOverlap: cfg.Search.ChunkOverlap,
		BlobDir:      blobDir,
	}
	a.Retrieve = retrieve.New(st, lex)
	a.Answer = answer.New(st, a.Retrieve)

	return a, nil
}

// openVectorIndex lazily opens (or reopens at a new dimension) the HNSW
// vector index. It is the single VectorIndexOpener shared by ingest and
// retrieve, satisfying the single-index-instance invariant.
func (a *App) openVectorIndex(dimension int) (vector.Index, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.vecIdx != nil && a.vecDim == dimension {
		return a.vecIdx, nil
	}
	if a.vecIdx != nil {
		a.vecIdx.Close()
		a.vecIdx = nil
	}

	idx, err := vector.Open(vector.Config{
		Path:       filepath.Join(a.dataDir, "vectors.hnsw"),
		Dimensions: dimension,
		Metric:     vector.MetricCosine,
		M:          16,
		EfSearch:   64,
	})
	if err != nil {
		return nil, err
	}
	a.vecIdx = idx
	a.vecDim = dimension
	return idx, nil
}

// currentVectorDim reports the dimension of the currently open vector
// index, or 0 if none is open yet, for modelconfig.Registry's
// dimension-mismatch detection .
func (a *App) currentVectorDim() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.vecIdx == nil {
		return 0
	}
	return a.vecIdx.Dimensions()
}

// IngestFiles runs C6 against the embedder that is active right now. The
// ingestor is built fresh per call rather than cached, so a model swap
// between two ingest calls never leaves one bound to a stale embedder
// (the RCU discipline, same reasoning as Retrieve/Answer).
func (a *App) IngestFiles(ctx context.Context, files []ingest.File) (*ingest.Summary, error) {
	ing := ingest.New(a.Store, a.Lex, a.openVectorIndex, a.Embedder(), a.Extractor, a.ingestOpts)
	return ing.Ingest(ctx, files)
}

// Embedder returns the active embedder snapshot, for callers (httpapi,
// CLI) that need to pass one into Retrieve/Answer explicitly.
func (a *App) Embedder() embed.Embedder {
	return a.Models.Current().Embed
}

// ChatClient returns the active chat client snapshot.
func (a *App) ChatClient() modelconfig.ChatClient {
	return a.Models.Current().Chat
}

// VectorStats reports the currently open vector index's shape, for
// /stats. exists is false until the first document has been embedded.
func (a *App) VectorStats() (exists bool, count int, dim int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.vecIdx == nil {
		return false, 0, 0
	}
	return true, a.vecIdx.Count(), a.vecIdx.Dimensions()
}

// OpenVector exposes the shared vector-index opener to the HTTP layer's
// /debug/retrieval handler.
func (a *App) OpenVector(dimension int) (vector.Index, error) {
	return a.openVectorIndex(dimension)
}

// AnswerFlags builds answer.Flags from the static config.
func (a *App) AnswerFlags() answer.Flags {
	return answer.Flags{
		MinUniqueCitations:          a.Cfg.Answer.MinUniqueCitations,
		RequireCitationPerParagraph: a.Cfg.Answer.RequireCitationPerParagraph,
		RewriteOnFail:               a.Cfg.Answer.RewriteOnFail,
		MemoryK:                     a.Cfg.Answer.MemoryK,
	}
}

// RetrieveParams builds retrieve.Params from the static config.
func (a *App) RetrieveParams() retrieve.Params {
	return retrieve.Params{
		BM25K:    a.Cfg.Answer.BM25K,
		VecK:     a.Cfg.Answer.VecK,
		FinalK:   a.Cfg.Answer.FinalK,
		BM25Mode: a.Cfg.Answer.BM25Mode,
		MaxTerms: a.Cfg.Answer.MaxTerms,
		RRFK:     a.Cfg.Search.RRFConstant,
	}
}

// Reset deletes every on-disk artifact under the data directory: chunk
// store, lexical index, vector index, and raw blobs. It does not touch
// the user's config file.
func (a *App) Reset() error {
	a.mu.Lock()
	if a.vecIdx != nil {
		a.vecIdx.Close()
		a.vecIdx = nil
		a.vecDim = 0
	}
	a.mu.Unlock()

	a.Lex.Close()
	a.Store.Close()

	entries, err := os.ReadDir(a.dataDir)
	if err != nil {
		return rerrors.IOError("reading data directory", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(a.dataDir, e.Name())); err != nil {
			return rerrors.IOError(fmt.Sprintf("removing %s", e.Name()), err)
		}
	}
	return nil
}

// DataDir returns the directory holding all on-disk state.
func (a *App) DataDir() string { return a.dataDir }

// Close releases every open handle.
func (a *App) Close() error {
	a.mu.Lock()
	if a.vecIdx != nil {
		a.vecIdx.Close()
	}
	a.mu.Unlock()
	a.Lex.Close()
	return a.Store.Close()
}
