// Package vector implements C3, the approximate nearest-neighbor index over
// chunk embeddings. Chunk id is the key directly (no string<->key
// indirection layer), since it is already the shared key minted by C1.
package vector

import (
	"context"
	"fmt"
)

// Result is one hit from Search, ordered ascending by Distance (smaller is
// better), matching the convention shared with the lexical index so C7's
// fusion code never special-cases either side.
type Result struct {
	ChunkID  int64
	Distance float32
}

// Index is C3's interface.
type Index interface {
	// Add inserts or replaces vectors for the given chunk ids. All vectors
	// must match Dimensions(); a mismatch returns ErrDimensionMismatch.
	Add(ctx context.Context, ids []int64, vectors [][]float32) error

	// Search returns up to k nearest neighbors of query, ascending by
	// distance. Returns ErrDimensionMismatch if query doesn't match
	// Dimensions().
	Search(ctx context.Context, query []float32, k int) ([]Result, error)

	// Delete removes vectors by chunk id.
	Delete(ctx context.Context, ids []int64) error

	Dimensions() int
	Count() int

	// Save persists the index to its configured path, atomically.
	Save() error
	Close() error
}

// ErrDimensionMismatch indicates a vector does not match the index's fixed
// embedding dimension, almost always because the embedding model changed
// without a reset .
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: index expects %d, got %d", e.Expected, e.Got)
}

// Metric selects the distance function.
type Metric string

const (
	MetricCosine    Metric = "cos"
	MetricEuclidean Metric = "l2"
)

// Config configures a new or reopened Index.
type Config struct {
	Path       string // on-disk path; empty opens an in-memory index (tests)
	Dimensions int
	Metric     Metric
	M          int // HNSW graph degree
	EfSearch   int
}
