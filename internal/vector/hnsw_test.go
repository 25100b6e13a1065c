package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWIndex_AddAndSearch(t *testing.T) {
	// Given: empty vector index with 4 dimensions
	idx, err := Open(Config{Dimensions: 4})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	// And: vectors a=1, b=2, c=3 where c is close to a
	ids := []int64{1, 2, 3}
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	}

	// When: I add all vectors
	require.NoError(t, idx.Add(context.Background(), ids, vectors))

	// And: I search for query [1,0,0,0] with k=2
	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	// Then: chunk 1 (exact match) sorts before chunk 3 (near match)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ChunkID)
	assert.Equal(t, int64(3), results[1].ChunkID)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestHNSWIndex_Delete(t *testing.T) {
	idx, err := Open(Config{Dimensions: 4})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Add(context.Background(), []int64{1, 2}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))

	require.NoError(t, idx.Delete(context.Background(), []int64{1}))
	assert.Equal(t, 1, idx.Count())

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, int64(1), r.ChunkID)
	}
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx, err := Open(Config{Dimensions: 4})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	err = idx.Add(context.Background(), []int64{1}, [][]float32{{1, 0, 0}})
	require.Error(t, err)
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 3, mismatch.Got)

	_, err = idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.ErrorAs(t, err, &mismatch)
}

func TestHNSWIndex_SaveAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")

	idx, err := Open(Config{Path: path, Dimensions: 4})
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), []int64{7, 8}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))
	require.NoError(t, idx.Save())
	require.NoError(t, idx.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	reopened, err := Open(Config{Path: path, Dimensions: 4})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, 2, reopened.Count())
	results, err := reopened.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(7), results[0].ChunkID)
}

func TestHNSWIndex_EmptySearch(t *testing.T) {
	idx, err := Open(Config{Dimensions: 4})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
