package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
)

// HNSWIndex implements Index over github.com/coder/hnsw, keyed directly by
// chunk id (int64): since the chunk store already mints a dense int64 id
// for every chunk, there is no need for a separate string<->uint64 idMap
// layered over the graph. Lazy deletion (orphan the graph node, just
// forget it) sidesteps coder/hnsw's last-node-deletion hazard.
type HNSWIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[int64]
	cfg   Config

	live   map[int64]struct{}
	closed bool
}

var _ Index = (*HNSWIndex)(nil)

type hnswMetadata struct {
	Live   map[int64]struct{}
	Config Config
}

// Open creates a fresh index, or loads one from cfg.Path if it already
// exists on disk.
func Open(cfg Config) (*HNSWIndex, error) {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[int64]()
	switch cfg.Metric {
	case MetricEuclidean:
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	idx := &HNSWIndex{
		graph: graph,
		cfg:   cfg,
		live:  make(map[int64]struct{}),
	}

	if cfg.Path != "" {
		if _, err := os.Stat(cfg.Path); err == nil {
			if err := idx.load(); err != nil {
				return nil, err
			}
		}
	}

	return idx, nil
}

func (idx *HNSWIndex) Add(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return rerrors.ValidationError("ids and vectors length mismatch", nil)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return rerrors.InternalError("vector index is closed", nil)
	}

	for _, v := range vectors {
		if len(v) != idx.cfg.Dimensions {
			return ErrDimensionMismatch{Expected: idx.cfg.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if idx.cfg.Metric == MetricCosine {
			normalizeInPlace(vec)
		}
		idx.graph.Add(hnsw.MakeNode(id, vec))
		idx.live[id] = struct{}{}
	}

	return nil
}

func (idx *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, rerrors.InternalError("vector index is closed", nil)
	}
	if len(query) != idx.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: idx.cfg.Dimensions, Got: len(query)}
	}
	if idx.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if idx.cfg.Metric == MetricCosine {
		normalizeInPlace(q)
	}

	nodes := idx.graph.Search(q, k)
	results := make([]Result, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := idx.live[n.Key]; !ok {
			continue // lazily-deleted, orphaned graph node
		}
		results = append(results, Result{
			ChunkID:  n.Key,
			Distance: idx.graph.Distance(q, n.Value),
		})
	}
	return results, nil
}

func (idx *HNSWIndex) Delete(ctx context.Context, ids []int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return rerrors.InternalError("vector index is closed", nil)
	}
	for _, id := range ids {
		delete(idx.live, id)
	}
	return nil
}

func (idx *HNSWIndex) Dimensions() int { return idx.cfg.Dimensions }

func (idx *HNSWIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.live)
}

// Save persists the graph and the live-id set atomically (temp file +
// rename), matching the Save/saveMetadata pair.
func (idx *HNSWIndex) Save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.cfg.Path == "" {
		return nil // in-memory index, nothing to persist
	}

	if err := os.MkdirAll(filepath.Dir(idx.cfg.Path), 0o755); err != nil {
		return rerrors.IOError("creating vector index directory", err)
	}

	tmp := idx.cfg.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return rerrors.IOError("creating vector index temp file", err)
	}
	if err := idx.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return rerrors.IOError("exporting vector graph", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return rerrors.IOError("closing vector index temp file", err)
	}
	if err := os.Rename(tmp, idx.cfg.Path); err != nil {
		os.Remove(tmp)
		return rerrors.IOError("renaming vector index into place", err)
	}

	return idx.saveMetadata()
}

func (idx *HNSWIndex) saveMetadata() error {
	path := idx.cfg.Path + ".meta"
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return rerrors.IOError("creating vector index metadata temp file", err)
	}
	meta := hnswMetadata{Live: idx.live, Config: idx.cfg}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(tmp)
		return rerrors.IOError("encoding vector index metadata", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return rerrors.IOError("closing vector index metadata file", err)
	}
	return os.Rename(tmp, path)
}

func (idx *HNSWIndex) load() error {
	metaPath := idx.cfg.Path + ".meta"
	if mf, err := os.Open(metaPath); err == nil {
		defer mf.Close()
		var meta hnswMetadata
		if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
			return rerrors.IOError("decoding vector index metadata", err)
		}
		idx.live = meta.Live
		if meta.Config.Dimensions != 0 {
			idx.cfg.Dimensions = meta.Config.Dimensions
		}
	}

	f, err := os.Open(idx.cfg.Path)
	if err != nil {
		return rerrors.IOError("opening vector index file", err)
	}
	defer f.Close()

	if err := idx.graph.Import(bufio.NewReader(f)); err != nil {
		return rerrors.IOError("importing vector graph", err)
	}
	return nil
}

func (idx *HNSWIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
