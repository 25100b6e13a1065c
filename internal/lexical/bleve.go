package lexical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
)

// BleveIndex implements Index using Bleve's default (prose) analyzer.
// Unlike a code-search index, this one only ever sees natural-language
// chunk text, so Bleve's standard analyzer is the right default rather
// than a code-identifier splitter. Bleve's native score is "higher is
// better"; this type negates it at the boundary so every Index
// implementation agrees on "smaller is better".
type BleveIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

var _ Index = (*BleveIndex)(nil)

// NewBleveIndex opens (creating if necessary) the index at path. An empty
// path opens an in-memory index, used by tests.
func NewBleveIndex(path string) (*BleveIndex, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, rerrors.IOError(fmt.Sprintf("creating directory for lexical index %s", path), mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, rerrors.IOError("opening bleve lexical index", err)
	}

	return &BleveIndex{index: idx, path: path}, nil
}

type bleveDoc struct {
	Content string `json:"content"`
}

func (b *BleveIndex) Index(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, e := range entries {
		id := strconv.FormatInt(e.ChunkID, 10)
		if err := batch.Index(id, bleveDoc{Content: e.Text}); err != nil {
			return rerrors.IOError(fmt.Sprintf("indexing chunk %d", e.ChunkID), err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return rerrors.IOError("executing lexical index batch", err)
	}
	return nil
}

func (b *BleveIndex) Match(ctx context.Context, expr string, k int) ([]Result, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	q := bleve.NewMatchQuery(expr)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = k

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, rerrors.IOError("running lexical match", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		// Bleve's score is higher-is-better; negate so ascending order
		// (as used uniformly by C7's fusion and the SQLite backend) still
		// means "best first".
		results = append(results, Result{ChunkID: id, Score: -hit.Score})
	}
	return results, nil
}

func (b *BleveIndex) Delete(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(strconv.FormatInt(id, 10))
	}
	if err := b.index.Batch(batch); err != nil {
		return rerrors.IOError("deleting lexical entries", err)
	}
	return nil
}

func (b *BleveIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, err := b.index.DocCount()
	if err != nil {
		return 0, rerrors.IOError("counting lexical entries", err)
	}
	return int(n), nil
}

func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
