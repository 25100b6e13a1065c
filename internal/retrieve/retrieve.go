package retrieve

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/embed"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/lexical"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/store"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/vector"
)

// VectorIndexOpener lazily opens the vector index once the active
// embedder's dimension is known, mirroring ingest.VectorIndexOpener. A
// query that arrives before any document has been ingested may see no
// vector index at all; that is not an error, just an empty vector list.
type VectorIndexOpener func(dimension int) (vector.Index, error)

// Engine holds no model state of its own: embedder and vector index are
// resolved by the caller from the current modelconfig.Registry snapshot at
// the start of each request, so a model swap mid-flight never changes
// which model a request answers with.
type Engine struct {
	store   store.Store
	lexical lexical.Index
}

// New constructs the hybrid retriever over the shared chunk store and
// lexical index.
func New(st store.Store, lex lexical.Index) *Engine {
	return &Engine{store: st, lexical: lex}
}

// Retrieve runs the lexical and vector legs in parallel and fuses them by
// reciprocal rank.
func (e *Engine) Retrieve(ctx context.Context, query string, embedder embed.Embedder, openVec VectorIndexOpener, p Params) (*Result, error) {
	p = applyDefaults(p)

	expr := p.ExplicitExpr
	if expr == "" {
		expr = lexical.BuildMatch(query, lexical.Mode(p.BM25Mode), p.MaxTerms, lexical.DefaultStopWords)
	}

	var lexResults []lexical.Result
	var vecResults []vector.Result
	var warnings []Warning

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := e.lexical.Match(gctx, expr, p.BM25K)
		if err != nil {
			return err
		}
		lexResults = res
		return nil
	})

	g.Go(func() error {
		if embedder == nil {
			return nil
		}
		qvec, err := embedder.Embed(gctx, query)
		if err != nil {
			return rerrors.TransportFailure("embedding query", err)
		}

		idx, err := openVec(len(qvec))
		if err != nil {
			return err
		}
		if idx == nil || idx.Count() == 0 {
			return nil
		}

		res, err := idx.Search(gctx, qvec, p.VecK)
		var dimErr vector.ErrDimensionMismatch
		if errAs(err, &dimErr) {
			// Retrieval degrades to lexical-only on a dimension mismatch
			// rather than failing the whole request.
			warnings = append(warnings, Warning{
				Kind:    WarningDimensionMismatch,
				Message: dimErr.Error(),
			})
			return nil
		}
		if err != nil {
			return err
		}
		vecResults = res
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused, lexRanks, vecRanks := fuse(lexResults, vecResults, p.RRFK, p.WeightLex, p.WeightVec)
	if len(fused) > p.FinalK {
		fused = fused[:p.FinalK]
	}

	ids := make([]int64, len(fused))
	for i, f := range fused {
		ids[i] = f.chunkID
	}
	fetched, err := e.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	chunks := make(map[int64]*store.Chunk, len(fetched))
	for _, c := range fetched {
		chunks[c.ID] = c
	}

	hits := make([]Hit, 0, len(fused))
	for _, f := range fused {
		c, ok := chunks[f.chunkID]
		if !ok {
			// A fused id with no backing chunk means the chunk was deleted
			// between fusion and hydration; skip it rather than returning a
			// hole.
			continue
		}
		hits = append(hits, Hit{
			Chunk:      c,
			FusedScore: f.score,
			LexRank:    lexRanks[f.chunkID],
			VecRank:    vecRanks[f.chunkID],
		})
	}

	lexHits := make([]LexHit, len(lexResults))
	for i, r := range lexResults {
		lexHits[i] = LexHit{ChunkID: r.ChunkID, Score: r.Score}
	}
	vecHits := make([]VecHit, len(vecResults))
	for i, r := range vecResults {
		vecHits[i] = VecHit{ChunkID: r.ChunkID, Distance: r.Distance}
	}

	return &Result{
		Hits:      hits,
		LexHits:   lexHits,
		VecHits:   vecHits,
		Warnings:  warnings,
		MatchExpr: expr,
	}, nil
}

type fusedEntry struct {
	chunkID int64
	score   float64
}

// fuse implements reciprocal-rank fusion: 1-based ranks, a missing rank
// contributes 0, ties broken by ascending chunk id. lexRanks/vecRanks are
// returned alongside for debug reporting.
func fuse(lex []lexical.Result, vec []vector.Result, rrfK int, wLex, wVec float64) ([]fusedEntry, map[int64]int, map[int64]int) {
	lexRank := make(map[int64]int, len(lex))
	for i, r := range lex {
		lexRank[r.ChunkID] = i + 1
	}
	vecRank := make(map[int64]int, len(vec))
	for i, r := range vec {
		vecRank[r.ChunkID] = i + 1
	}

	seen := make(map[int64]struct{}, len(lexRank)+len(vecRank))
	var ids []int64
	for id := range lexRank {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for id := range vecRank {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	entries := make([]fusedEntry, 0, len(ids))
	for _, id := range ids {
		var score float64
		if r, ok := lexRank[id]; ok {
			score += wLex / float64(rrfK+r)
		}
		if r, ok := vecRank[id]; ok {
			score += wVec / float64(rrfK+r)
		}
		entries = append(entries, fusedEntry{chunkID: id, score: score})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].chunkID < entries[j].chunkID
	})

	return entries, lexRank, vecRank
}

func applyDefaults(p Params) Params {
	d := DefaultParams()
	if p.BM25K <= 0 {
		p.BM25K = d.BM25K
	}
	if p.VecK <= 0 {
		p.VecK = d.VecK
	}
	if p.FinalK <= 0 {
		p.FinalK = d.FinalK
	}
	if p.BM25Mode == "" {
		p.BM25Mode = d.BM25Mode
	}
	if p.MaxTerms <= 0 {
		p.MaxTerms = d.MaxTerms
	}
	if p.RRFK <= 0 {
		p.RRFK = d.RRFK
	}
	if p.WeightLex == 0 {
		p.WeightLex = d.WeightLex
	}
	if p.WeightVec == 0 {
		p.WeightVec = d.WeightVec
	}
	return p
}

func errAs(err error, target *vector.ErrDimensionMismatch) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(vector.ErrDimensionMismatch); ok {
		*target = e
		return true
	}
	return false
}
