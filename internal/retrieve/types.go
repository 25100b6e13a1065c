// Package retrieve implements the hybrid retriever. It fans lexical and
// vector queries out in parallel, hydrates chunk bodies from the chunk
// store, and fuses the two ranked lists by reciprocal rank fusion —
// rank-based rather than raw-score fusion, so BM25 and cosine scores never
// need to be normalized against each other.
package retrieve

import "github.com/FamilOrujov/hybrid-rag-kb/internal/store"

// Params configures one Retrieve call.
type Params struct {
	BM25K        int
	VecK         int
	FinalK       int
	BM25Mode     string // lexical.ModeRaw or lexical.ModeHeuristic
	ExplicitExpr string // bypasses BuildMatch preprocessing when non-empty
	MaxTerms     int
	RRFK         int
	WeightLex    float64
	WeightVec    float64
}

// DefaultParams holds the values applyDefaults uses for zero fields: the
// config's default k values, mode, term cap and RRF constant, plus equal
// fusion weights of 1.0 (SearchConfig's weights are not used here).
func DefaultParams() Params {
	return Params{
		BM25K:     20,
		VecK:      20,
		FinalK:    8,
		BM25Mode:  "heuristic",
		MaxTerms:  10,
		RRFK:      60,
		WeightLex: 1.0,
		WeightVec: 1.0,
	}
}

// Hit is one fused, hydrated result.
type Hit struct {
	Chunk      *store.Chunk
	FusedScore float64
	LexRank    int // 1-based; 0 means absent from the lexical list
	VecRank    int // 1-based; 0 means absent from the vector list
}

// Warning is a structured, non-fatal condition surfaced alongside results.
type Warning struct {
	Kind    string
	Message string
}

const WarningDimensionMismatch = "dimension_mismatch"

// Result is the full output of one Retrieve call, including the
// intermediate ranked lists for /debug/retrieval.
type Result struct {
	Hits     []Hit
	LexHits  []LexHit
	VecHits  []VecHit
	Warnings []Warning
	MatchExpr string
}

// LexHit is one hit from the lexical list before fusion, for debug output.
type LexHit struct {
	ChunkID int64
	Score   float64
}

// VecHit is one hit from the vector list before fusion, for debug output.
type VecHit struct {
	ChunkID  int64
	Distance float32
}
