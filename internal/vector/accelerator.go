package vector

import (
	"context"
	"math"
)

// Accelerator offers a hook for hardware-accelerated distance computation
// (e.g. batched cosine distance on a GPU) ahead of a plain HNSW graph walk.
// The example pack's only accelerated backend is the MLX FFI
// embedder (internal/embed/mlx.go), which accelerates embedding generation,
// not vector search; no example repo carries a GPU-backed ANN index, so
// CPUAccelerator is the only implementation. The interface is kept so a
// future accelerated backend has a seam to plug into without touching
// HNSWIndex's exported surface.
type Accelerator interface {
	// BatchDistance computes the distance from query to each row of
	// candidates in one call, in the same units as Index.Search's Result.
	BatchDistance(ctx context.Context, metric Metric, query []float32, candidates [][]float32) ([]float32, error)
}

// CPUAccelerator computes distances serially on the calling goroutine.
type CPUAccelerator struct{}

var _ Accelerator = CPUAccelerator{}

func (CPUAccelerator) BatchDistance(_ context.Context, metric Metric, query []float32, candidates [][]float32) ([]float32, error) {
	out := make([]float32, len(candidates))
	for i, c := range candidates {
		out[i] = distance(metric, query, c)
	}
	return out, nil
}

func distance(metric Metric, a, b []float32) float32 {
	switch metric {
	case MetricEuclidean:
		return euclideanDistance(a, b)
	default:
		return cosineDistance(a, b)
	}
}

func cosineDistance(a, b []float32) float32 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	return float32(1 - cos)
}

func euclideanDistance(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
