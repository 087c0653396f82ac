// Package kmeans implements a manual-step Lloyd clustering engine: it
// initializes once, then advances exactly one iteration per Step call with
// no autonomous convergence loop. The caller decides when to stop.
//
// References:
//   - MacQueen, J. (1967). "Some methods for classification and analysis of
//     multivariate observations"
//   - Lloyd, S. (1982). "Least squares quantization in PCM"
package kmeans

import (
	"fmt"
	"math"
	"math/rand"
)

// Snapshot is a by-value view of cluster state after an initialize or step
// call. Centroids and assignments are copies; observers never share memory
// with the engine.
type Snapshot struct {
	Iteration   int
	Centroids   [][]float64
	Assignments map[string]int
}

// Engine is the stateful clustering unit owned by the clustering worker.
// It never exposes a partially updated state: each operation computes into
// fresh slices and commits only on success.
type Engine struct {
	rng *rand.Rand

	ids         []string
	points      [][]float64
	centroids   [][]float64
	assignments []int
	iteration   int
	initialized bool
}

// NewEngine creates an engine seeded for reproducible runs. The same seed,
// points and k produce identical centroid and assignment sequences.
func NewEngine(seed int64) *Engine {
	return &Engine{rng: rand.New(rand.NewSource(seed))}
}

// Initialized reports whether Initialize has succeeded since the last Reset.
func (e *Engine) Initialized() bool { return e.initialized }

// Iteration returns the completed Lloyd iteration count.
func (e *Engine) Iteration() int { return e.iteration }

// Initialize seeds k centroids by uniform random sampling without
// replacement and computes the initial nearest-centroid assignment for every
// point (squared Euclidean distance, ties broken by lowest centroid index).
// Points whose vector length differs from the first point are rejected.
func (e *Engine) Initialize(ids []string, points [][]float64, k int) (Snapshot, error) {
	e.Reset()

	if k < 1 {
		return Snapshot{}, fmt.Errorf("k must be at least 1, got %d", k)
	}
	if len(ids) != len(points) {
		return Snapshot{}, fmt.Errorf("ids and points misaligned: %d vs %d", len(ids), len(points))
	}
	if len(points) < k {
		return Snapshot{}, fmt.Errorf("need at least %d points for k=%d, got %d", k, k, len(points))
	}
	dim := len(points[0])
	for i, p := range points {
		if len(p) != dim {
			return Snapshot{}, fmt.Errorf("point %s has %d dimensions, want %d", ids[i], len(p), dim)
		}
	}

	e.ids = append([]string(nil), ids...)
	e.points = make([][]float64, len(points))
	for i, p := range points {
		e.points[i] = append([]float64(nil), p...)
	}

	// Sample k distinct points as initial centroids.
	perm := e.rng.Perm(len(points))
	e.centroids = make([][]float64, k)
	for i := 0; i < k; i++ {
		e.centroids[i] = append([]float64(nil), e.points[perm[i]]...)
	}

	e.assignments = assign(e.points, e.centroids)
	e.iteration = 0
	e.initialized = true
	return e.snapshot(), nil
}

// Step performs one Lloyd iteration: reassign every point to its nearest
// centroid, then recompute each centroid as the mean of its members. A
// cluster that attracts zero points keeps its previous centroid unchanged
// rather than being re-seeded; stale centroids are preferred over
// oscillation.
func (e *Engine) Step() (Snapshot, error) {
	if !e.initialized {
		return Snapshot{}, fmt.Errorf("clustering not initialized")
	}

	assignments := assign(e.points, e.centroids)

	k := len(e.centroids)
	dim := len(e.centroids[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, p := range e.points {
		c := assignments[i]
		counts[c]++
		for j, v := range p {
			sums[c][j] += v
		}
	}

	centroids := make([][]float64, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			centroids[c] = append([]float64(nil), e.centroids[c]...)
			continue
		}
		centroids[c] = make([]float64, dim)
		for j := 0; j < dim; j++ {
			centroids[c][j] = sums[c][j] / float64(counts[c])
		}
	}

	e.assignments = assignments
	e.centroids = centroids
	e.iteration++
	return e.snapshot(), nil
}

// Reset discards all state and returns the engine to uninitialized. Always
// permitted.
func (e *Engine) Reset() {
	e.ids = nil
	e.points = nil
	e.centroids = nil
	e.assignments = nil
	e.iteration = 0
	e.initialized = false
}

func (e *Engine) snapshot() Snapshot {
	centroids := make([][]float64, len(e.centroids))
	for i, c := range e.centroids {
		centroids[i] = append([]float64(nil), c...)
	}
	assignments := make(map[string]int, len(e.ids))
	for i, id := range e.ids {
		assignments[id] = e.assignments[i]
	}
	return Snapshot{
		Iteration:   e.iteration,
		Centroids:   centroids,
		Assignments: assignments,
	}
}

// assign maps every point to its nearest centroid by squared Euclidean
// distance. A strict less-than comparison makes the lowest centroid index
// win ties.
func assign(points, centroids [][]float64) []int {
	labels := make([]int, len(points))
	for i, p := range points {
		best := 0
		bestDist := math.Inf(1)
		for c, centroid := range centroids {
			d := squaredDistance(p, centroid)
			if d < bestDist {
				bestDist = d
				best = c
			}
		}
		labels[i] = best
	}
	return labels
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}
