package pipeline

import (
	"github.com/XiaoTianFan/music-cluster/features"
	"github.com/XiaoTianFan/music-cluster/matrix"
	"github.com/XiaoTianFan/music-cluster/song"
)

// Marker names the highest pipeline stage currently holding valid data for
// the active song selection. It is the single authority the orchestrator
// consults to decide what downstream data is stale.
type Marker string

const (
	MarkerNone      Marker = ""
	MarkerFeatures  Marker = "features"
	MarkerProcessed Marker = "processed"
	MarkerReduced   Marker = "reduced"
	MarkerKMeans    Marker = "kmeans"
)

// ClusterState is the orchestrator's by-value view of the clustering
// worker's engine.
type ClusterState struct {
	Iteration   int
	Centroids   [][]float64
	Assignments map[string]int
	Initialized bool
}

// State is the explicit pipeline state owned by the orchestrator. Stage
// coordinators mutate it only through the orchestrator; every mutation is
// followed by a marker rederivation.
type State struct {
	Statuses   map[string]song.Status
	Bags       map[string]features.Bag
	SharedKeys []string

	Unprocessed *matrix.Unprocessed
	Scaled      *matrix.Scaled

	Reduced     map[string][]float64
	ReducedDims int

	Cluster ClusterState

	Marker Marker
}

func newState() State {
	return State{
		Statuses: make(map[string]song.Status),
		Bags:     make(map[string]features.Bag),
		Reduced:  make(map[string][]float64),
	}
}

// deriveStageMarker walks backward through kmeans → reduced → processed →
// features and returns the highest stage whose artifact is still valid for
// the active set. This is the only place that logic lives.
func deriveStageMarker(s *State, active map[string]bool) Marker {
	switch {
	case s.Cluster.Initialized:
		return MarkerKMeans
	case s.ReducedDims > 0 && anyActiveReducedPoint(s, active):
		return MarkerReduced
	case s.Scaled != nil && len(s.Scaled.Vectors) > 0:
		return MarkerProcessed
	case s.Unprocessed != nil && len(s.Unprocessed.Vectors) > 0:
		return MarkerFeatures
	default:
		return MarkerNone
	}
}

// anyActiveReducedPoint reports whether at least one active song holds a
// reduced point of the current dimensionality.
func anyActiveReducedPoint(s *State, active map[string]bool) bool {
	for id, point := range s.Reduced {
		if active[id] && len(point) == s.ReducedDims {
			return true
		}
	}
	return false
}

// Invalidation cascade. Each helper discards the named artifact entirely
// (never a stale flag) and everything below it.

func (s *State) invalidateClustering() {
	s.Cluster = ClusterState{}
}

func (s *State) invalidateReduction() {
	s.Reduced = make(map[string][]float64)
	s.ReducedDims = 0
	s.invalidateClustering()
}

func (s *State) invalidateScaling() {
	s.Scaled = nil
	s.invalidateReduction()
}

func (s *State) invalidateMatrices() {
	s.Unprocessed = nil
	s.SharedKeys = nil
	s.invalidateScaling()
}

// sharedFeatureKeys computes the intersection of feature keys across the
// rows that made it into the matrix, for downstream display.
func sharedFeatureKeys(rows []matrix.Row) []string {
	if len(rows) == 0 {
		return nil
	}
	shared := rows[0].Bag.Keys()
	for _, r := range rows[1:] {
		var next []string
		for _, k := range shared {
			if _, ok := r.Bag[k]; ok {
				next = append(next, k)
			}
		}
		shared = next
	}
	return shared
}
