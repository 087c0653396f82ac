package kmeans

import (
	"reflect"
	"testing"
)

func TestEngine_ReproducibleWithSameSeed(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	points := [][]float64{
		{0, 0}, {0.5, 0.2}, {0.1, 0.4},
		{8, 8}, {8.5, 7.9}, {7.8, 8.3},
	}

	run := func() []Snapshot {
		e := NewEngine(42)
		snap, err := e.Initialize(ids, points, 2)
		if err != nil {
			t.Fatalf("Initialize() error: %v", err)
		}
		snaps := []Snapshot{snap}
		for i := 0; i < 5; i++ {
			snap, err = e.Step()
			if err != nil {
				t.Fatalf("Step() error: %v", err)
			}
			snaps = append(snaps, snap)
		}
		return snaps
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed produced different sequences:\n%v\n%v", first, second)
	}
}

func TestEngine_IterationCounts(t *testing.T) {
	e := NewEngine(1)
	snap, err := e.Initialize([]string{"a", "b"}, [][]float64{{0}, {1}}, 2)
	if err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if snap.Iteration != 0 {
		t.Fatalf("iteration after init: want 0, got %d", snap.Iteration)
	}
	for i := 1; i <= 3; i++ {
		snap, err = e.Step()
		if err != nil {
			t.Fatalf("Step() error: %v", err)
		}
		if snap.Iteration != i {
			t.Fatalf("iteration after step %d: want %d, got %d", i, i, snap.Iteration)
		}
	}
}

func TestEngine_EmptyClusterKeepsStaleCentroid(t *testing.T) {
	// Two coincident points plus an outlier. When the sampler happens to
	// pick both coincident points as centroids, the tie-break sends every
	// point to the lower centroid index and cluster 1 attracts nothing.
	ids := []string{"a", "b", "c"}
	points := [][]float64{{1, 2}, {1, 2}, {9, 9}}

	for seed := int64(0); seed < 100; seed++ {
		e := NewEngine(seed)
		snap, err := e.Initialize(ids, points, 2)
		if err != nil {
			t.Fatalf("Initialize() error: %v", err)
		}
		if !reflect.DeepEqual(snap.Centroids[0], []float64{1, 2}) ||
			!reflect.DeepEqual(snap.Centroids[1], []float64{1, 2}) {
			continue
		}

		stepped, err := e.Step()
		if err != nil {
			t.Fatalf("Step() error: %v", err)
		}
		if !reflect.DeepEqual(stepped.Centroids[1], []float64{1, 2}) {
			t.Fatalf("empty cluster centroid moved: got %v", stepped.Centroids[1])
		}
		if reflect.DeepEqual(stepped.Centroids[0], []float64{1, 2}) {
			t.Fatalf("populated cluster centroid should have moved to the member mean")
		}
		for _, id := range ids {
			if stepped.Assignments[id] != 0 {
				t.Fatalf("tie-break should assign %s to cluster 0, got %d", id, stepped.Assignments[id])
			}
		}
		return
	}
	t.Fatalf("no seed in [0,100) sampled both coincident points as centroids")
}

func TestEngine_SnapshotIsDetached(t *testing.T) {
	e := NewEngine(7)
	snap, err := e.Initialize([]string{"a", "b", "c"}, [][]float64{{0}, {1}, {10}}, 2)
	if err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	snap.Centroids[0][0] = 123
	snap.Assignments["a"] = 99

	again, err := e.Step()
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if again.Centroids[0][0] == 123 {
		t.Fatalf("snapshot centroids alias engine state")
	}
	if again.Assignments["a"] == 99 {
		t.Fatalf("snapshot assignments alias engine state")
	}
}

func TestEngine_Reset(t *testing.T) {
	e := NewEngine(3)
	if _, err := e.Initialize([]string{"a", "b"}, [][]float64{{0}, {1}}, 2); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if !e.Initialized() {
		t.Fatalf("engine should be initialized")
	}
	e.Reset()
	if e.Initialized() {
		t.Fatalf("engine should not be initialized after Reset")
	}
	if _, err := e.Step(); err == nil {
		t.Fatalf("Step() after Reset should fail")
	}
}

func TestEngine_InitializeErrors(t *testing.T) {
	tests := []struct {
		name   string
		ids    []string
		points [][]float64
		k      int
	}{
		{name: "k below one", ids: []string{"a"}, points: [][]float64{{0}}, k: 0},
		{name: "misaligned ids", ids: []string{"a"}, points: [][]float64{{0}, {1}}, k: 1},
		{name: "fewer points than k", ids: []string{"a"}, points: [][]float64{{0}}, k: 2},
		{
			name:   "ragged dimensions",
			ids:    []string{"a", "b"},
			points: [][]float64{{0, 1}, {2}},
			k:      1,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			e := NewEngine(0)
			if _, err := e.Initialize(tc.ids, tc.points, tc.k); err == nil {
				t.Fatalf("Initialize() should fail")
			}
			if e.Initialized() {
				t.Fatalf("failed Initialize() must leave the engine uninitialized")
			}
		})
	}
}
