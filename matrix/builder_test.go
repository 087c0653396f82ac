package matrix

import (
	"errors"
	"reflect"
	"testing"

	"github.com/XiaoTianFan/music-cluster/features"
)

func songRow(id string, energy float64, key string) Row {
	return Row{
		SongID: id,
		Bag: features.Bag{
			"energy": features.Scalar(energy),
			"key":    features.Label(key),
		},
	}
}

func TestBuild_OneHotEncoding(t *testing.T) {
	rows := []Row{
		songRow("a", 0.2, "C"),
		songRow("b", 0.8, "D"),
		songRow("c", 0.5, "C"),
		songRow("d", 0.4, "D"),
	}

	m, err := Build(rows)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	wantIDs := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(m.SongIDs, wantIDs) {
		t.Fatalf("song ids: want %v, got %v", wantIDs, m.SongIDs)
	}
	// Columns in canonical key order: energy, then the one-hot block for
	// key with values sorted alphabetically (C before D).
	wantRoles := []bool{false, true, true}
	if !reflect.DeepEqual(m.IsEncodedColumn, wantRoles) {
		t.Fatalf("column roles: want %v, got %v", wantRoles, m.IsEncodedColumn)
	}
	wantVectors := [][]float64{
		{0.2, 1, 0},
		{0.8, 0, 1},
		{0.5, 1, 0},
		{0.4, 0, 1},
	}
	if !reflect.DeepEqual(m.Vectors, wantVectors) {
		t.Fatalf("vectors: want %v, got %v", wantVectors, m.Vectors)
	}
}

func TestBuild_AlphabeticalCategoryOrder(t *testing.T) {
	// First-seen order is Z then A; the column layout must still be
	// alphabetical.
	rows := []Row{
		{SongID: "a", Bag: features.Bag{"key": features.Label("Z")}},
		{SongID: "b", Bag: features.Bag{"key": features.Label("A")}},
	}

	m, err := Build(rows)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	wantVectors := [][]float64{
		{0, 1}, // Z occupies the second column
		{1, 0}, // A the first
	}
	if !reflect.DeepEqual(m.Vectors, wantVectors) {
		t.Fatalf("vectors: want %v, got %v", wantVectors, m.Vectors)
	}
}

func TestBuild_VectorFeatureSplicedVerbatim(t *testing.T) {
	rows := []Row{
		{SongID: "a", Bag: features.Bag{
			"mfcc": features.Vector{1, 2, 3},
			"rms":  features.Scalar(0.5),
		}},
		{SongID: "b", Bag: features.Bag{
			"mfcc": features.Vector{4, 5, 6},
			"rms":  features.Scalar(0.7),
		}},
	}

	m, err := Build(rows)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	wantVectors := [][]float64{
		{1, 2, 3, 0.5},
		{4, 5, 6, 0.7},
	}
	if !reflect.DeepEqual(m.Vectors, wantVectors) {
		t.Fatalf("vectors: want %v, got %v", wantVectors, m.Vectors)
	}
	wantRoles := []bool{false, false, false, false}
	if !reflect.DeepEqual(m.IsEncodedColumn, wantRoles) {
		t.Fatalf("column roles: want %v, got %v", wantRoles, m.IsEncodedColumn)
	}
}

func TestBuild_IntersectionDropsPartialKeys(t *testing.T) {
	// Only energy is present in every row; key must not contribute columns.
	rows := []Row{
		{SongID: "a", Bag: features.Bag{
			"energy": features.Scalar(1),
			"key":    features.Label("C"),
		}},
		{SongID: "b", Bag: features.Bag{
			"energy": features.Scalar(2),
		}},
	}

	m, err := Build(rows)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	wantVectors := [][]float64{{1}, {2}}
	if !reflect.DeepEqual(m.Vectors, wantVectors) {
		t.Fatalf("vectors: want %v, got %v", wantVectors, m.Vectors)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rows    []Row
		wantErr error
	}{
		{
			name:    "no rows",
			rows:    nil,
			wantErr: ErrNoInput,
		},
		{
			name: "no common features",
			rows: []Row{
				{SongID: "a", Bag: features.Bag{"energy": features.Scalar(1)}},
				{SongID: "b", Bag: features.Bag{"rms": features.Scalar(2)}},
			},
			wantErr: ErrNoCommonFeatures,
		},
		{
			name: "mixed value kinds for one key",
			rows: []Row{
				{SongID: "a", Bag: features.Bag{"key": features.Label("C")}},
				{SongID: "b", Bag: features.Bag{"key": features.Scalar(1)}},
			},
			wantErr: ErrMixedValueKinds,
		},
		{
			name: "inconsistent vector length",
			rows: []Row{
				{SongID: "a", Bag: features.Bag{"mfcc": features.Vector{1, 2}}},
				{SongID: "b", Bag: features.Bag{"mfcc": features.Vector{1, 2, 3}}},
			},
			wantErr: ErrInconsistentRowLength,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.rows)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Build() error: want %v, got %v", tc.wantErr, err)
			}
		})
	}
}
