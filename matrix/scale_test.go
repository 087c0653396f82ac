package matrix

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func testMatrix() *Unprocessed {
	return &Unprocessed{
		Vectors: [][]float64{
			{0.2, 1, 0},
			{0.8, 0, 1},
			{0.5, 1, 0},
			{0.4, 0, 1},
		},
		SongIDs:         []string{"a", "b", "c", "d"},
		IsEncodedColumn: []bool{false, true, true},
	}
}

func TestScale_EncodedColumnsUntouched(t *testing.T) {
	for _, method := range []ScalingMethod{ScaleNone, ScaleStandardize, ScaleNormalize} {
		t.Run(string(method), func(t *testing.T) {
			m := testMatrix()
			out, err := Scale(m, method, 0, 1)
			if err != nil {
				t.Fatalf("Scale() error: %v", err)
			}
			for i := range out.Vectors {
				for j, enc := range m.IsEncodedColumn {
					if enc && out.Vectors[i][j] != m.Vectors[i][j] {
						t.Fatalf("encoded column %d row %d changed: %v -> %v",
							j, i, m.Vectors[i][j], out.Vectors[i][j])
					}
				}
			}
		})
	}
}

func TestScale_StandardizeUsesPopulationStats(t *testing.T) {
	m := &Unprocessed{
		Vectors:         [][]float64{{1}, {2}, {3}, {4}},
		SongIDs:         []string{"a", "b", "c", "d"},
		IsEncodedColumn: []bool{false},
	}
	out, err := Scale(m, ScaleStandardize, 0, 0)
	if err != nil {
		t.Fatalf("Scale() error: %v", err)
	}
	// mean 2.5, population std dev sqrt(1.25)
	std := math.Sqrt(1.25)
	want := []float64{(1 - 2.5) / std, (2 - 2.5) / std, (3 - 2.5) / std, (4 - 2.5) / std}
	for i, w := range want {
		if math.Abs(out.Vectors[i][0]-w) > 1e-12 {
			t.Fatalf("row %d: want %v, got %v", i, w, out.Vectors[i][0])
		}
	}
}

func TestScale_StandardizeConstantColumnIsZero(t *testing.T) {
	m := &Unprocessed{
		Vectors:         [][]float64{{7}, {7}, {7}},
		SongIDs:         []string{"a", "b", "c"},
		IsEncodedColumn: []bool{false},
	}
	out, err := Scale(m, ScaleStandardize, 0, 0)
	if err != nil {
		t.Fatalf("Scale() error: %v", err)
	}
	for i := range out.Vectors {
		if out.Vectors[i][0] != 0 {
			t.Fatalf("row %d: constant column should standardize to 0, got %v", i, out.Vectors[i][0])
		}
	}
}

func TestScale_NormalizeBounds(t *testing.T) {
	m := &Unprocessed{
		Vectors:         [][]float64{{-3}, {0}, {9}},
		SongIDs:         []string{"a", "b", "c"},
		IsEncodedColumn: []bool{false},
	}
	out, err := Scale(m, ScaleNormalize, 2, 5)
	if err != nil {
		t.Fatalf("Scale() error: %v", err)
	}
	for i := range out.Vectors {
		v := out.Vectors[i][0]
		if v < 2 || v > 5 {
			t.Fatalf("row %d: %v out of [2,5]", i, v)
		}
	}
	if out.Vectors[0][0] != 2 {
		t.Fatalf("column min should map to 2, got %v", out.Vectors[0][0])
	}
	if out.Vectors[2][0] != 5 {
		t.Fatalf("column max should map to 5, got %v", out.Vectors[2][0])
	}
}

func TestScale_NormalizeDegenerateColumn(t *testing.T) {
	m := &Unprocessed{
		Vectors:         [][]float64{{4}, {4}},
		SongIDs:         []string{"a", "b"},
		IsEncodedColumn: []bool{false},
	}
	out, err := Scale(m, ScaleNormalize, 0.25, 0.75)
	if err != nil {
		t.Fatalf("Scale() error: %v", err)
	}
	for i := range out.Vectors {
		if out.Vectors[i][0] != 0.25 {
			t.Fatalf("degenerate column should map to minRange, got %v", out.Vectors[i][0])
		}
	}
}

func TestScale_NoneIsIdentityCopy(t *testing.T) {
	m := testMatrix()
	out, err := Scale(m, ScaleNone, 0, 1)
	if err != nil {
		t.Fatalf("Scale() error: %v", err)
	}
	if !reflect.DeepEqual(out.Vectors, m.Vectors) {
		t.Fatalf("none should copy vectors unchanged")
	}
	// Mutating the output must not touch the input.
	out.Vectors[0][0] = 99
	if m.Vectors[0][0] == 99 {
		t.Fatalf("Scale() aliased the input matrix")
	}
}

func TestScale_Errors(t *testing.T) {
	if _, err := Scale(nil, ScaleNone, 0, 1); !errors.Is(err, ErrEmptyMatrix) {
		t.Fatalf("nil matrix: want ErrEmptyMatrix, got %v", err)
	}

	m := &Unprocessed{
		Vectors:         [][]float64{{1, 2}},
		SongIDs:         []string{"a"},
		IsEncodedColumn: []bool{false},
	}
	if _, err := Scale(m, ScaleNone, 0, 1); !errors.Is(err, ErrColumnMismatch) {
		t.Fatalf("role mismatch: want ErrColumnMismatch, got %v", err)
	}

	if _, err := Scale(testMatrix(), ScalingMethod("bogus"), 0, 1); err == nil {
		t.Fatalf("unknown method: want error")
	}
}
