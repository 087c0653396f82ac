package worker

import (
	"testing"
	"time"

	"github.com/XiaoTianFan/music-cluster/matrix"
)

func recvScaling(t *testing.T, w *Scaling) ScalingResult {
	t.Helper()
	select {
	case msg := <-w.Messages():
		res, ok := msg.(ScalingResult)
		if !ok {
			t.Fatalf("want ScalingResult, got %T", msg)
		}
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for scaling result")
		return ScalingResult{}
	}
}

func TestScaling_PreservesEncodedColumns(t *testing.T) {
	w := NewScaling()
	defer w.Close()

	orig := [][]float64{{0.2, 1, 0}, {0.8, 0, 1}}
	vectors := make([][]float64, len(orig))
	for i, row := range orig {
		vectors[i] = append([]float64(nil), row...)
	}

	w.Submit(ScalingRequest{
		Vectors:         vectors,
		SongIDs:         []string{"a", "b"},
		IsEncodedColumn: []bool{false, true, true},
		Method:          matrix.ScaleStandardize,
	})
	res := recvScaling(t, w)
	if res.Err != "" {
		t.Fatalf("scaling error: %s", res.Err)
	}
	for i, row := range res.Processed.Vectors {
		if row[1] != orig[i][1] || row[2] != orig[i][2] {
			t.Fatalf("encoded columns changed in row %d: %v", i, row)
		}
	}
}

func TestScaling_ErrorsSurfaceInResult(t *testing.T) {
	w := NewScaling()
	defer w.Close()

	w.Submit(ScalingRequest{
		Vectors:         [][]float64{{1, 2}},
		SongIDs:         []string{"a"},
		IsEncodedColumn: []bool{false}, // role vector too short
		Method:          matrix.ScaleStandardize,
	})
	res := recvScaling(t, w)
	if res.Err == "" || res.Processed != nil {
		t.Fatalf("mismatched role vector should fail, got %+v", res)
	}
}
