package reduce

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// pca projects the rows onto their first `dimensions` principal components.
func pca(vectors [][]float64, dimensions int) ([][]float64, error) {
	rows := len(vectors)
	cols := len(vectors[0])
	if dimensions > cols {
		return nil, fmt.Errorf("cannot project %d columns onto %d components", cols, dimensions)
	}

	data := mat.NewDense(rows, cols, nil)
	for i, row := range vectors {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		data.SetRow(i, row)
	}

	// Center columns; stat.PC yields directions of the centered data.
	means := make([]float64, cols)
	for j := 0; j < cols; j++ {
		means[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}
	centered := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			centered.Set(i, j, data.At(i, j)-means[j])
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(centered, nil); !ok {
		return nil, fmt.Errorf("principal component decomposition failed")
	}
	var directions mat.Dense
	pc.VectorsTo(&directions)

	var projected mat.Dense
	projected.Mul(centered, directions.Slice(0, cols, 0, dimensions))

	out := make([][]float64, rows)
	for i := range out {
		out[i] = mat.Row(nil, i, &projected)
	}
	return out, nil
}
