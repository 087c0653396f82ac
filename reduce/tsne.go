package reduce

import (
	"fmt"

	"github.com/danaugrs/go-tsne/tsne"
	"gonum.org/v1/gonum/mat"
)

// tsneEmbed runs Barnes-Hut-free t-SNE over the row vectors.
func tsneEmbed(vectors [][]float64, dimensions int, params Params) ([][]float64, error) {
	rows := len(vectors)
	cols := len(vectors[0])

	perplexity := params.Perplexity
	if perplexity <= 0 {
		perplexity = DefaultParams().Perplexity
	}
	// t-SNE needs perplexity well below the sample count to solve for the
	// conditional distributions.
	if maxPerp := float64(rows-1) / 3; perplexity > maxPerp && maxPerp > 0 {
		perplexity = maxPerp
	}
	learningRate := params.LearningRate
	if learningRate <= 0 {
		learningRate = DefaultParams().LearningRate
	}
	iterations := params.Iterations
	if iterations <= 0 {
		iterations = DefaultParams().Iterations
	}

	data := mat.NewDense(rows, cols, nil)
	for i, row := range vectors {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		data.SetRow(i, row)
	}

	t := tsne.NewTSNE(dimensions, perplexity, learningRate, iterations, false)
	embedding := t.EmbedData(data, nil)

	dense, ok := embedding.(*mat.Dense)
	if !ok {
		dense = mat.DenseCopyOf(embedding)
	}
	out := make([][]float64, rows)
	for i := range out {
		out[i] = mat.Row(nil, i, dense)
	}
	return out, nil
}
