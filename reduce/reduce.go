// Package reduce is the bundled dimensionality-reduction backend. PCA runs
// on gonum, t-SNE on go-tsne; UMAP is part of the protocol but unsupported
// here. The pipeline only depends on the reduction contract.
package reduce

import (
	"errors"
	"fmt"
)

// Method selects the reduction algorithm.
type Method string

const (
	MethodPCA  Method = "pca"
	MethodTSNE Method = "tsne"
	MethodUMAP Method = "umap"
)

// ErrUnsupportedMethod marks a reduction method the bundled backend cannot
// run.
var ErrUnsupportedMethod = errors.New("unsupported reduction method")

// Params carries method-specific tuning knobs.
type Params struct {
	// t-SNE
	Perplexity   float64 `json:"perplexity"`
	LearningRate float64 `json:"learning_rate"`
	Iterations   int     `json:"iterations"`
}

// DefaultParams returns the default method parameters.
func DefaultParams() Params {
	return Params{
		Perplexity:   30,
		LearningRate: 200,
		Iterations:   300,
	}
}

// Reducer projects row vectors into a lower-dimensional space. The output
// is row-aligned with the input.
type Reducer interface {
	Reduce(vectors [][]float64, method Method, dimensions int, params Params) ([][]float64, error)
}

// Backend dispatches to the bundled algorithm implementations.
type Backend struct{}

// NewBackend creates the bundled reducer.
func NewBackend() *Backend { return &Backend{} }

func (b *Backend) Reduce(vectors [][]float64, method Method, dimensions int, params Params) ([][]float64, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to reduce")
	}
	if dimensions < 1 {
		return nil, fmt.Errorf("target dimensions must be at least 1, got %d", dimensions)
	}

	switch method {
	case MethodPCA:
		return pca(vectors, dimensions)
	case MethodTSNE:
		return tsneEmbed(vectors, dimensions, params)
	case MethodUMAP:
		return nil, fmt.Errorf("%w: umap", ErrUnsupportedMethod)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}
