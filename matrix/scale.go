package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ScalingMethod selects how non-encoded columns are rescaled.
type ScalingMethod string

const (
	ScaleNone        ScalingMethod = "none"
	ScaleStandardize ScalingMethod = "standardize"
	ScaleNormalize   ScalingMethod = "normalize"
)

// Scale rescales the non-encoded columns of m and passes one-hot columns
// through untouched.
//
//   - standardize: (x - mean) / popStdDev, population statistics (divide by
//     N), zero for a zero-variance column.
//   - normalize: map [colMin, colMax] onto [minRange, maxRange], clamping a
//     degenerate constant column to minRange. Default range is [0, 1].
//   - none: identity passthrough.
func Scale(m *Unprocessed, method ScalingMethod, minRange, maxRange float64) (*Scaled, error) {
	if m == nil || len(m.Vectors) == 0 {
		return nil, ErrEmptyMatrix
	}
	for _, row := range m.Vectors {
		if len(row) != len(m.IsEncodedColumn) {
			return nil, fmt.Errorf("%w: row has %d columns, role vector has %d",
				ErrColumnMismatch, len(row), len(m.IsEncodedColumn))
		}
	}

	out := &Scaled{
		Vectors: cloneVectors(m.Vectors),
		SongIDs: append([]string(nil), m.SongIDs...),
	}

	switch method {
	case ScaleNone:
		return out, nil
	case ScaleStandardize:
		standardizeColumns(out.Vectors, m.IsEncodedColumn)
		return out, nil
	case ScaleNormalize:
		normalizeColumns(out.Vectors, m.IsEncodedColumn, minRange, maxRange)
		return out, nil
	default:
		return nil, fmt.Errorf("unknown scaling method %q", method)
	}
}

func column(vectors [][]float64, j int) []float64 {
	col := make([]float64, len(vectors))
	for i := range vectors {
		col[i] = vectors[i][j]
	}
	return col
}

func standardizeColumns(vectors [][]float64, encoded []bool) {
	for j := range encoded {
		if encoded[j] {
			continue
		}
		col := column(vectors, j)
		mean := stat.Mean(col, nil)
		std := stat.PopStdDev(col, nil)
		for i := range vectors {
			if std == 0 {
				vectors[i][j] = 0
			} else {
				vectors[i][j] = (vectors[i][j] - mean) / std
			}
		}
	}
}

func normalizeColumns(vectors [][]float64, encoded []bool, minRange, maxRange float64) {
	for j := range encoded {
		if encoded[j] {
			continue
		}
		col := column(vectors, j)
		colMin := floats.Min(col)
		colMax := floats.Max(col)
		span := colMax - colMin
		for i := range vectors {
			if span == 0 {
				vectors[i][j] = minRange
			} else {
				vectors[i][j] = minRange + (vectors[i][j]-colMin)*(maxRange-minRange)/span
			}
		}
	}
}
