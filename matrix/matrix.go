package matrix

import "errors"

// Build and scale failure reasons.
var (
	ErrNoInput               = errors.New("no feature rows to build from")
	ErrNoCommonFeatures      = errors.New("no feature keys common to every song")
	ErrInconsistentRowLength = errors.New("inconsistent row length after encoding")
	ErrMixedValueKinds       = errors.New("feature has mixed value kinds across songs")
	ErrUnmappedCategory      = errors.New("categorical value missing from encoding map")
	ErrColumnMismatch        = errors.New("column role vector does not match matrix width")
	ErrEmptyMatrix           = errors.New("matrix has no rows")
)

// Unprocessed is the aligned numeric matrix built from per-song feature
// bags, before any scaling. Invariants: len(Vectors) == len(SongIDs), and
// every row has len == len(IsEncodedColumn).
type Unprocessed struct {
	Vectors         [][]float64
	SongIDs         []string
	IsEncodedColumn []bool
}

// Scaled is the matrix after the scaling stage. The column role vector is
// not carried forward; scaling is terminal for one-hot semantics.
type Scaled struct {
	Vectors [][]float64
	SongIDs []string
}

// Rows returns the row count.
func (m *Unprocessed) Rows() int { return len(m.Vectors) }

// Cols returns the column count.
func (m *Unprocessed) Cols() int { return len(m.IsEncodedColumn) }

// Clone deep-copies the matrix. Everything handed to a worker is a copy.
func (m *Unprocessed) Clone() *Unprocessed {
	if m == nil {
		return nil
	}
	out := &Unprocessed{
		Vectors:         cloneVectors(m.Vectors),
		SongIDs:         append([]string(nil), m.SongIDs...),
		IsEncodedColumn: append([]bool(nil), m.IsEncodedColumn...),
	}
	return out
}

// Clone deep-copies the matrix.
func (m *Scaled) Clone() *Scaled {
	if m == nil {
		return nil
	}
	return &Scaled{
		Vectors: cloneVectors(m.Vectors),
		SongIDs: append([]string(nil), m.SongIDs...),
	}
}

func cloneVectors(src [][]float64) [][]float64 {
	out := make([][]float64, len(src))
	for i, row := range src {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
