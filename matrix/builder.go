package matrix

import (
	"fmt"
	"sort"

	"github.com/XiaoTianFan/music-cluster/features"
)

// Row pairs a song id with its completed feature bag.
type Row struct {
	SongID string
	Bag    features.Bag
}

// keyKind classifies a feature key by the value kind it holds.
type keyKind int

const (
	kindScalar keyKind = iota
	kindVector
	kindLabel
)

// Build turns heterogeneous feature bags into an aligned numeric matrix.
// Behavior:
//   - Only keys present in every input row survive (intersection), walked in
//     sorted canonical order.
//   - Label keys expand into a fixed-width one-hot block; the value-to-column
//     mapping sorts the distinct values alphabetically so the layout is
//     reproducible across runs with the same input set.
//   - Vector keys are spliced in verbatim; scalar keys append one column.
//   - The column role vector is recorded from the first row and every later
//     row must match its width exactly.
//
// Build is pure: no side effects beyond the returned matrix.
func Build(rows []Row) (*Unprocessed, error) {
	usable := make([]Row, 0, len(rows))
	for _, r := range rows {
		if len(r.Bag) > 0 {
			usable = append(usable, r)
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoInput
	}

	keys := commonKeys(usable)
	if len(keys) == 0 {
		return nil, ErrNoCommonFeatures
	}

	kinds, err := classifyKeys(usable, keys)
	if err != nil {
		return nil, err
	}

	encodings := buildEncodings(usable, keys, kinds)

	var roles []bool
	vectors := make([][]float64, 0, len(usable))
	ids := make([]string, 0, len(usable))

	for i, r := range usable {
		vec, rowRoles, err := encodeRow(r, keys, kinds, encodings)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			roles = rowRoles
		} else if len(vec) != len(roles) {
			return nil, fmt.Errorf("%w: song %s produced %d columns, want %d",
				ErrInconsistentRowLength, r.SongID, len(vec), len(roles))
		}
		vectors = append(vectors, vec)
		ids = append(ids, r.SongID)
	}

	return &Unprocessed{
		Vectors:         vectors,
		SongIDs:         ids,
		IsEncodedColumn: roles,
	}, nil
}

// commonKeys returns the sorted intersection of keys present (non-nil) in
// every row.
func commonKeys(rows []Row) []string {
	counts := make(map[string]int)
	for _, r := range rows {
		for k, v := range r.Bag {
			if v != nil {
				counts[k]++
			}
		}
	}
	var keys []string
	for k, n := range counts {
		if n == len(rows) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// classifyKeys determines each key's value kind and rejects keys whose kind
// differs between rows.
func classifyKeys(rows []Row, keys []string) (map[string]keyKind, error) {
	kinds := make(map[string]keyKind, len(keys))
	for _, k := range keys {
		for i, r := range rows {
			var kind keyKind
			switch r.Bag[k].(type) {
			case features.Scalar:
				kind = kindScalar
			case features.Vector:
				kind = kindVector
			case features.Label:
				kind = kindLabel
			default:
				return nil, fmt.Errorf("%w: key %q has unsupported value in song %s",
					ErrMixedValueKinds, k, r.SongID)
			}
			if i == 0 {
				kinds[k] = kind
			} else if kinds[k] != kind {
				return nil, fmt.Errorf("%w: key %q", ErrMixedValueKinds, k)
			}
		}
	}
	return kinds, nil
}

// buildEncodings assigns each distinct label value a one-hot column index,
// alphabetically, for every categorical key.
func buildEncodings(rows []Row, keys []string, kinds map[string]keyKind) map[string]map[string]int {
	encodings := make(map[string]map[string]int)
	for _, k := range keys {
		if kinds[k] != kindLabel {
			continue
		}
		distinct := make(map[string]bool)
		for _, r := range rows {
			distinct[string(r.Bag[k].(features.Label))] = true
		}
		values := make([]string, 0, len(distinct))
		for v := range distinct {
			values = append(values, v)
		}
		sort.Strings(values)
		mapping := make(map[string]int, len(values))
		for i, v := range values {
			mapping[v] = i
		}
		encodings[k] = mapping
	}
	return encodings
}

func encodeRow(r Row, keys []string, kinds map[string]keyKind, encodings map[string]map[string]int) ([]float64, []bool, error) {
	var vec []float64
	var roles []bool
	for _, k := range keys {
		switch kinds[k] {
		case kindScalar:
			vec = append(vec, float64(r.Bag[k].(features.Scalar)))
			roles = append(roles, false)
		case kindVector:
			for _, v := range r.Bag[k].(features.Vector) {
				vec = append(vec, v)
				roles = append(roles, false)
			}
		case kindLabel:
			mapping := encodings[k]
			idx, ok := mapping[string(r.Bag[k].(features.Label))]
			if !ok {
				return nil, nil, fmt.Errorf("%w: key %q value %q song %s",
					ErrUnmappedCategory, k, r.Bag[k].(features.Label), r.SongID)
			}
			block := make([]float64, len(mapping))
			block[idx] = 1
			vec = append(vec, block...)
			for range mapping {
				roles = append(roles, true)
			}
		}
	}
	return vec, roles, nil
}
