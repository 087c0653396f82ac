package features

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Value is one entry in a feature bag. The concrete kinds are Scalar (a
// single number), Vector (a coefficient array such as mean MFCCs) and Label
// (a categorical string such as a musical key). The set is closed so the
// matrix builder can switch exhaustively.
type Value interface {
	featureValue()
}

// Scalar is a single numeric feature.
type Scalar float64

// Vector is a fixed-length numeric feature, spliced into the matrix verbatim.
type Vector []float64

// Label is a categorical feature, one-hot encoded by the matrix builder.
type Label string

func (Scalar) featureValue() {}
func (Vector) featureValue() {}
func (Label) featureValue()  {}

// Bag maps feature names to extracted values. A bag is owned by exactly one
// extraction batch and never mutated after the song is marked complete;
// re-extraction builds a fresh bag.
type Bag map[string]Value

// Keys returns the feature names present in the bag, sorted.
func (b Bag) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the bag. Cross-stage communication is always
// by value, never by reference.
func (b Bag) Clone() Bag {
	if b == nil {
		return nil
	}
	out := make(Bag, len(b))
	for k, v := range b {
		switch val := v.(type) {
		case Vector:
			cp := make(Vector, len(val))
			copy(cp, val)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// MarshalJSON renders scalars as numbers, vectors as arrays and labels as
// strings, matching the cache file format.
func (b Bag) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(b))
	for k, v := range b {
		switch val := v.(type) {
		case Scalar:
			raw[k] = float64(val)
		case Vector:
			raw[k] = []float64(val)
		case Label:
			raw[k] = string(val)
		}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON maps JSON numbers, arrays and strings back onto the value
// kinds. Any other JSON shape is rejected.
func (b *Bag) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Bag, len(raw))
	for k, msg := range raw {
		val, err := decodeValue(msg)
		if err != nil {
			return fmt.Errorf("feature %q: %w", k, err)
		}
		out[k] = val
	}
	*b = out
	return nil
}

func decodeValue(msg json.RawMessage) (Value, error) {
	var num float64
	if err := json.Unmarshal(msg, &num); err == nil {
		return Scalar(num), nil
	}
	var vec []float64
	if err := json.Unmarshal(msg, &vec); err == nil {
		return Vector(vec), nil
	}
	var label string
	if err := json.Unmarshal(msg, &label); err == nil {
		return Label(label), nil
	}
	return nil, fmt.Errorf("unsupported feature value %s", string(msg))
}
