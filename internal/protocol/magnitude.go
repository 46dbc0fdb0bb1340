package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Magnitude is a price or valuation. It is either a single scalar (single-item
// negotiation) or a fixed-length vector with one entry per item. The zero value
// is absent, which is how a JSON null or a missing field decodes.
type Magnitude struct {
	values []float64
	vector bool
}

// Scalar returns a single-value magnitude.
func Scalar(v float64) Magnitude {
	return Magnitude{values: []float64{v}}
}

// Vector returns a per-item magnitude. Vector() with no values is present but empty.
func Vector(values ...float64) Magnitude {
	if values == nil {
		values = []float64{}
	}
	return Magnitude{values: slices.Clone(values), vector: true}
}

// IsAbsent reports whether the magnitude carries no value at all.
func (m Magnitude) IsAbsent() bool {
	return !m.vector && len(m.values) == 0
}

// IsVector reports whether the magnitude was given in per-item form.
func (m Magnitude) IsVector() bool {
	return m.vector
}

// IsEmpty reports whether the magnitude is absent or an empty vector.
func (m Magnitude) IsEmpty() bool {
	return len(m.values) == 0
}

// Arity is the number of values carried: 1 for a scalar, len for a vector.
func (m Magnitude) Arity() int {
	return len(m.values)
}

// Values returns a copy of the underlying values.
func (m Magnitude) Values() []float64 {
	return slices.Clone(m.values)
}

// At returns the i-th value. A scalar answers the same value for every index.
func (m Magnitude) At(i int) float64 {
	if !m.vector && len(m.values) == 1 {
		return m.values[0]
	}
	return m.values[i]
}

// Mean is the arithmetic mean of the values, 0 when empty.
func (m Magnitude) Mean() float64 {
	if len(m.values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.values {
		sum += v
	}
	return sum / float64(len(m.values))
}

// String renders the magnitude the way it appears on the wire.
func (m Magnitude) String() string {
	switch {
	case m.IsAbsent():
		return "none"
	case m.vector:
		return fmt.Sprint(m.values)
	default:
		return fmt.Sprint(m.values[0])
	}
}

// MarshalJSON encodes absent as null, scalars as numbers and vectors as arrays.
func (m Magnitude) MarshalJSON() ([]byte, error) {
	switch {
	case m.IsAbsent():
		return []byte("null"), nil
	case m.vector:
		return json.Marshal(m.values)
	default:
		return json.Marshal(m.values[0])
	}
}

// UnmarshalJSON accepts a number, an array of numbers, or null.
func (m *Magnitude) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*m = Magnitude{}
		return nil
	case len(data) > 0 && data[0] == '[':
		var values []float64
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("magnitude array: %w", err)
		}
		*m = Vector(values...)
		return nil
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("magnitude: %w", err)
		}
		*m = Scalar(v)
		return nil
	}
}
