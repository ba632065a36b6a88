package features

import (
	"fmt"
	"time"
)

// MetricsTracker receives encoder outcomes.
type MetricsTracker interface {
	FeatureErrorsInc()
	FeatureCalcDuration(time.Duration)
}

// Vector is one encoded row. Columns and Values are parallel.
type Vector struct {
	Columns []string  `json:"columns"`
	Values  []float64 `json:"values"`
}

func (v Vector) Len() int { return len(v.Values) }

func (v Vector) Value(column string) (float64, bool) {
	for i, c := range v.Columns {
		if c == column {
			return v.Values[i], true
		}
	}
	return 0, false
}

// Encode copies the numerics verbatim and one-hot encodes every attribute
// exhaustively (no dropped baseline). A value outside its enumeration fails with
// an *UnknownCategoryError instead of yielding all-zero indicators.
func (s *Schema) Encode(p ApplicantProfile) (Vector, error) {
	values := make([]float64, 0, len(s.columns))

	for _, n := range s.numerics {
		val, _ := p.NumericValue(n.Name)
		values = append(values, val)
	}

	for _, a := range s.attributes {
		val, _ := p.CategoryValue(a.Name)
		hit := a.Index(val)
		if hit < 0 {
			return Vector{}, &UnknownCategoryError{Attribute: a.Name, Value: val}
		}
		for i := range a.Values {
			if i == hit {
				values = append(values, 1)
			} else {
				values = append(values, 0)
			}
		}
	}

	if len(values) != len(s.columns) {
		return Vector{}, fmt.Errorf("encoded %d values for %d columns", len(values), len(s.columns))
	}
	return Vector{Columns: s.Columns(), Values: values}, nil
}

func (s *Schema) EncodeWithMetrics(p ApplicantProfile, m MetricsTracker) (Vector, error) {
	start := time.Now()
	v, err := s.Encode(p)
	if m != nil {
		m.FeatureCalcDuration(time.Since(start))
		if err != nil {
			m.FeatureErrorsInc()
		}
	}
	return v, err
}

// Encode uses the reference schema.
func Encode(p ApplicantProfile) (Vector, error) { return DefaultSchema().Encode(p) }
