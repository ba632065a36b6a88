package features

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTracker struct {
	errors    int
	durations []time.Duration
}

func (r *recordingTracker) FeatureErrorsInc() { r.errors++ }

func (r *recordingTracker) FeatureCalcDuration(d time.Duration) {
	r.durations = append(r.durations, d)
}

func TestDefaultSchema_Layout(t *testing.T) {
	s := DefaultSchema()

	require.Equal(t, 57, s.Len())
	require.Len(t, s.Numerics(), 7)
	require.Len(t, s.Attributes(), 11)

	var cards []int
	for _, a := range s.Attributes() {
		cards = append(cards, len(a.Values))
	}
	assert.Equal(t, []int{4, 5, 11, 5, 5, 4, 4, 3, 3, 4, 2}, cards)

	cols := s.Columns()
	assert.Equal(t, []string{"duration", "amount", "installment_rate", "residence", "age", "existing_credits", "dependents"}, cols[:7])
	assert.Equal(t, "account_status_negative_balance", cols[7])
	assert.Equal(t, "account_status_balance_0_to_200", cols[8])
	assert.Equal(t, "purpose_car_new", cols[7+4+5])
	assert.Equal(t, "telephone_registered", cols[56])
}

func TestSchema_ColumnsIsACopy(t *testing.T) {
	s := DefaultSchema()
	cols := s.Columns()
	cols[0] = "mutated"
	assert.Equal(t, "duration", s.Columns()[0])
}

func TestEncode_OneIndicatorPerAttribute(t *testing.T) {
	s := DefaultSchema()

	for _, attr := range s.Attributes() {
		for _, value := range attr.Values {
			t.Run(attr.Column(value), func(t *testing.T) {
				p := DefaultProfile()
				require.True(t, p.SetCategory(attr.Name, value))

				v, err := s.Encode(p)
				require.NoError(t, err)

				ones := 0
				for _, candidate := range attr.Values {
					got, ok := v.Value(attr.Column(candidate))
					require.True(t, ok, "missing column %s", attr.Column(candidate))
					switch {
					case candidate == value:
						assert.Equal(t, 1.0, got)
						ones++
					default:
						assert.Equal(t, 0.0, got)
					}
				}
				assert.Equal(t, 1, ones)
			})
		}
	}
}

func TestEncode_ColumnsMatchSchema(t *testing.T) {
	s := DefaultSchema()
	profiles := []ApplicantProfile{DefaultProfile()}

	alt := DefaultProfile()
	for _, a := range s.Attributes() {
		alt.SetCategory(a.Name, a.Values[len(a.Values)-1])
	}
	alt.Age = 80
	alt.Amount = 20000
	profiles = append(profiles, alt)

	for _, p := range profiles {
		v, err := s.Encode(p)
		require.NoError(t, err)
		assert.Equal(t, s.Columns(), v.Columns)
		assert.Len(t, v.Values, 57)
	}
}

func TestEncode_NumericPassThrough(t *testing.T) {
	p := DefaultProfile()
	p.Duration = 47
	p.Amount = 12345.5
	p.InstallmentRate = 3
	p.Residence = 4
	p.Age = 61
	p.ExistingCredits = 2
	p.Dependents = 2

	v, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, []float64{47, 12345.5, 3, 4, 61, 2, 2}, v.Values[:7])
}

func TestEncode_ReferenceExample(t *testing.T) {
	p := DefaultProfile()
	p.AccountStatus = "balance_0_to_200"

	v, err := Encode(p)
	require.NoError(t, err)

	expect := map[string]float64{
		"duration":                        20,
		"amount":                          3000,
		"installment_rate":                2,
		"residence":                       2,
		"age":                             35,
		"existing_credits":                1,
		"dependents":                      1,
		"account_status_negative_balance": 0,
		"account_status_balance_0_to_200": 1,
		"account_status_balance_over_200": 0,
		"account_status_no_account":       0,
		"credit_history_no_credits":       1,
		"purpose_car_new":                 1,
		"purpose_others":                  0,
		"telephone_none":                  1,
		"telephone_registered":            0,
		"other_installment_plans_bank":    1,
	}
	for col, want := range expect {
		got, ok := v.Value(col)
		require.True(t, ok, col)
		assert.Equal(t, want, got, col)
	}

	job, ok := v.Value("job_unemployed_unskilled_nonresident")
	require.True(t, ok)
	assert.Equal(t, 1.0, job)

	var sum float64
	for _, x := range v.Values[7:] {
		sum += x
	}
	assert.Equal(t, 11.0, sum, "one indicator per attribute")
}

func TestEncode_UnknownCategory(t *testing.T) {
	tests := []struct {
		name  string
		attr  string
		value string
	}{
		{"typo", "purpose", "car-new"},
		{"empty", "housing", ""},
		{"other attribute's value", "telephone", "own"},
		{"case sensitive", "savings", "BELOW_100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfile()
			require.True(t, p.SetCategory(tt.attr, tt.value))

			v, err := Encode(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnknownCategory))
			assert.Zero(t, v.Len(), "no partial encoding on failure")

			var uce *UnknownCategoryError
			require.True(t, errors.As(err, &uce))
			assert.Equal(t, tt.attr, uce.Attribute)
			assert.Equal(t, tt.value, uce.Value)
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	p := DefaultProfile()
	p.Purpose = "education"
	p.Amount = 7331.25

	a, err := Encode(p)
	require.NoError(t, err)
	b, err := Encode(p)
	require.NoError(t, err)

	require.Equal(t, a.Columns, b.Columns)
	require.Len(t, b.Values, len(a.Values))
	for i := range a.Values {
		assert.Equal(t, math.Float64bits(a.Values[i]), math.Float64bits(b.Values[i]), a.Columns[i])
	}
}

func TestEncodeWithMetrics(t *testing.T) {
	s := DefaultSchema()
	tracker := &recordingTracker{}

	_, err := s.EncodeWithMetrics(DefaultProfile(), tracker)
	require.NoError(t, err)
	assert.Equal(t, 0, tracker.errors)

	bad := DefaultProfile()
	bad.Job = "astronaut"
	_, err = s.EncodeWithMetrics(bad, tracker)
	require.ErrorIs(t, err, ErrUnknownCategory)
	assert.Equal(t, 1, tracker.errors)
	assert.Len(t, tracker.durations, 2)

	_, err = s.EncodeWithMetrics(DefaultProfile(), nil)
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("default profile is valid", func(t *testing.T) {
		assert.NoError(t, DefaultProfile().Validate())
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		p := DefaultProfile()
		p.Age = 18
		p.Duration = 72
		assert.NoError(t, p.Validate())
	})

	t.Run("out of range numerics", func(t *testing.T) {
		p := DefaultProfile()
		p.Age = 17
		p.Dependents = 3

		err := p.Validate()
		require.ErrorIs(t, err, ErrOutOfRange)
		assert.Contains(t, err.Error(), "age")
		assert.Contains(t, err.Error(), "dependents")

		var re *RangeError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, 18.0, re.Min)
	})

	t.Run("nan is rejected", func(t *testing.T) {
		p := DefaultProfile()
		p.Amount = math.NaN()
		assert.ErrorIs(t, p.Validate(), ErrOutOfRange)
	})

	t.Run("unknown category and range together", func(t *testing.T) {
		p := DefaultProfile()
		p.Duration = 0
		p.Property = "castle"

		err := p.Validate()
		assert.ErrorIs(t, err, ErrOutOfRange)
		assert.ErrorIs(t, err, ErrUnknownCategory)
	})
}

func TestNewSchema_Rejects(t *testing.T) {
	housing := Attribute{Name: "housing", Values: []string{"rent", "own"}}

	tests := []struct {
		name       string
		numerics   []Numeric
		attributes []Attribute
		wantErr    string
	}{
		{"unknown numeric", []Numeric{{Name: "income"}}, nil, "not a profile field"},
		{"unknown attribute", nil, []Attribute{{Name: "colour", Values: []string{"red"}}}, "not a profile field"},
		{"empty enumeration", nil, []Attribute{{Name: "housing"}}, "empty enumeration"},
		{"duplicate value", nil, []Attribute{{Name: "housing", Values: []string{"own", "own"}}}, "duplicate column"},
		{"duplicate attribute", nil, []Attribute{housing, housing}, "duplicate"},
		{"label mismatch", nil, []Attribute{{Name: "housing", Values: []string{"own"}, Labels: []string{"a", "b"}}}, "labels"},
		{"inverted range", []Numeric{{Name: "age", Min: 80, Max: 18}}, nil, "above max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchema(tt.numerics, tt.attributes)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestNewSchema_CustomOrder(t *testing.T) {
	s, err := NewSchema(
		[]Numeric{{Name: "age", Min: 18, Max: 80}},
		[]Attribute{{Name: "telephone", Values: []string{"registered", "none"}}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "telephone_registered", "telephone_none"}, s.Columns())

	v, err := s.Encode(DefaultProfile())
	require.NoError(t, err)
	assert.Equal(t, []float64{35, 0, 1}, v.Values)
}
