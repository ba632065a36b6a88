// Package features turns applicant profiles into the fixed-order, one-hot encoded
// rows the credit classifier was fit on.
package features

import (
	"errors"
	"fmt"
)

// Numeric is a numeric column copied verbatim into the feature row.
type Numeric struct {
	Name  string
	Label string
	Min   float64
	Max   float64
	Step  float64
}

// Attribute is a categorical input expanded into one indicator column per value.
type Attribute struct {
	Name   string
	Label  string
	Values []string
	Labels []string
}

func (a Attribute) Column(value string) string { return a.Name + "_" + value }

func (a Attribute) Index(value string) int {
	for i, v := range a.Values {
		if v == value {
			return i
		}
	}
	return -1
}

func (a Attribute) ValueLabel(i int) string {
	if i < len(a.Labels) && a.Labels[i] != "" {
		return a.Labels[i]
	}
	return a.Values[i]
}

// Schema is the ordered column layout: numerics first, then every attribute's
// indicators in enumeration order.
type Schema struct {
	numerics   []Numeric
	attributes []Attribute
	columns    []string
	byName     map[string]int
}

func NewSchema(numerics []Numeric, attributes []Attribute) (*Schema, error) {
	var probe ApplicantProfile
	seen := make(map[string]bool)
	columns := make([]string, 0, len(numerics)+len(attributes)*4)

	add := func(col string) error {
		if seen[col] {
			return fmt.Errorf("duplicate column %s", col)
		}
		seen[col] = true
		columns = append(columns, col)
		return nil
	}

	for _, n := range numerics {
		if _, ok := probe.NumericValue(n.Name); !ok {
			return nil, fmt.Errorf("numeric %s is not a profile field", n.Name)
		}
		if n.Min > n.Max {
			return nil, fmt.Errorf("numeric %s: min %g above max %g", n.Name, n.Min, n.Max)
		}
		if err := add(n.Name); err != nil {
			return nil, err
		}
	}

	byName := make(map[string]int, len(attributes))
	for i, a := range attributes {
		if _, ok := probe.CategoryValue(a.Name); !ok {
			return nil, fmt.Errorf("attribute %s is not a profile field", a.Name)
		}
		if len(a.Values) == 0 {
			return nil, fmt.Errorf("attribute %s has an empty enumeration", a.Name)
		}
		if len(a.Labels) != 0 && len(a.Labels) != len(a.Values) {
			return nil, fmt.Errorf("attribute %s: %d labels for %d values", a.Name, len(a.Labels), len(a.Values))
		}
		if _, dup := byName[a.Name]; dup {
			return nil, fmt.Errorf("duplicate attribute %s", a.Name)
		}
		byName[a.Name] = i
		for _, v := range a.Values {
			if err := add(a.Column(v)); err != nil {
				return nil, err
			}
		}
	}

	return &Schema{
		numerics:   numerics,
		attributes: attributes,
		columns:    columns,
		byName:     byName,
	}, nil
}

// Columns returns a copy of the ordered column names.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

func (s *Schema) Len() int                { return len(s.columns) }
func (s *Schema) Numerics() []Numeric     { return s.numerics }
func (s *Schema) Attributes() []Attribute { return s.attributes }

func (s *Schema) Attribute(name string) (Attribute, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Attribute{}, false
	}
	return s.attributes[i], true
}

var defaultSchema = mustSchema(NewSchema(referenceNumerics, referenceAttributes))

// DefaultSchema is the 57-column layout the bundled credit model expects.
func DefaultSchema() *Schema { return defaultSchema }

func mustSchema(s *Schema, err error) *Schema {
	if err != nil {
		panic(errors.Join(errors.New("features: invalid reference schema"), err))
	}
	return s
}

var referenceNumerics = []Numeric{
	{Name: "duration", Label: "Credit duration (months)", Min: 1, Max: 72, Step: 1},
	{Name: "amount", Label: "Credit amount", Min: 1, Max: 20000, Step: 1},
	{Name: "installment_rate", Label: "Installment rate (% of disposable income)", Min: 1, Max: 4, Step: 1},
	{Name: "residence", Label: "Present residence since (years)", Min: 1, Max: 4, Step: 1},
	{Name: "age", Label: "Age (years)", Min: 18, Max: 80, Step: 1},
	{Name: "existing_credits", Label: "Existing credits at this bank", Min: 1, Max: 4, Step: 1},
	{Name: "dependents", Label: "People liable to provide maintenance for", Min: 1, Max: 2, Step: 1},
}

var referenceAttributes = []Attribute{
	{
		Name:   "account_status",
		Label:  "Checking account status",
		Values: []string{"negative_balance", "balance_0_to_200", "balance_over_200", "no_account"},
		Labels: []string{"< 0", "0 to 200", ">= 200", "No checking account"},
	},
	{
		Name:   "credit_history",
		Label:  "Credit history",
		Values: []string{"no_credits", "all_paid_this_bank", "existing_paid", "past_delay", "critical_account"},
		Labels: []string{"No credits taken", "All credits at this bank paid back", "Existing credits paid back so far", "Delay in paying off in the past", "Critical account"},
	},
	{
		Name:  "purpose",
		Label: "Purpose",
		Values: []string{
			"car_new", "car_used", "furniture_equipment", "radio_tv", "domestic_appliances",
			"repairs", "education", "vacation", "retraining", "business", "others",
		},
		Labels: []string{
			"Car (new)", "Car (used)", "Furniture / equipment", "Radio / television", "Domestic appliances",
			"Repairs", "Education", "Vacation", "Retraining", "Business", "Others",
		},
	},
	{
		Name:   "savings",
		Label:  "Savings account / bonds",
		Values: []string{"below_100", "100_to_500", "500_to_1000", "over_1000", "unknown_none"},
		Labels: []string{"< 100", "100 to 500", "500 to 1000", ">= 1000", "Unknown / no savings account"},
	},
	{
		Name:   "employment",
		Label:  "Present employment since",
		Values: []string{"unemployed", "below_1_year", "1_to_4_years", "4_to_7_years", "over_7_years"},
		Labels: []string{"Unemployed", "< 1 year", "1 to 4 years", "4 to 7 years", ">= 7 years"},
	},
	{
		Name:   "personal_status",
		Label:  "Personal status and sex",
		Values: []string{"male_divorced_separated", "female_divorced_separated_married", "male_single", "male_married_widowed"},
		Labels: []string{"Male: divorced / separated", "Female: divorced / separated / married", "Male: single", "Male: married / widowed"},
	},
	{
		Name:   "property",
		Label:  "Property",
		Values: []string{"real_estate", "savings_insurance", "car_other", "unknown_none"},
		Labels: []string{"Real estate", "Building society savings / life insurance", "Car or other", "Unknown / no property"},
	},
	{
		Name:   "other_installment_plans",
		Label:  "Other installment plans",
		Values: []string{"bank", "stores", "none"},
		Labels: []string{"Bank", "Stores", "None"},
	},
	{
		Name:   "housing",
		Label:  "Housing",
		Values: []string{"rent", "own", "for_free"},
		Labels: []string{"Rent", "Own", "For free"},
	},
	{
		Name:   "job",
		Label:  "Job",
		Values: []string{"unemployed_unskilled_nonresident", "unskilled_resident", "skilled_employee", "management_self_employed"},
		Labels: []string{"Unemployed / unskilled, non-resident", "Unskilled, resident", "Skilled employee / official", "Management / self-employed / highly qualified"},
	},
	{
		Name:   "telephone",
		Label:  "Telephone",
		Values: []string{"none", "registered"},
		Labels: []string{"None", "Yes, registered under the customer's name"},
	},
}
