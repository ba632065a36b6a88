package features

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ProfileFromValues binds submitted form fields, keyed by column and attribute
// names, onto a profile. Missing or unparsable numerics fail with ErrInvalidField;
// categories are copied as given and checked later by Validate or Encode.
func (s *Schema) ProfileFromValues(form url.Values) (ApplicantProfile, error) {
	var p ApplicantProfile
	for _, n := range s.numerics {
		raw := strings.TrimSpace(form.Get(n.Name))
		if raw == "" {
			return ApplicantProfile{}, fmt.Errorf("%s is required: %w", n.Name, ErrInvalidField)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ApplicantProfile{}, fmt.Errorf("%s %q is not a number: %w", n.Name, raw, ErrInvalidField)
		}
		p.SetNumeric(n.Name, v)
	}
	for _, a := range s.attributes {
		p.SetCategory(a.Name, strings.TrimSpace(form.Get(a.Name)))
	}
	return p, nil
}

// Values is the inverse of ProfileFromValues.
func (s *Schema) Values(p ApplicantProfile) url.Values {
	form := url.Values{}
	for _, n := range s.numerics {
		v, _ := p.NumericValue(n.Name)
		form.Set(n.Name, strconv.FormatFloat(v, 'f', -1, 64))
	}
	for _, a := range s.attributes {
		v, _ := p.CategoryValue(a.Name)
		form.Set(a.Name, v)
	}
	return form
}
