package features

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ApplicantProfile holds the raw attributes entered for one submission.
type ApplicantProfile struct {
	Duration        float64 `json:"duration" yaml:"duration" csv:"duration"`
	Amount          float64 `json:"amount" yaml:"amount" csv:"amount"`
	InstallmentRate float64 `json:"installment_rate" yaml:"installment_rate" csv:"installment_rate"`
	Residence       float64 `json:"residence" yaml:"residence" csv:"residence"`
	Age             float64 `json:"age" yaml:"age" csv:"age"`
	ExistingCredits float64 `json:"existing_credits" yaml:"existing_credits" csv:"existing_credits"`
	Dependents      float64 `json:"dependents" yaml:"dependents" csv:"dependents"`

	AccountStatus         string `json:"account_status" yaml:"account_status" csv:"account_status"`
	CreditHistory         string `json:"credit_history" yaml:"credit_history" csv:"credit_history"`
	Purpose               string `json:"purpose" yaml:"purpose" csv:"purpose"`
	Savings               string `json:"savings" yaml:"savings" csv:"savings"`
	Employment            string `json:"employment" yaml:"employment" csv:"employment"`
	PersonalStatus        string `json:"personal_status" yaml:"personal_status" csv:"personal_status"`
	Property              string `json:"property" yaml:"property" csv:"property"`
	OtherInstallmentPlans string `json:"other_installment_plans" yaml:"other_installment_plans" csv:"other_installment_plans"`
	Housing               string `json:"housing" yaml:"housing" csv:"housing"`
	Job                   string `json:"job" yaml:"job" csv:"job"`
	Telephone             string `json:"telephone" yaml:"telephone" csv:"telephone"`
}

// NumericValue looks a numeric field up by its column name.
func (p ApplicantProfile) NumericValue(name string) (float64, bool) {
	switch name {
	case "duration":
		return p.Duration, true
	case "amount":
		return p.Amount, true
	case "installment_rate":
		return p.InstallmentRate, true
	case "residence":
		return p.Residence, true
	case "age":
		return p.Age, true
	case "existing_credits":
		return p.ExistingCredits, true
	case "dependents":
		return p.Dependents, true
	}
	return 0, false
}

func (p *ApplicantProfile) SetNumeric(name string, v float64) bool {
	switch name {
	case "duration":
		p.Duration = v
	case "amount":
		p.Amount = v
	case "installment_rate":
		p.InstallmentRate = v
	case "residence":
		p.Residence = v
	case "age":
		p.Age = v
	case "existing_credits":
		p.ExistingCredits = v
	case "dependents":
		p.Dependents = v
	default:
		return false
	}
	return true
}

// CategoryValue looks a categorical field up by its attribute name.
func (p ApplicantProfile) CategoryValue(name string) (string, bool) {
	switch name {
	case "account_status":
		return p.AccountStatus, true
	case "credit_history":
		return p.CreditHistory, true
	case "purpose":
		return p.Purpose, true
	case "savings":
		return p.Savings, true
	case "employment":
		return p.Employment, true
	case "personal_status":
		return p.PersonalStatus, true
	case "property":
		return p.Property, true
	case "other_installment_plans":
		return p.OtherInstallmentPlans, true
	case "housing":
		return p.Housing, true
	case "job":
		return p.Job, true
	case "telephone":
		return p.Telephone, true
	}
	return "", false
}

func (p *ApplicantProfile) SetCategory(name, v string) bool {
	switch name {
	case "account_status":
		p.AccountStatus = v
	case "credit_history":
		p.CreditHistory = v
	case "purpose":
		p.Purpose = v
	case "savings":
		p.Savings = v
	case "employment":
		p.Employment = v
	case "personal_status":
		p.PersonalStatus = v
	case "property":
		p.Property = v
	case "other_installment_plans":
		p.OtherInstallmentPlans = v
	case "housing":
		p.Housing = v
	case "job":
		p.Job = v
	case "telephone":
		p.Telephone = v
	default:
		return false
	}
	return true
}

// DefaultProfile seeds the form: mid-range numerics, first option of every attribute.
func DefaultProfile() ApplicantProfile {
	p := ApplicantProfile{
		Duration:        20,
		Amount:          3000,
		InstallmentRate: 2,
		Residence:       2,
		Age:             35,
		ExistingCredits: 1,
		Dependents:      1,
	}
	for _, a := range DefaultSchema().Attributes() {
		p.SetCategory(a.Name, a.Values[0])
	}
	return p
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func rangeValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// Validate checks every numeric against its closed range and every categorical
// against its enumeration, reporting all violations.
func (s *Schema) Validate(p ApplicantProfile) error {
	var errs []error
	v := rangeValidator()
	for _, n := range s.numerics {
		val, _ := p.NumericValue(n.Name)
		tag := fmt.Sprintf("gte=%g,lte=%g", n.Min, n.Max)
		if err := v.Var(val, tag); err != nil {
			errs = append(errs, &RangeError{Field: n.Name, Value: val, Min: n.Min, Max: n.Max})
		}
	}
	for _, a := range s.attributes {
		val, _ := p.CategoryValue(a.Name)
		if a.Index(val) < 0 {
			errs = append(errs, &UnknownCategoryError{Attribute: a.Name, Value: val})
		}
	}
	return errors.Join(errs...)
}

// Validate runs the reference schema's checks.
func (p ApplicantProfile) Validate() error { return DefaultSchema().Validate(p) }
